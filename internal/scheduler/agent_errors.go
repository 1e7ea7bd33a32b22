package scheduler

import "errors"

// ErrCycleInProgress is returned when a cycle is requested while another
// one is still running.
var ErrCycleInProgress = errors.New("ingestion cycle already in progress")
