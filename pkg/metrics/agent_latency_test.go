package metrics

import (
	"testing"
	"time"
)

func TestStatsEmptyWindow(t *testing.T) {
	lt := NewLatencyTracker(10)
	if s := lt.Stats(); s.Count != 0 || s.P95 != 0 {
		t.Errorf("Stats() on empty window = %+v", s)
	}
}

func TestStatsPercentiles(t *testing.T) {
	lt := NewLatencyTracker(200)
	for i := 1; i <= 100; i++ {
		lt.Record(time.Duration(i) * time.Millisecond)
	}

	s := lt.Stats()
	if s.Count != 100 {
		t.Fatalf("Count = %d", s.Count)
	}
	if s.Min != 1*time.Millisecond || s.Max != 100*time.Millisecond {
		t.Errorf("Min = %v, Max = %v", s.Min, s.Max)
	}
	// index 49 of the sorted 1..100ms series
	if s.P50 != 50*time.Millisecond {
		t.Errorf("P50 = %v", s.P50)
	}
	if s.P95 != 95*time.Millisecond {
		t.Errorf("P95 = %v", s.P95)
	}
}

func TestWindowSlides(t *testing.T) {
	lt := NewLatencyTracker(10)
	for i := 0; i < 25; i++ {
		lt.Record(time.Millisecond)
	}
	if s := lt.Stats(); s.Count > 10 {
		t.Errorf("window grew past capacity: %d samples", s.Count)
	}
}

func TestReset(t *testing.T) {
	lt := NewLatencyTracker(10)
	lt.Record(time.Millisecond)
	lt.Reset()
	if s := lt.Stats(); s.Count != 0 {
		t.Errorf("Count after Reset = %d", s.Count)
	}
}
