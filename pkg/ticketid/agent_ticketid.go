// Package ticketid generates the pipeline's ticket identifiers.
//
// Format: TKT-<YYYYMMDD>-<NNNN>. The sequence is process-local and resets
// at midnight UTC; uniqueness across processes is not required because a
// single active pipeline per mailbox is assumed.
package ticketid

import (
	"fmt"
	"sync"
	"time"
)

// Generator produces date-scoped sequential ticket IDs. Safe for
// concurrent use.
type Generator struct {
	mu       sync.Mutex
	day      string
	sequence int
	now      func() time.Time
}

// NewGenerator creates a ticket ID generator.
func NewGenerator() *Generator {
	return &Generator{now: time.Now}
}

// NewGeneratorAt creates a generator with a custom clock, for tests.
func NewGeneratorAt(now func() time.Time) *Generator {
	return &Generator{now: now}
}

// Next returns the next ticket ID.
func (g *Generator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	day := g.now().UTC().Format("20060102")
	if day != g.day {
		g.day = day
		g.sequence = 0
	}
	g.sequence++

	return fmt.Sprintf("TKT-%s-%04d", day, g.sequence)
}
