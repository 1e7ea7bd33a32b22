package ticketid

import (
	"sync"
	"testing"
	"time"
)

func TestNextFormatAndSequence(t *testing.T) {
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	g := NewGeneratorAt(func() time.Time { return clock })

	if got := g.Next(); got != "TKT-20250601-0001" {
		t.Errorf("first ID = %q", got)
	}
	if got := g.Next(); got != "TKT-20250601-0002" {
		t.Errorf("second ID = %q", got)
	}
}

func TestNextResetsAtMidnightUTC(t *testing.T) {
	clock := time.Date(2025, 6, 1, 23, 59, 0, 0, time.UTC)
	g := NewGeneratorAt(func() time.Time { return clock })

	g.Next()
	g.Next()
	clock = clock.Add(2 * time.Minute)

	if got := g.Next(); got != "TKT-20250602-0001" {
		t.Errorf("ID after rollover = %q, want sequence reset", got)
	}
}

func TestNextConcurrentUnique(t *testing.T) {
	g := NewGenerator()

	const n = 100
	ids := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids <- g.Next()
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]bool, n)
	for id := range ids {
		if seen[id] {
			t.Fatalf("duplicate ID %q", id)
		}
		seen[id] = true
	}
}
