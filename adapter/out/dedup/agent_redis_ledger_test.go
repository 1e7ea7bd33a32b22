package dedup

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLedger(t *testing.T) *RedisLedger {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisLedger(client, 0)
}

func TestRedisLedgerHasAndRecord(t *testing.T) {
	ctx := context.Background()
	ledger := newTestLedger(t)

	seen, err := ledger.Has(ctx, "msg-1")
	if err != nil {
		t.Fatalf("Has() error = %v", err)
	}
	if seen {
		t.Error("Has() = true for unseen message")
	}

	at := time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC)
	if err := ledger.Record(ctx, "msg-1", "TKT-20250401-0001", at); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	seen, err = ledger.Has(ctx, "msg-1")
	if err != nil {
		t.Fatalf("Has() error = %v", err)
	}
	if !seen {
		t.Error("Has() = false after Record")
	}
}

func TestRedisLedgerRecordIsIdempotent(t *testing.T) {
	ctx := context.Background()
	ledger := newTestLedger(t)
	at := time.Now().UTC()

	if err := ledger.Record(ctx, "msg-1", "TKT-A", at); err != nil {
		t.Fatal(err)
	}
	// A second record must neither fail nor overwrite the first entry.
	if err := ledger.Record(ctx, "msg-1", "TKT-B", at.Add(time.Hour)); err != nil {
		t.Fatalf("second Record() error = %v", err)
	}

	entries, err := ledger.Entries(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	if entries[0].TicketID != "TKT-A" {
		t.Errorf("ticket ID = %q, first write must win", entries[0].TicketID)
	}
}

func TestRedisLedgerEntries(t *testing.T) {
	ctx := context.Background()
	ledger := newTestLedger(t)
	at := time.Now().UTC()

	for _, id := range []string{"m1", "m2", "m3"} {
		if err := ledger.Record(ctx, id, "TKT-"+id, at); err != nil {
			t.Fatal(err)
		}
	}

	entries, err := ledger.Entries(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Errorf("entries = %d, want 3", len(entries))
	}

	byMessage := make(map[string]string, len(entries))
	for _, e := range entries {
		byMessage[e.MessageID] = e.TicketID
	}
	for _, id := range []string{"m1", "m2", "m3"} {
		if byMessage[id] != "TKT-"+id {
			t.Errorf("entry for %s = %q", id, byMessage[id])
		}
	}
}

func TestRedisLedgerSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	ledger := NewRedisLedger(client, 0)
	if err := ledger.Record(ctx, "msg-1", "TKT-1", time.Now().UTC()); err != nil {
		t.Fatal(err)
	}
	client.Close()

	// A fresh client against the same store still sees the entry.
	client2 := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client2.Close()
	ledger2 := NewRedisLedger(client2, 0)

	seen, err := ledger2.Has(ctx, "msg-1")
	if err != nil {
		t.Fatal(err)
	}
	if !seen {
		t.Error("entry lost across client restart")
	}
}
