// Package dedup implements the durable message ledger on Redis and
// Postgres. The ledger is what makes ticket emission at-most-once: a
// message ID recorded here is never emitted again, across restarts.
package dedup

import (
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/legb78/mail-classification-agent/core/domain"
	"github.com/legb78/mail-classification-agent/core/port/out"
	"github.com/legb78/mail-classification-agent/pkg/apperr"
)

// keyPrefix namespaces ledger keys in Redis.
const keyPrefix = "agent:processed:"

// RedisLedger implements out.DedupLedger on Redis. Entries carry no TTL
// unless one is configured: forgetting a processed message re-emits its
// ticket, so expiry is opt-in and should outlive the mailbox retention.
type RedisLedger struct {
	rdb *redis.Client
	ttl time.Duration // 0 = keep forever
}

// NewRedisLedger creates a Redis-backed ledger.
func NewRedisLedger(rdb *redis.Client, ttl time.Duration) *RedisLedger {
	return &RedisLedger{rdb: rdb, ttl: ttl}
}

// Has reports whether the message has already produced a ticket.
func (l *RedisLedger) Has(ctx context.Context, messageID string) (bool, error) {
	n, err := l.rdb.Exists(ctx, keyPrefix+messageID).Result()
	if err != nil {
		return false, apperr.Fatal(apperr.CodeLedgerError, "ledger read failed", err)
	}
	return n > 0, nil
}

// Record stores the entry. SETNX keeps a concurrent double-record
// harmless: the first write wins and the entry is never overwritten.
func (l *RedisLedger) Record(ctx context.Context, messageID, ticketID string, processedAt time.Time) error {
	entry := domain.DedupEntry{
		MessageID:   messageID,
		TicketID:    ticketID,
		ProcessedAt: processedAt,
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return apperr.Fatal(apperr.CodeLedgerError, "marshaling ledger entry", err)
	}
	if _, err := l.rdb.SetNX(ctx, keyPrefix+messageID, payload, l.ttl).Result(); err != nil {
		return apperr.Fatal(apperr.CodeLedgerError, "ledger write failed", err)
	}
	return nil
}

// Entries scans the ledger for the admin API. Order is unspecified.
func (l *RedisLedger) Entries(ctx context.Context, limit int) ([]domain.DedupEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	entries := make([]domain.DedupEntry, 0, limit)

	iter := l.rdb.Scan(ctx, 0, keyPrefix+"*", int64(limit)).Iterator()
	for iter.Next(ctx) && len(entries) < limit {
		payload, err := l.rdb.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return nil, apperr.Fatal(apperr.CodeLedgerError, "ledger read failed", err)
		}
		var entry domain.DedupEntry
		if err := json.Unmarshal(payload, &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	if err := iter.Err(); err != nil {
		return nil, apperr.Fatal(apperr.CodeLedgerError, "ledger scan failed", err)
	}
	return entries, nil
}

var _ out.DedupLedger = (*RedisLedger)(nil)

var _ out.LedgerReader = (*RedisLedger)(nil)
