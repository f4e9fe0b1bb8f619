package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"linkgate/pkg/storage"

	"github.com/redis/go-redis/v9"
)

// VisitLedger deduplicates visits per (slug, session) with SET NX and keeps a
// per-slug counter. When a backing ledger is set, first-time visits are also
// written there with their device details.
type VisitLedger struct {
	client  *redis.Client
	window  time.Duration
	backing storage.VisitLedger
}

func NewVisitLedger(client *redis.Client, window time.Duration, backing storage.VisitLedger) *VisitLedger {
	return &VisitLedger{client: client, window: window, backing: backing}
}

func visitKey(slug, sessionKey string) string {
	return "visit:" + slug + ":" + storage.HashSessionKey(sessionKey)
}

func visitCountKey(slug string) string {
	return "visits:" + slug
}

func (l *VisitLedger) RecordVisit(ctx context.Context, visit storage.Visit) (bool, error) {
	first, err := l.client.SetNX(ctx, visitKey(visit.Slug, visit.SessionKey), visit.At.Unix(), l.window).Result()
	if err != nil {
		return false, fmt.Errorf("redis visit marker %s: %w", visit.Slug, err)
	}
	if !first {
		return false, nil
	}
	if err := l.client.Incr(ctx, visitCountKey(visit.Slug)).Err(); err != nil {
		return true, fmt.Errorf("redis visit counter %s: %w", visit.Slug, err)
	}
	if l.backing != nil {
		if _, err := l.backing.RecordVisit(ctx, visit); err != nil {
			return true, err
		}
	}
	return true, nil
}

// Count returns the number of distinct sessions counted for slug.
func (l *VisitLedger) Count(ctx context.Context, slug string) (int64, error) {
	n, err := l.client.Get(ctx, visitCountKey(slug)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}
