package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"linkgate/pkg/sentinel"
)

type visitKey struct {
	slug       string
	sessionKey string
}

type pairKey struct {
	captureID string
	ruleID    string
}

// MemoryStore keeps every entity in process memory. Used by tests and the
// single-node dev setup.
type MemoryStore struct {
	mu sync.RWMutex

	links        map[string]*Link // by slug
	visits       map[visitKey]Visit
	rules        map[string]*FollowUpRule
	captures     map[string]*IdentityCapture
	captureIndex map[visitKey]string
	deliveries   map[string]*DeliveryRecord
	pairIndex    map[pairKey]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		links:        make(map[string]*Link),
		visits:       make(map[visitKey]Visit),
		rules:        make(map[string]*FollowUpRule),
		captures:     make(map[string]*IdentityCapture),
		captureIndex: make(map[visitKey]string),
		deliveries:   make(map[string]*DeliveryRecord),
		pairIndex:    make(map[pairKey]string),
	}
}

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) Create(_ context.Context, link *Link) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.links[link.Slug]; ok {
		return fmt.Errorf("link %s: %w", link.Slug, sentinel.ErrConflict)
	}
	stored := *link
	s.links[link.Slug] = &stored
	return nil
}

func (s *MemoryStore) GetBySlug(_ context.Context, slug string) (*Link, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	link, ok := s.links[slug]
	if !ok {
		return nil, fmt.Errorf("link %s: %w", slug, sentinel.ErrNotFound)
	}
	out := *link
	return &out, nil
}

func (s *MemoryStore) RecordVisit(_ context.Context, visit Visit) (bool, error) {
	key := visitKey{slug: visit.Slug, sessionKey: HashSessionKey(visit.SessionKey)}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.visits[key]; ok {
		return false, nil
	}
	s.visits[key] = visit
	return true, nil
}

// VisitCount returns the number of distinct sessions recorded for slug.
func (s *MemoryStore) VisitCount(slug string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for k := range s.visits {
		if k.slug == slug {
			n++
		}
	}
	return n
}

func (s *MemoryStore) CreateRule(_ context.Context, rule *FollowUpRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rules[rule.ID]; ok {
		return fmt.Errorf("rule %s: %w", rule.ID, sentinel.ErrConflict)
	}
	stored := *rule
	s.rules[rule.ID] = &stored
	return nil
}

func (s *MemoryStore) UpdateRule(_ context.Context, rule *FollowUpRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.rules[rule.ID]
	if !ok {
		return fmt.Errorf("rule %s: %w", rule.ID, sentinel.ErrNotFound)
	}
	stored := *rule
	stored.LinkID = existing.LinkID
	stored.CreatedAt = existing.CreatedAt
	s.rules[rule.ID] = &stored
	return nil
}

func (s *MemoryStore) DeleteRule(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rules, id)
	return nil
}

func (s *MemoryStore) ListRulesByLink(_ context.Context, linkID string) ([]FollowUpRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []FollowUpRule
	for _, r := range s.rules {
		if r.LinkID == linkID {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) CreateCaptureIfAbsent(_ context.Context, capture *IdentityCapture) (*IdentityCapture, bool, error) {
	key := visitKey{slug: capture.Slug, sessionKey: HashSessionKey(capture.SessionKey)}
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.captureIndex[key]; ok {
		existing := *s.captures[id]
		return &existing, false, nil
	}
	stored := *capture
	s.captures[capture.ID] = &stored
	s.captureIndex[key] = capture.ID
	out := stored
	return &out, true, nil
}

func (s *MemoryStore) GetCapture(_ context.Context, id string) (*IdentityCapture, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.captures[id]
	if !ok {
		return nil, fmt.Errorf("capture %s: %w", id, sentinel.ErrNotFound)
	}
	out := *c
	return &out, nil
}

func (s *MemoryStore) CreateDeliveryIfAbsent(_ context.Context, record *DeliveryRecord) (*DeliveryRecord, bool, error) {
	key := pairKey{captureID: record.CaptureID, ruleID: record.RuleID}
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.pairIndex[key]; ok {
		existing := *s.deliveries[id]
		return &existing, false, nil
	}
	stored := *record
	s.deliveries[record.ID] = &stored
	s.pairIndex[key] = record.ID
	out := stored
	return &out, true, nil
}

func (s *MemoryStore) GetDelivery(_ context.Context, id string) (*DeliveryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.deliveries[id]
	if !ok {
		return nil, fmt.Errorf("delivery %s: %w", id, sentinel.ErrNotFound)
	}
	out := *d
	return &out, nil
}

// Deliveries returns a snapshot of every record, oldest schedule first.
func (s *MemoryStore) Deliveries() []DeliveryRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]DeliveryRecord, 0, len(s.deliveries))
	for _, d := range s.deliveries {
		out = append(out, *d)
	}
	sortDue(out)
	return out
}

func (s *MemoryStore) ClaimDue(_ context.Context, now, leaseUntil time.Time, limit int) ([]DeliveryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []*DeliveryRecord
	for _, d := range s.deliveries {
		if d.SentAt != nil || d.ScheduledFor.After(now) {
			continue
		}
		if d.ClaimedUntil != nil && !d.ClaimedUntil.Before(now) {
			continue
		}
		due = append(due, d)
	}
	sort.Slice(due, func(i, j int) bool { return lessDue(*due[i], *due[j]) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	out := make([]DeliveryRecord, 0, len(due))
	for _, d := range due {
		lease := leaseUntil
		d.ClaimedUntil = &lease
		out = append(out, *d)
	}
	return out, nil
}

func (s *MemoryStore) MarkSent(_ context.Context, id string, sentAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.deliveries[id]
	if !ok {
		return fmt.Errorf("delivery %s: %w", id, sentinel.ErrNotFound)
	}
	if d.SentAt != nil {
		return fmt.Errorf("delivery %s: %w", id, sentinel.ErrAlreadySent)
	}
	at := sentAt
	d.SentAt = &at
	d.ClaimedUntil = nil
	return nil
}

func (s *MemoryStore) RecordFailure(_ context.Context, id string, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.deliveries[id]
	if !ok || d.SentAt != nil {
		return fmt.Errorf("pending delivery %s: %w", id, sentinel.ErrNotFound)
	}
	d.Attempts++
	d.LastError = reason
	d.ClaimedUntil = nil
	return nil
}

func lessDue(a, b DeliveryRecord) bool {
	if a.ScheduledFor.Equal(b.ScheduledFor) {
		return a.ID < b.ID
	}
	return a.ScheduledFor.Before(b.ScheduledFor)
}

func sortDue(records []DeliveryRecord) {
	sort.Slice(records, func(i, j int) bool { return lessDue(records[i], records[j]) })
}
