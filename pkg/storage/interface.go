package storage

import (
	"context"
	"time"
)

// Error contract: lookups return sentinel.ErrNotFound (wrapped) when the
// entity is absent; infrastructure failures are returned wrapped with context.

type LinkStorage interface {
	Create(ctx context.Context, link *Link) error
	GetBySlug(ctx context.Context, slug string) (*Link, error)
}

// VisitLedger counts at most one visit per (slug, session key). firstTime is
// true only for the call that recorded it.
type VisitLedger interface {
	RecordVisit(ctx context.Context, visit Visit) (firstTime bool, err error)
}

type RuleStorage interface {
	CreateRule(ctx context.Context, rule *FollowUpRule) error
	UpdateRule(ctx context.Context, rule *FollowUpRule) error
	DeleteRule(ctx context.Context, id string) error
	ListRulesByLink(ctx context.Context, linkID string) ([]FollowUpRule, error)
}

type CaptureStorage interface {
	// CreateCaptureIfAbsent stores capture unless one already exists for its
	// (slug, session key); the stored capture is returned either way.
	CreateCaptureIfAbsent(ctx context.Context, capture *IdentityCapture) (*IdentityCapture, bool, error)
	GetCapture(ctx context.Context, id string) (*IdentityCapture, error)
}

type DeliveryStorage interface {
	// CreateDeliveryIfAbsent atomically inserts record unless one exists for
	// its (capture, rule); the stored record is returned either way.
	CreateDeliveryIfAbsent(ctx context.Context, record *DeliveryRecord) (*DeliveryRecord, bool, error)
	GetDelivery(ctx context.Context, id string) (*DeliveryRecord, error)
	// ClaimDue leases up to limit pending records scheduled at or before now
	// until leaseUntil, oldest first. Records under an unexpired lease are not
	// returned, so overlapping sweeps never hand the same record to the sink.
	ClaimDue(ctx context.Context, now, leaseUntil time.Time, limit int) ([]DeliveryRecord, error)
	// MarkSent moves a pending record to sent. It returns sentinel.ErrAlreadySent
	// if the record is no longer pending.
	MarkSent(ctx context.Context, id string, sentAt time.Time) error
	// RecordFailure counts a failed attempt and releases the lease; the record
	// stays pending.
	RecordFailure(ctx context.Context, id string, reason string) error
}

// Store bundles every persistence concern a backend provides.
type Store interface {
	LinkStorage
	VisitLedger
	RuleStorage
	CaptureStorage
	DeliveryStorage
	Close() error
}
