// Package scheduler turns identity captures into follow-up deliveries and
// sends them when they fall due.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"linkgate/pkg/calendar"
	"linkgate/pkg/clock"
	"linkgate/pkg/logging"
	"linkgate/pkg/sentinel"
	"linkgate/pkg/storage"

	"golang.org/x/sync/errgroup"
)

// Delivery is what a sink transmits. Key identifies it across retries.
type Delivery struct {
	ID             string             `json:"id"`
	CaptureID      string             `json:"capture_id"`
	RuleID         string             `json:"rule_id"`
	LinkID         string             `json:"link_id"`
	Email          string             `json:"email"`
	Subject        string             `json:"subject"`
	DestinationURL string             `json:"destination_url,omitempty"`
	Attachment     storage.Attachment `json:"attachment"`
	ScheduledFor   time.Time          `json:"scheduled_for"`
	Attempt        int                `json:"attempt"`
}

// Key is the idempotency key sinks should deduplicate on.
func (d Delivery) Key() string {
	return d.ID
}

// Sink transmits a follow-up. Send may be retried for the same Key.
type Sink interface {
	Send(ctx context.Context, delivery Delivery) error
}

type RuleSource interface {
	ListRulesByLink(ctx context.Context, linkID string) ([]storage.FollowUpRule, error)
}

type Scheduler struct {
	rules       RuleSource
	deliveries  storage.DeliveryStorage
	sink        Sink
	clock       clock.Clock
	location    *time.Location
	overflow    calendar.Overflow
	batchSize   int
	concurrency int
	sinkTimeout time.Duration
	lease       time.Duration
	logger      *logging.Logger
	metrics     *Metrics
}

type Option func(*Scheduler)

// WithLocation sets the time zone hourOfDay is read in. Defaults to UTC.
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) { s.location = loc }
}

// WithMonthOverflow chooses how monthly rules treat months lacking their day.
func WithMonthOverflow(o calendar.Overflow) Option {
	return func(s *Scheduler) { s.overflow = o }
}

func WithBatchSize(n int) Option {
	return func(s *Scheduler) { s.batchSize = n }
}

func WithConcurrency(n int) Option {
	return func(s *Scheduler) { s.concurrency = n }
}

func WithSinkTimeout(d time.Duration) Option {
	return func(s *Scheduler) { s.sinkTimeout = d }
}

// WithLease sets how long a claimed record is hidden from other sweeps.
func WithLease(d time.Duration) Option {
	return func(s *Scheduler) { s.lease = d }
}

func WithClock(c clock.Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

func WithLogger(logger *logging.Logger) Option {
	return func(s *Scheduler) { s.logger = logger }
}

func WithMetrics(m *Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

func New(rules RuleSource, deliveries storage.DeliveryStorage, sink Sink, opts ...Option) (*Scheduler, error) {
	if rules == nil {
		return nil, errors.New("rule source is required")
	}
	if deliveries == nil {
		return nil, errors.New("delivery store is required")
	}
	if sink == nil {
		return nil, errors.New("delivery sink is required")
	}
	s := &Scheduler{
		rules:       rules,
		deliveries:  deliveries,
		sink:        sink,
		clock:       clock.Real{},
		location:    time.UTC,
		overflow:    calendar.Skip,
		batchSize:   100,
		concurrency: 8,
		sinkTimeout: 10 * time.Second,
		logger:      logging.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", s.batchSize)
	}
	if s.concurrency <= 0 {
		return nil, fmt.Errorf("concurrency must be positive, got %d", s.concurrency)
	}
	if s.location == nil {
		return nil, errors.New("location is required")
	}
	if s.lease <= 0 {
		s.lease = 2*s.sinkTimeout + time.Minute
	}
	return s, nil
}

// ScheduleFor computes when rule fires for a capture taken at capturedAt.
func (s *Scheduler) ScheduleFor(rule storage.FollowUpRule, capturedAt time.Time) (time.Time, error) {
	switch rule.Kind {
	case storage.FollowUpCasual:
		if rule.DelayMinutes < 0 {
			return time.Time{}, storage.ErrInvalidDelay
		}
		return capturedAt.Add(time.Duration(rule.DelayMinutes) * time.Minute), nil
	case storage.FollowUpScheduled:
	default:
		return time.Time{}, storage.ErrInvalidKind
	}

	switch rule.Recurrence {
	case storage.RecurDaily:
		return calendar.NextDaily(capturedAt, rule.HourOfDay, s.location)
	case storage.RecurWeekly:
		if rule.DayOfWeek == nil {
			return time.Time{}, storage.ErrInvalidWeekday
		}
		return calendar.NextWeekly(capturedAt, time.Weekday(*rule.DayOfWeek), rule.HourOfDay, s.location)
	case storage.RecurMonthly:
		if rule.DayOfMonth == nil {
			return time.Time{}, storage.ErrInvalidMonthDay
		}
		return calendar.NextMonthly(capturedAt, *rule.DayOfMonth, rule.HourOfDay, s.location, s.overflow)
	}
	return time.Time{}, storage.ErrInvalidRecurrence
}

// EnqueueResult lists the record owed for each active rule.
type EnqueueResult struct {
	Records []storage.DeliveryRecord
	Created int
}

// Enqueue creates a pending record for every enabled and approved rule on the
// capture's link unless one already exists for the pair. Calling it again
// with the same capture changes nothing.
func (s *Scheduler) Enqueue(ctx context.Context, capture storage.IdentityCapture) (EnqueueResult, error) {
	var result EnqueueResult
	rules, err := s.rules.ListRulesByLink(ctx, capture.LinkID)
	if err != nil {
		return result, fmt.Errorf("list rules for link %s: %w", capture.LinkID, err)
	}

	var errs []error
	for _, rule := range rules {
		if !rule.Active() {
			continue
		}
		at, err := s.ScheduleFor(rule, capture.CapturedAt)
		if err != nil {
			s.logger.Warn(ctx, "follow-up rule has no occurrence", "rule_id", rule.ID, "error", err)
			continue
		}
		id, err := storage.NewID(s.clock.Now())
		if err != nil {
			errs = append(errs, err)
			continue
		}

		record, created, err := s.deliveries.CreateDeliveryIfAbsent(ctx, &storage.DeliveryRecord{
			ID:             id,
			CaptureID:      capture.ID,
			RuleID:         rule.ID,
			LinkID:         capture.LinkID,
			Email:          capture.Email,
			Subject:        rule.Subject,
			DestinationURL: rule.DestinationURL,
			Attachment:     rule.Attachment,
			ScheduledFor:   at,
			CreatedAt:      s.clock.Now(),
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("enqueue rule %s: %w", rule.ID, err))
			continue
		}
		if created {
			result.Created++
			s.metrics.enqueued()
			s.logger.Info(ctx, "follow-up scheduled", "delivery_id", record.ID, "rule_id", rule.ID,
				"scheduled_for", record.ScheduledFor)
		}
		result.Records = append(result.Records, *record)
	}
	return result, errors.Join(errs...)
}

// OnCapture is Enqueue without the result.
func (s *Scheduler) OnCapture(ctx context.Context, capture storage.IdentityCapture) error {
	_, err := s.Enqueue(ctx, capture)
	return err
}

type TickReport struct {
	Claimed int
	Sent    int
	Failed  int
	// Skipped counts records another worker had already marked sent.
	Skipped int
}

// Tick sends every pending record due at now. Failed sends stay pending for a
// later tick.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) (TickReport, error) {
	start := time.Now()
	defer func() { s.metrics.observeTick(time.Since(start)) }()

	var report TickReport
	for {
		claimed, err := s.deliveries.ClaimDue(ctx, now, now.Add(s.lease), s.batchSize)
		if err != nil {
			return report, fmt.Errorf("claim due deliveries: %w", err)
		}
		if len(claimed) == 0 {
			return report, nil
		}
		report.Claimed += len(claimed)

		batch := s.sendBatch(ctx, now, claimed)
		report.Sent += batch.Sent
		report.Failed += batch.Failed
		report.Skipped += batch.Skipped

		if err := ctx.Err(); err != nil {
			return report, err
		}
		// released failures would be claimed again straight away
		if len(claimed) < s.batchSize || batch.Failed > 0 {
			return report, nil
		}
	}
}

func (s *Scheduler) sendBatch(ctx context.Context, now time.Time, records []storage.DeliveryRecord) TickReport {
	var (
		mu     sync.Mutex
		report TickReport
	)
	g := new(errgroup.Group)
	g.SetLimit(s.concurrency)
	for _, rec := range records {
		rec := rec
		g.Go(func() error {
			result := s.dispatch(ctx, now, rec)
			mu.Lock()
			defer mu.Unlock()
			switch result {
			case resultSent:
				report.Sent++
			case resultSkipped:
				report.Skipped++
			default:
				report.Failed++
			}
			return nil
		})
	}
	_ = g.Wait()
	return report
}

type dispatchResult string

const (
	resultSent    dispatchResult = "sent"
	resultFailed  dispatchResult = "failed"
	resultSkipped dispatchResult = "skipped"
)

func (s *Scheduler) dispatch(ctx context.Context, now time.Time, rec storage.DeliveryRecord) dispatchResult {
	sendCtx, cancel := context.WithTimeout(ctx, s.sinkTimeout)
	err := s.sink.Send(sendCtx, toDelivery(rec))
	cancel()

	if err != nil {
		s.metrics.delivery(resultFailed)
		s.logger.Warn(ctx, "follow-up send failed", "delivery_id", rec.ID, "attempt", rec.Attempts+1, "error", err)
		if ferr := s.deliveries.RecordFailure(ctx, rec.ID, err.Error()); ferr != nil {
			s.logger.Error(ctx, "could not record delivery failure", "delivery_id", rec.ID, "error", ferr)
		}
		return resultFailed
	}

	if err := s.deliveries.MarkSent(ctx, rec.ID, now); err != nil {
		if errors.Is(err, sentinel.ErrAlreadySent) {
			s.metrics.delivery(resultSkipped)
			return resultSkipped
		}
		// the lease expires and the record is sent again under the same key
		s.metrics.delivery(resultFailed)
		s.logger.Error(ctx, "could not mark delivery sent", "delivery_id", rec.ID, "error", err)
		return resultFailed
	}
	s.metrics.delivery(resultSent)
	s.logger.LogDelivery(ctx, rec.ID, rec.RuleID, rec.Email, string(resultSent))
	return resultSent
}

// Run ticks every interval until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("tick interval must be positive, got %s", interval)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		report, err := s.Tick(ctx, s.clock.Now())
		if err != nil && ctx.Err() == nil {
			s.logger.Error(ctx, "scheduler tick failed", "error", err)
		} else if report.Claimed > 0 {
			s.logger.Info(ctx, "scheduler tick", "claimed", report.Claimed, "sent", report.Sent,
				"failed", report.Failed, "skipped", report.Skipped)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func toDelivery(rec storage.DeliveryRecord) Delivery {
	return Delivery{
		ID:             rec.ID,
		CaptureID:      rec.CaptureID,
		RuleID:         rec.RuleID,
		LinkID:         rec.LinkID,
		Email:          rec.Email,
		Subject:        rec.Subject,
		DestinationURL: rec.DestinationURL,
		Attachment:     rec.Attachment,
		ScheduledFor:   rec.ScheduledFor,
		Attempt:        rec.Attempts + 1,
	}
}
