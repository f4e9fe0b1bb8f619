package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"linkgate/pkg/calendar"
	"linkgate/pkg/clock"
	"linkgate/pkg/storage"
)

type fakeSink struct {
	mu    sync.Mutex
	sent  map[string]int
	fail  func(Delivery) error
	order []string
}

func newFakeSink() *fakeSink {
	return &fakeSink{sent: make(map[string]int)}
}

func (f *fakeSink) Send(ctx context.Context, d Delivery) error {
	if f.fail != nil {
		if err := f.fail(d); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent[d.Key()]++
	f.order = append(f.order, d.Key())
	return nil
}

func (f *fakeSink) count(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent[key]
}

func (f *fakeSink) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.order)
}

type SchedulerSuite struct {
	suite.Suite
	store   *storage.MemoryStore
	sink    *fakeSink
	clock   *clock.Manual
	metrics *Metrics
	sched   *Scheduler
	ctx     context.Context
}

func TestSchedulerSuite(t *testing.T) {
	suite.Run(t, new(SchedulerSuite))
}

func (s *SchedulerSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = storage.NewMemoryStore()
	s.sink = newFakeSink()
	s.clock = clock.NewManual(time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC))
	s.metrics = NewMetrics(prometheus.NewRegistry())
	s.sched = s.newScheduler()
}

func (s *SchedulerSuite) newScheduler(opts ...Option) *Scheduler {
	base := []Option{WithClock(s.clock), WithMetrics(s.metrics), WithSinkTimeout(time.Second)}
	sched, err := New(s.store, s.store, s.sink, append(base, opts...)...)
	s.Require().NoError(err)
	return sched
}

func intPtr(n int) *int { return &n }

var guide = storage.Attachment{Kind: storage.AttachmentPDF, URL: "https://cdn.example.com/guide.pdf"}

func casualRule(id string, delay int) *storage.FollowUpRule {
	return &storage.FollowUpRule{
		ID: id, LinkID: "link-1", Enabled: true, Approved: true,
		Kind: storage.FollowUpCasual, DelayMinutes: delay,
		Subject: "Your guide", Attachment: guide,
	}
}

func (s *SchedulerSuite) addRule(r *storage.FollowUpRule) {
	s.Require().NoError(s.store.CreateRule(s.ctx, r))
}

func capture(id string, at time.Time) storage.IdentityCapture {
	return storage.IdentityCapture{
		ID: id, LinkID: "link-1", Slug: "promo", SessionKey: "s-" + id,
		Email: "jane@example.com", Channel: "explicit", CapturedAt: at,
	}
}

func (s *SchedulerSuite) TestNew() {
	s.Run("requires collaborators", func() {
		_, err := New(nil, s.store, s.sink)
		s.ErrorContains(err, "rule source is required")
		_, err = New(s.store, nil, s.sink)
		s.ErrorContains(err, "delivery store is required")
		_, err = New(s.store, s.store, nil)
		s.ErrorContains(err, "delivery sink is required")
	})

	s.Run("rejects non-positive sizes", func() {
		_, err := New(s.store, s.store, s.sink, WithBatchSize(0))
		s.Error(err)
		_, err = New(s.store, s.store, s.sink, WithConcurrency(-1))
		s.Error(err)
	})
}

func (s *SchedulerSuite) TestScheduleFor() {
	captured := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	s.Run("casual adds the delay", func() {
		at, err := s.sched.ScheduleFor(*casualRule("r", 90), captured)
		s.Require().NoError(err)
		s.Equal(time.Date(2024, 1, 1, 11, 30, 0, 0, time.UTC), at)
	})

	s.Run("daily later the same day", func() {
		rule := storage.FollowUpRule{Kind: storage.FollowUpScheduled, Recurrence: storage.RecurDaily, HourOfDay: 18}
		at, err := s.sched.ScheduleFor(rule, captured)
		s.Require().NoError(err)
		s.Equal(time.Date(2024, 1, 1, 18, 0, 0, 0, time.UTC), at)
	})

	s.Run("daily rolls to tomorrow once the hour passed", func() {
		rule := storage.FollowUpRule{Kind: storage.FollowUpScheduled, Recurrence: storage.RecurDaily, HourOfDay: 9}
		at, err := s.sched.ScheduleFor(rule, captured)
		s.Require().NoError(err)
		s.Equal(time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC), at)
	})

	s.Run("weekly picks the upcoming weekday", func() {
		tuesday := time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)
		rule := storage.FollowUpRule{Kind: storage.FollowUpScheduled, Recurrence: storage.RecurWeekly,
			HourOfDay: 14, DayOfWeek: intPtr(int(time.Friday))}
		at, err := s.sched.ScheduleFor(rule, tuesday)
		s.Require().NoError(err)
		s.Equal(time.Date(2024, 1, 5, 14, 0, 0, 0, time.UTC), at)
	})

	s.Run("monthly in a long month", func() {
		rule := storage.FollowUpRule{Kind: storage.FollowUpScheduled, Recurrence: storage.RecurMonthly,
			HourOfDay: 9, DayOfMonth: intPtr(31)}
		at, err := s.sched.ScheduleFor(rule, time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC))
		s.Require().NoError(err)
		s.Equal(time.Date(2024, 1, 31, 9, 0, 0, 0, time.UTC), at)
	})

	s.Run("monthly skips February by default", func() {
		rule := storage.FollowUpRule{Kind: storage.FollowUpScheduled, Recurrence: storage.RecurMonthly,
			HourOfDay: 9, DayOfMonth: intPtr(31)}
		at, err := s.sched.ScheduleFor(rule, time.Date(2024, 2, 20, 0, 0, 0, 0, time.UTC))
		s.Require().NoError(err)
		s.Equal(time.Date(2024, 3, 31, 9, 0, 0, 0, time.UTC), at)
	})

	s.Run("monthly clamps when configured", func() {
		sched := s.newScheduler(WithMonthOverflow(calendar.Clamp))
		rule := storage.FollowUpRule{Kind: storage.FollowUpScheduled, Recurrence: storage.RecurMonthly,
			HourOfDay: 9, DayOfMonth: intPtr(31)}
		at, err := sched.ScheduleFor(rule, time.Date(2024, 2, 20, 0, 0, 0, 0, time.UTC))
		s.Require().NoError(err)
		s.Equal(time.Date(2024, 2, 29, 9, 0, 0, 0, time.UTC), at)
	})

	s.Run("hour is read in the configured zone", func() {
		est := time.FixedZone("EST", -5*3600)
		sched := s.newScheduler(WithLocation(est))
		rule := storage.FollowUpRule{Kind: storage.FollowUpScheduled, Recurrence: storage.RecurDaily, HourOfDay: 9}
		at, err := sched.ScheduleFor(rule, captured)
		s.Require().NoError(err)
		s.True(at.Equal(time.Date(2024, 1, 1, 14, 0, 0, 0, time.UTC)))
	})

	s.Run("weekly without a weekday is invalid", func() {
		rule := storage.FollowUpRule{Kind: storage.FollowUpScheduled, Recurrence: storage.RecurWeekly, HourOfDay: 9}
		_, err := s.sched.ScheduleFor(rule, captured)
		s.ErrorIs(err, storage.ErrInvalidWeekday)
	})
}

func (s *SchedulerSuite) TestOnCaptureIsIdempotent() {
	s.addRule(casualRule("rule-1", 90))
	s.addRule(casualRule("rule-2", 0))
	c := capture("cap-1", s.clock.Now())

	first, err := s.sched.Enqueue(s.ctx, c)
	s.Require().NoError(err)
	s.Equal(2, first.Created)

	second, err := s.sched.Enqueue(s.ctx, c)
	s.Require().NoError(err)
	s.Equal(0, second.Created)
	s.Len(second.Records, 2)

	s.Require().NoError(s.sched.OnCapture(s.ctx, c))
	s.Len(s.store.Deliveries(), 2)
	s.Equal(2.0, testutil.ToFloat64(s.metrics.Enqueued))
}

func (s *SchedulerSuite) TestEnqueueSnapshotsRulePayload() {
	rule := casualRule("rule-1", 90)
	rule.DestinationURL = "https://example.com/next"
	s.addRule(rule)

	res, err := s.sched.Enqueue(s.ctx, capture("cap-1", s.clock.Now()))
	s.Require().NoError(err)
	s.Require().Len(res.Records, 1)
	rec := res.Records[0]
	s.Equal("jane@example.com", rec.Email)
	s.Equal("Your guide", rec.Subject)
	s.Equal("https://example.com/next", rec.DestinationURL)
	s.Equal(guide, rec.Attachment)
	s.Equal(time.Date(2024, 1, 1, 11, 30, 0, 0, time.UTC), rec.ScheduledFor)
	s.Equal(storage.DeliveryPending, rec.Status())
}

func (s *SchedulerSuite) TestInactiveRulesAreNotEnqueued() {
	disabled := casualRule("rule-disabled", 0)
	disabled.Enabled = false
	unapproved := casualRule("rule-unapproved", 0)
	unapproved.Approved = false
	s.addRule(disabled)
	s.addRule(unapproved)

	res, err := s.sched.Enqueue(s.ctx, capture("cap-1", s.clock.Now()))
	s.Require().NoError(err)
	s.Empty(res.Records)

	// Re-enabling does not backfill captures taken while the rule was off.
	disabled.Enabled = true
	s.Require().NoError(s.store.UpdateRule(s.ctx, disabled))
	report, err := s.sched.Tick(s.ctx, s.clock.Advance(time.Hour))
	s.Require().NoError(err)
	s.Zero(report.Claimed)
	s.Empty(s.store.Deliveries())
}

func (s *SchedulerSuite) TestRecreatedRuleDoesNotDuplicate() {
	s.addRule(casualRule("rule-old", 0))
	c := capture("cap-1", s.clock.Now())
	_, err := s.sched.Enqueue(s.ctx, c)
	s.Require().NoError(err)
	_, err = s.sched.Tick(s.ctx, s.clock.Now())
	s.Require().NoError(err)

	s.Require().NoError(s.store.DeleteRule(s.ctx, "rule-old"))
	s.addRule(casualRule("rule-new", 0))
	_, err = s.sched.Enqueue(s.ctx, c)
	s.Require().NoError(err)
	_, err = s.sched.Tick(s.ctx, s.clock.Now())
	s.Require().NoError(err)

	perRule := map[string]int{}
	for _, d := range s.store.Deliveries() {
		perRule[d.RuleID]++
		s.Equal(storage.DeliverySent, d.Status())
	}
	s.Equal(map[string]int{"rule-old": 1, "rule-new": 1}, perRule)
	s.Equal(2, s.sink.total())
}

func (s *SchedulerSuite) TestTickSendsDueRecordsOnce() {
	s.addRule(casualRule("rule-1", 90))
	res, err := s.sched.Enqueue(s.ctx, capture("cap-1", s.clock.Now()))
	s.Require().NoError(err)
	id := res.Records[0].ID

	report, err := s.sched.Tick(s.ctx, s.clock.Advance(89*time.Minute))
	s.Require().NoError(err)
	s.Zero(report.Claimed)
	s.Zero(s.sink.count(id))

	now := s.clock.Advance(time.Minute)
	report, err = s.sched.Tick(s.ctx, now)
	s.Require().NoError(err)
	s.Equal(TickReport{Claimed: 1, Sent: 1}, report)

	rec, err := s.store.GetDelivery(s.ctx, id)
	s.Require().NoError(err)
	s.Require().NotNil(rec.SentAt)
	s.Equal(now, *rec.SentAt)

	report, err = s.sched.Tick(s.ctx, s.clock.Advance(time.Hour))
	s.Require().NoError(err)
	s.Zero(report.Claimed)
	s.Equal(1, s.sink.count(id))
}

func (s *SchedulerSuite) TestSinkFailureLeavesRecordPending() {
	s.addRule(casualRule("rule-1", 0))
	res, err := s.sched.Enqueue(s.ctx, capture("cap-1", s.clock.Now()))
	s.Require().NoError(err)
	id := res.Records[0].ID

	s.sink.fail = func(Delivery) error { return errors.New("smtp unavailable") }
	report, err := s.sched.Tick(s.ctx, s.clock.Now())
	s.Require().NoError(err)
	s.Equal(TickReport{Claimed: 1, Failed: 1}, report)

	rec, err := s.store.GetDelivery(s.ctx, id)
	s.Require().NoError(err)
	s.Equal(storage.DeliveryPending, rec.Status())
	s.Equal(1, rec.Attempts)
	s.Equal("smtp unavailable", rec.LastError)

	var attempt int
	s.sink.fail = func(d Delivery) error { attempt = d.Attempt; return nil }
	report, err = s.sched.Tick(s.ctx, s.clock.Advance(time.Minute))
	s.Require().NoError(err)
	s.Equal(1, report.Sent)
	s.Equal(2, attempt)
	s.Equal(1, s.sink.count(id))
}

func (s *SchedulerSuite) TestSinkTimeoutCountsAsFailure() {
	s.addRule(casualRule("rule-1", 0))
	_, err := s.sched.Enqueue(s.ctx, capture("cap-1", s.clock.Now()))
	s.Require().NoError(err)

	blocking := &blockingSink{}
	sched, err := New(s.store, s.store, blocking, WithSinkTimeout(20*time.Millisecond))
	s.Require().NoError(err)

	report, err := sched.Tick(s.ctx, s.clock.Now())
	s.Require().NoError(err)
	s.Equal(1, report.Failed)
	s.Equal(storage.DeliveryPending, s.store.Deliveries()[0].Status())
}

type blockingSink struct{}

func (blockingSink) Send(ctx context.Context, _ Delivery) error {
	<-ctx.Done()
	return ctx.Err()
}

func (s *SchedulerSuite) TestDisabledAfterEnqueueStillFires() {
	rule := casualRule("rule-1", 30)
	s.addRule(rule)
	res, err := s.sched.Enqueue(s.ctx, capture("cap-1", s.clock.Now()))
	s.Require().NoError(err)

	rule.Enabled = false
	s.Require().NoError(s.store.UpdateRule(s.ctx, rule))

	report, err := s.sched.Tick(s.ctx, s.clock.Advance(30*time.Minute))
	s.Require().NoError(err)
	s.Equal(1, report.Sent)
	s.Equal(1, s.sink.count(res.Records[0].ID))
}

func (s *SchedulerSuite) TestAlreadySentRecordIsSkipped() {
	s.addRule(casualRule("rule-1", 0))
	_, err := s.sched.Enqueue(s.ctx, capture("cap-1", s.clock.Now()))
	s.Require().NoError(err)

	// another worker finishes the record while this one is sending
	s.sink.fail = func(d Delivery) error {
		return s.store.MarkSent(context.Background(), d.ID, s.clock.Now())
	}
	report, err := s.sched.Tick(s.ctx, s.clock.Now())
	s.Require().NoError(err)
	s.Equal(TickReport{Claimed: 1, Skipped: 1}, report)
}

func (s *SchedulerSuite) TestOverlappingTicksNeverDoubleSend() {
	s.addRule(casualRule("rule-1", 0))
	for i := 0; i < 50; i++ {
		_, err := s.sched.Enqueue(s.ctx, capture(fmt.Sprintf("cap-%02d", i), s.clock.Now()))
		s.Require().NoError(err)
	}
	sched := s.newScheduler(WithBatchSize(7), WithConcurrency(4))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = sched.Tick(s.ctx, s.clock.Now())
		}()
	}
	wg.Wait()

	s.Equal(50, s.sink.total())
	for _, d := range s.store.Deliveries() {
		s.Equal(1, s.sink.count(d.ID))
		s.Equal(storage.DeliverySent, d.Status())
	}
}

func (s *SchedulerSuite) TestRunTicksUntilCancelled() {
	s.addRule(casualRule("rule-1", 0))
	_, err := s.sched.Enqueue(s.ctx, capture("cap-1", s.clock.Now()))
	s.Require().NoError(err)

	ctx, cancel := context.WithCancel(s.ctx)
	done := make(chan error, 1)
	go func() { done <- s.sched.Run(ctx, 10*time.Millisecond) }()

	s.Eventually(func() bool { return s.sink.total() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	s.NoError(<-done)
}
