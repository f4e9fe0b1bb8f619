package gateway

import (
	"context"
	"errors"
	"time"

	"linkgate/pkg/clock"
	"linkgate/pkg/identity"
	"linkgate/pkg/logging"
	"linkgate/pkg/sentinel"
	"linkgate/pkg/storage"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("linkgate/gateway")

type LinkDirectory interface {
	GetLink(ctx context.Context, slug string) (*storage.Link, error)
}

type VisitLedger interface {
	RecordVisit(ctx context.Context, visit storage.Visit) (bool, error)
}

type IdentityVerifier interface {
	VerifyIdentity(ctx context.Context, cred identity.Credential) (string, error)
}

type CaptureStore interface {
	CreateCaptureIfAbsent(ctx context.Context, capture *storage.IdentityCapture) (*storage.IdentityCapture, bool, error)
}

// CaptureHandler receives every verified capture. It must tolerate seeing the
// same capture more than once.
type CaptureHandler interface {
	OnCapture(ctx context.Context, capture storage.IdentityCapture) error
}

// Request is one visitor hit on a slug.
type Request struct {
	Slug       string
	SessionKey string
	Credential *identity.Credential
	// Declined is set when the visitor dismisses an optional identity prompt.
	Declined  bool
	UserAgent string
	Referer   string
}

// Prompt describes the identity step shown while a link awaits identity.
type Prompt struct {
	Slug        string             `json:"slug"`
	Channels    []identity.Channel `json:"channels"`
	Optional    bool               `json:"optional"`
	ButtonLabel string             `json:"button_label,omitempty"`
	ButtonColor string             `json:"button_color,omitempty"`
	Category    string             `json:"category,omitempty"`
	ImageURL    string             `json:"image_url,omitempty"`
	Description string             `json:"description,omitempty"`
}

// Outcome is where a request came to rest. Trail lists every state visited.
type Outcome struct {
	State      State
	Trail      []State
	RedirectTo string
	Prompt     *Prompt
	Capture    *storage.IdentityCapture
	FirstVisit bool
	Err        error
}

func (o *Outcome) enter(s State) {
	o.State = s
	o.Trail = append(o.Trail, s)
}

type Gateway struct {
	directory       LinkDirectory
	ledger          VisitLedger
	verifier        IdentityVerifier
	captures        CaptureStore
	handler         CaptureHandler
	clock           clock.Clock
	logger          *logging.Logger
	metrics         *Metrics
	identityTimeout time.Duration
}

type Option func(*Gateway)

func WithCaptureHandler(h CaptureHandler) Option {
	return func(g *Gateway) { g.handler = h }
}

func WithClock(c clock.Clock) Option {
	return func(g *Gateway) { g.clock = c }
}

func WithLogger(logger *logging.Logger) Option {
	return func(g *Gateway) { g.logger = logger }
}

func WithMetrics(m *Metrics) Option {
	return func(g *Gateway) { g.metrics = m }
}

// WithIdentityTimeout bounds each call to the identity verifier.
func WithIdentityTimeout(d time.Duration) Option {
	return func(g *Gateway) { g.identityTimeout = d }
}

func New(directory LinkDirectory, ledger VisitLedger, verifier IdentityVerifier, captures CaptureStore, opts ...Option) (*Gateway, error) {
	if directory == nil {
		return nil, errors.New("link directory is required")
	}
	if ledger == nil {
		return nil, errors.New("visit ledger is required")
	}
	if verifier == nil {
		return nil, errors.New("identity verifier is required")
	}
	if captures == nil {
		return nil, errors.New("capture store is required")
	}
	g := &Gateway{
		directory:       directory,
		ledger:          ledger,
		verifier:        verifier,
		captures:        captures,
		clock:           clock.Real{},
		logger:          logging.Discard(),
		identityTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Resolve runs the redirect state machine for one request. It never returns
// a destination for a link whose configuration could not be read.
func (g *Gateway) Resolve(ctx context.Context, req Request) Outcome {
	ctx, span := tracer.Start(ctx, "Gateway.Resolve")
	defer span.End()
	span.SetAttributes(attribute.String("slug", req.Slug))

	out := Outcome{}
	out.enter(StateInit)
	g.resolve(ctx, req, &out)

	span.SetAttributes(attribute.String("state", string(out.State)))
	if out.Err != nil {
		span.RecordError(out.Err)
		span.SetStatus(codes.Error, out.Err.Error())
	}
	g.metrics.outcome(out.State)
	g.logger.LogGatewayOutcome(ctx, req.Slug, string(out.State), out.FirstVisit)
	return out
}

func (g *Gateway) resolve(ctx context.Context, req Request, out *Outcome) {
	out.enter(StateLookup)
	link, ok := g.lookup(ctx, req.Slug, out)
	if !ok {
		return
	}

	pol, err := policyFor(link.IdentityMode)
	if err != nil {
		g.logger.Error(ctx, "link has unusable identity mode", "slug", req.Slug, "error", err)
		out.enter(StateNotFound)
		out.Err = &ConfigError{Slug: req.Slug, Reason: ReasonUnavailable, Err: err}
		return
	}

	if !pol.requireIdentity {
		out.enter(StatePassthrough)
		g.recordVisit(ctx, req, out)
		g.release(link, out)
		return
	}

	out.enter(StateAwaitIdentity)
	g.recordVisit(ctx, req, out)

	if req.Credential == nil {
		if req.Declined && pol.allowFallback {
			g.release(link, out)
			return
		}
		out.State = StateAwaitIdentity
		out.Prompt = promptFor(link, pol)
		return
	}

	g.identify(ctx, req, link, pol, out)
}

func (g *Gateway) lookup(ctx context.Context, slug string, out *Outcome) (*storage.Link, bool) {
	if !ValidSlug(slug) {
		out.enter(StateNotFound)
		out.Err = &ConfigError{Slug: slug, Reason: ReasonNotFound, Err: ErrInvalidSlug}
		return nil, false
	}

	link, err := g.directory.GetLink(ctx, slug)
	if err != nil {
		out.enter(StateNotFound)
		if errors.Is(err, sentinel.ErrNotFound) {
			out.Err = &ConfigError{Slug: slug, Reason: ReasonNotFound, Err: err}
		} else {
			g.logger.Error(ctx, "link directory unavailable", "slug", slug, "error", err)
			out.Err = &ConfigError{Slug: slug, Reason: ReasonUnavailable, Err: err}
		}
		return nil, false
	}
	if !link.IsActive {
		out.enter(StateInactive)
		out.Err = &ConfigError{Slug: slug, Reason: ReasonInactive}
		return nil, false
	}
	return link, true
}

// recordVisit is best-effort; the first-time flag is informational.
func (g *Gateway) recordVisit(ctx context.Context, req Request, out *Outcome) {
	first, err := g.ledger.RecordVisit(ctx, storage.Visit{
		Slug:       req.Slug,
		SessionKey: req.SessionKey,
		At:         g.clock.Now(),
		UserAgent:  req.UserAgent,
		Referer:    req.Referer,
		Device:     storage.ClassifyDevice(req.UserAgent),
	})
	if err != nil {
		g.metrics.ledgerFailure()
		g.logger.Warn(ctx, "visit not recorded", "error", &LedgerError{Slug: req.Slug, Err: err},
			"session", logging.MaskSessionKey(req.SessionKey))
	}
	out.FirstVisit = first
	out.enter(StateVisitRecorded)
}

func (g *Gateway) identify(ctx context.Context, req Request, link *storage.Link, pol policy, out *Outcome) {
	cred := *req.Credential
	channel := string(cred.Channel)

	if cred.Channel == identity.ChannelPassive && !pol.acceptPassive {
		g.metrics.verification(channel, "refused")
		g.reject(out, channel, ErrPassiveNotAccepted)
		return
	}

	vctx, cancel := context.WithTimeout(ctx, g.identityTimeout)
	email, err := g.verifier.VerifyIdentity(vctx, cred)
	cancel()
	if err != nil {
		g.metrics.verification(channel, "failed")
		g.logger.LogIdentityEvent(ctx, channel, "", false)
		if cred.Channel == identity.ChannelPassive && pol.allowFallback {
			g.release(link, out)
			return
		}
		g.reject(out, channel, err)
		return
	}
	g.metrics.verification(channel, "verified")
	g.logger.LogIdentityEvent(ctx, channel, email, true)

	now := g.clock.Now()
	id, err := storage.NewID(now)
	if err != nil {
		g.reject(out, channel, err)
		return
	}
	capture, _, err := g.captures.CreateCaptureIfAbsent(ctx, &storage.IdentityCapture{
		ID:         id,
		LinkID:     link.ID,
		Slug:       link.Slug,
		SessionKey: req.SessionKey,
		Email:      email,
		Channel:    channel,
		CapturedAt: now,
	})
	if err != nil {
		g.logger.Error(ctx, "identity capture not stored", "slug", link.Slug, "error", err)
		g.reject(out, channel, err)
		return
	}

	out.enter(StateIdentityVerified)
	out.Capture = capture
	g.handOff(ctx, *capture)
	g.release(link, out)
}

func (g *Gateway) handOff(ctx context.Context, capture storage.IdentityCapture) {
	if g.handler == nil {
		return
	}
	if err := g.handler.OnCapture(ctx, capture); err != nil {
		g.metrics.handoffFailure()
		g.logger.Error(ctx, "capture hand-off failed", "capture_id", capture.ID, "error", err)
	}
}

func (g *Gateway) reject(out *Outcome, channel string, err error) {
	out.enter(StateIdentityRejected)
	out.Err = &IdentityError{Channel: channel, Retryable: true, Err: err}
}

func (g *Gateway) release(link *storage.Link, out *Outcome) {
	out.RedirectTo = link.DestinationURL
	out.enter(StateReleased)
}

func promptFor(link *storage.Link, pol policy) *Prompt {
	return &Prompt{
		Slug:        link.Slug,
		Channels:    pol.channels(),
		Optional:    pol.allowFallback,
		ButtonLabel: link.ButtonLabel,
		ButtonColor: link.ButtonColor,
		Category:    link.Category,
		ImageURL:    link.ImageURL,
		Description: link.Description,
	}
}
