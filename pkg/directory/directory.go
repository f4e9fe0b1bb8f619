package directory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"linkgate/pkg/cache"
	"linkgate/pkg/logging"
	"linkgate/pkg/sentinel"
	"linkgate/pkg/storage"

	gocache "github.com/patrickmn/go-cache"
)

const (
	defaultLocalTTL    = 30 * time.Second
	defaultRemoteTTL   = 10 * time.Minute
	defaultNegativeTTL = time.Minute
)

// Directory resolves slugs to link configuration through an in-process cache,
// an optional shared cache and finally the store. Store errors other than
// not-found are returned as-is so callers fail closed.
type Directory struct {
	links       storage.LinkStorage
	remote      cache.LinkCacheInterface
	local       *gocache.Cache
	logger      *logging.Logger
	remoteTTL   time.Duration
	negativeTTL time.Duration
}

type Option func(*Directory)

// WithRemoteCache enables the shared cache tier.
func WithRemoteCache(c cache.LinkCacheInterface) Option {
	return func(d *Directory) { d.remote = c }
}

func WithLocalTTL(ttl time.Duration) Option {
	return func(d *Directory) { d.local = gocache.New(ttl, 2*ttl) }
}

func WithRemoteTTL(ttl time.Duration) Option {
	return func(d *Directory) { d.remoteTTL = ttl }
}

func WithNegativeTTL(ttl time.Duration) Option {
	return func(d *Directory) { d.negativeTTL = ttl }
}

func WithLogger(logger *logging.Logger) Option {
	return func(d *Directory) { d.logger = logger }
}

func New(links storage.LinkStorage, opts ...Option) *Directory {
	d := &Directory{
		links:       links,
		local:       gocache.New(defaultLocalTTL, 2*defaultLocalTTL),
		logger:      logging.Discard(),
		remoteTTL:   defaultRemoteTTL,
		negativeTTL: defaultNegativeTTL,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// GetLink returns a copy of the link for slug, or an error wrapping
// sentinel.ErrNotFound when no such link exists.
func (d *Directory) GetLink(ctx context.Context, slug string) (*storage.Link, error) {
	if x, found := d.local.Get(slug); found {
		return fromCached(slug, x.(*cache.CachedLink))
	}

	if d.remote != nil {
		cached, err := d.remote.Get(ctx, slug)
		if err != nil {
			d.logger.Warn(ctx, "link cache read failed", "slug", slug, "error", err)
		} else if cached != nil {
			d.local.Set(slug, cached, d.localTTL(cached))
			return fromCached(slug, cached)
		}
	}

	link, err := d.links.GetBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			d.store(ctx, slug, &cache.CachedLink{Missing: true})
		}
		return nil, err
	}

	d.store(ctx, slug, &cache.CachedLink{Link: link})
	out := *link
	return &out, nil
}

// Invalidate drops slug from both cache tiers.
func (d *Directory) Invalidate(ctx context.Context, slug string) error {
	d.local.Delete(slug)
	if d.remote == nil {
		return nil
	}
	return d.remote.Delete(ctx, slug)
}

func (d *Directory) store(ctx context.Context, slug string, entry *cache.CachedLink) {
	d.local.Set(slug, entry, d.localTTL(entry))
	if d.remote == nil {
		return
	}
	ttl := d.remoteTTL
	if entry.Missing {
		ttl = d.negativeTTL
	}
	if err := d.remote.Set(ctx, slug, entry, ttl); err != nil {
		d.logger.Warn(ctx, "link cache write failed", "slug", slug, "error", err)
	}
}

func (d *Directory) localTTL(entry *cache.CachedLink) time.Duration {
	if entry.Missing {
		return d.negativeTTL
	}
	return gocache.DefaultExpiration
}

func fromCached(slug string, entry *cache.CachedLink) (*storage.Link, error) {
	if entry.Missing || entry.Link == nil {
		return nil, fmt.Errorf("link %s: %w", slug, sentinel.ErrNotFound)
	}
	out := *entry.Link
	return &out, nil
}
