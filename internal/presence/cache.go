// Package presence answers how many diplomatic missions one country keeps in
// another. Lookups try several spellings of each country against a
// literal-matching upstream and remember the outcome for a fixed TTL.
package presence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/neexbeast/greenscore/internal/metrics"
	"github.com/neexbeast/greenscore/internal/upstream"
)

// DefaultTTL is how long a lookup outcome is reused.
const DefaultTTL = 5 * time.Minute

// sharedFlightRetries bounds how often a caller re-runs a lookup whose
// shared flight was cancelled by another caller.
const sharedFlightRetries = 2

// storeTimeout bounds writing an entry once the lookup's own deadline passed.
const storeTimeout = 2 * time.Second

// Resolver maps a free-form country name to its identifying fields.
type Resolver interface {
	Resolve(ctx context.Context, name string) (*upstream.CountryProfile, error)
}

// Fetcher queries the mission directory for one spelling pair.
type Fetcher interface {
	Fetch(ctx context.Context, source, destination string) (*upstream.Presence, error)
}

// VariantPair is the spelling pair that produced a match.
type VariantPair struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
}

// Attempt records one failed spelling pair.
type Attempt struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
	Error       string `json:"error"`
}

// Entry is the stored outcome of a lookup. Entries are never mutated after
// they are created.
type Entry struct {
	Count        int                `json:"count"`
	Missions     []upstream.Mission `json:"missions,omitempty"`
	UsedVariant  *VariantPair       `json:"used_variant,omitempty"`
	FallbackUsed bool               `json:"fallback_used"`
	Failures     []Attempt          `json:"failures,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
	ExpiresAt    time.Time          `json:"expires_at"`
}

// Store persists entries by key. Get returns (nil, nil) on a miss. Put must
// not replace an entry that is still valid at the new entry's CreatedAt.
type Store interface {
	Get(ctx context.Context, key string) (*Entry, error)
	Put(ctx context.Context, key string, entry *Entry) error
}

// Result is what callers see for a lookup.
type Result struct {
	Source          string       `json:"source"`
	Destination     string       `json:"destination"`
	Count           int          `json:"count"`
	UsedVariant     *VariantPair `json:"used_variant,omitempty"`
	ServedFromCache bool         `json:"served_from_cache"`
	FallbackUsed    bool         `json:"fallback_used"`
	Failures        []Attempt    `json:"failures,omitempty"`
}

// Cache is safe for concurrent use.
type Cache struct {
	store    Store
	resolver Resolver
	fetcher  Fetcher
	ttl      time.Duration
	now      func() time.Time
	senders  []string
	fallback map[string]int
	log      *slog.Logger
	group    singleflight.Group
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL overrides DefaultTTL. Non-positive values are ignored.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithSenders replaces the list of countries summed by Total.
func WithSenders(senders ...string) Option {
	return func(c *Cache) {
		c.senders = make([]string, 0, len(senders))
		for _, s := range senders {
			c.senders = append(c.senders, normalize(s))
		}
	}
}

// WithFallbackTable replaces the static per-destination fallback counts.
func WithFallbackTable(table map[string]int) Option {
	return func(c *Cache) {
		c.fallback = make(map[string]int, len(table))
		for k, v := range table {
			c.fallback[normalize(k)] = v
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *Cache) { c.log = log }
}

// NewCache wires a Cache over store, resolving spellings with resolver and
// querying fetcher.
func NewCache(store Store, resolver Resolver, fetcher Fetcher, opts ...Option) *Cache {
	c := &Cache{
		store:    store,
		resolver: resolver,
		fetcher:  fetcher,
		ttl:      DefaultTTL,
		now:      time.Now,
		senders:  majorSenders,
		fallback: defaultFallback,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Key is the cache key for a country pair.
func Key(source, destination string) string {
	return normalize(source) + "|" + normalize(destination)
}

// Lookup returns the mission count of source in destination. It only fails
// when ctx is cancelled. Upstream failures and an expired ctx deadline end in
// the fallback table, and that outcome is cached like any other.
func (c *Cache) Lookup(ctx context.Context, source, destination string) (Result, error) {
	src, dst := normalize(source), normalize(destination)
	entry, cached, err := c.lookup(ctx, src, dst)
	if err != nil {
		return Result{}, err
	}
	return toResult(src, dst, entry, cached), nil
}

func (c *Cache) lookup(ctx context.Context, src, dst string) (*Entry, bool, error) {
	key := src + "|" + dst

	if entry := c.cached(ctx, key); entry != nil {
		metrics.PresenceLookupsTotal.WithLabelValues("hit").Inc()
		return entry, true, nil
	}

	type flight struct {
		entry  *Entry
		cached bool
	}

	for attempt := 0; ; attempt++ {
		v, err, shared := c.group.Do(key, func() (any, error) {
			if entry := c.cached(ctx, key); entry != nil {
				return flight{entry: entry, cached: true}, nil
			}
			entry, err := c.search(ctx, src, dst)
			if err != nil {
				return nil, err
			}
			c.put(ctx, key, entry)
			return flight{entry: entry}, nil
		})
		if err != nil {
			// The flight ran on another caller's context; retry on ours.
			if shared && ctx.Err() == nil && attempt < sharedFlightRetries {
				continue
			}
			return nil, false, err
		}

		f := v.(flight)
		switch {
		case f.cached:
			metrics.PresenceLookupsTotal.WithLabelValues("hit").Inc()
		case f.entry.FallbackUsed:
			metrics.PresenceLookupsTotal.WithLabelValues("fallback").Inc()
		default:
			metrics.PresenceLookupsTotal.WithLabelValues("miss").Inc()
		}
		return f.entry, f.cached, nil
	}
}

// cached returns a still-valid entry or nil. Store errors count as a miss.
func (c *Cache) cached(ctx context.Context, key string) *Entry {
	entry, err := c.store.Get(ctx, key)
	if err != nil {
		c.log.Warn("reading presence entry failed", "key", key, "err", err)
		return nil
	}
	if entry == nil || !c.now().Before(entry.ExpiresAt) {
		return nil
	}
	return entry
}

// put stores entry even when ctx has already run out of time.
func (c *Cache) put(ctx context.Context, key string, entry *Entry) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
	defer cancel()

	if err := c.store.Put(ctx, key, entry); err != nil {
		c.log.Warn("storing presence entry failed", "key", key, "err", err)
	}
}

// search walks the cartesian product of spellings until one pair matches.
// A cancelled ctx aborts with its error; an expired deadline stops the walk
// and falls back like any other upstream failure.
func (c *Cache) search(ctx context.Context, src, dst string) (*Entry, error) {
	sources := c.variants(ctx, src)
	destinations := c.variants(ctx, dst)

	var (
		failures []Attempt
		timedOut bool
	)
pairs:
	for _, s := range sources {
		for _, d := range destinations {
			if err := ctx.Err(); err != nil {
				if errors.Is(err, context.Canceled) {
					return nil, err
				}
				timedOut = true
				break pairs
			}

			p, err := c.fetcher.Fetch(ctx, s.Name, d.Name)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					if errors.Is(ctxErr, context.Canceled) {
						return nil, ctxErr
					}
					failures = append(failures, Attempt{Source: s.Name, Destination: d.Name, Error: "timed out"})
					timedOut = true
					break pairs
				}
				failures = append(failures, Attempt{Source: s.Name, Destination: d.Name, Error: describe(err)})
				continue
			}

			return c.newEntry(&Entry{
				Count:       p.Count,
				Missions:    p.Missions,
				UsedVariant: &VariantPair{Source: s.Name, Destination: d.Name},
				Failures:    failures,
			}), nil
		}
	}

	count := c.fallbackCount(destinations)
	c.log.Info("presence lookup fell back to static table",
		"source", src,
		"destination", dst,
		"attempts", len(failures),
		"timed_out", timedOut,
		"count", count,
	)
	return c.newEntry(&Entry{Count: count, FallbackUsed: true, Failures: failures}), nil
}

func (c *Cache) newEntry(e *Entry) *Entry {
	e.CreatedAt = c.now()
	e.ExpiresAt = e.CreatedAt.Add(c.ttl)
	return e
}

// Total sums the missions the major sender countries keep in destination.
// Senders whose lookup fell back are skipped; when none succeeds the
// destination's fallback count is used once.
func (c *Cache) Total(ctx context.Context, destination string) (Result, error) {
	dst := normalize(destination)

	type outcome struct {
		sender string
		entry  *Entry
		cached bool
	}
	senders := make([]string, 0, len(c.senders))
	for _, s := range c.senders {
		if s != dst {
			senders = append(senders, s)
		}
	}
	outcomes := make([]outcome, len(senders))

	var g errgroup.Group
	g.SetLimit(4)
	for i, s := range senders {
		g.Go(func() error {
			entry, cached, err := c.lookup(ctx, s, dst)
			if err != nil {
				return err
			}
			outcomes[i] = outcome{sender: s, entry: entry, cached: cached}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	res := Result{Source: "*", Destination: dst, ServedFromCache: len(outcomes) > 0}
	matched := 0
	for _, o := range outcomes {
		res.ServedFromCache = res.ServedFromCache && o.cached
		if o.entry.FallbackUsed {
			res.Failures = append(res.Failures, Attempt{
				Source:      o.sender,
				Destination: dst,
				Error:       fmt.Sprintf("no spelling matched after %d attempts", len(o.entry.Failures)),
			})
			continue
		}
		matched++
		res.Count += o.entry.Count
	}

	if matched == 0 {
		res.FallbackUsed = true
		res.Count = c.fallbackCount(c.variants(ctx, dst))
	}
	return res, nil
}

func toResult(src, dst string, e *Entry, cached bool) Result {
	return Result{
		Source:          src,
		Destination:     dst,
		Count:           e.Count,
		UsedVariant:     e.UsedVariant,
		ServedFromCache: cached,
		FallbackUsed:    e.FallbackUsed,
		Failures:        e.Failures,
	}
}

func describe(err error) string {
	switch {
	case errors.Is(err, upstream.ErrNoMatches):
		return "no matches"
	case upstream.StatusCode(err) != 0:
		return fmt.Sprintf("status %d", upstream.StatusCode(err))
	default:
		return err.Error()
	}
}
