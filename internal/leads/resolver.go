package leads

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"calltrack/internal/calls"
)

// Feed signals that the set of visible calls changed. The channel closes when the feed ends.
type Feed interface {
	Subscribe(ctx context.Context) (<-chan struct{}, error)
}

// Loader returns every currently visible call across tenants.
type Loader func(ctx context.Context) ([]calls.Call, error)

// Resolver holds the latest-call-per-lead view. It is a derived, read-only projection.
type Resolver struct {
	mu      sync.RWMutex
	latest  map[Key]LatestCall
	builtAt time.Time

	log *slog.Logger
}

func NewResolver(log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{latest: map[Key]LatestCall{}, log: log}
}

// Rebuild replaces the view with one computed from cs.
func (r *Resolver) Rebuild(cs []calls.Call) {
	m := Resolve(cs)
	r.mu.Lock()
	r.latest = m
	r.builtAt = time.Now().UTC()
	r.mu.Unlock()
}

func (r *Resolver) Latest(tenantID, leadID string) (LatestCall, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.latest[Key{TenantID: tenantID, LeadID: leadID}]
	return c, ok
}

// Len is the number of leads with a known latest call.
func (r *Resolver) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.latest)
}

func (r *Resolver) BuiltAt() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.builtAt
}

// Attach returns a copy of ls with LatestCall set from the current view.
func (r *Resolver) Attach(ls []Lead) []Lead {
	out := make([]Lead, len(ls))
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i, l := range ls {
		l.LatestCall = nil
		if c, ok := r.latest[l.Key()]; ok {
			c := c
			l.LatestCall = &c
		}
		out[i] = l
	}
	return out
}

// Refresh loads all calls and rebuilds the view.
func (r *Resolver) Refresh(ctx context.Context, load Loader) error {
	cs, err := load(ctx)
	if err != nil {
		return err
	}
	r.Rebuild(cs)
	return nil
}

// Watch rebuilds the view once, then again on every feed signal, until ctx is done or the feed closes.
// A failed rebuild keeps the previous view.
func (r *Resolver) Watch(ctx context.Context, feed Feed, load Loader) error {
	if err := r.Refresh(ctx, load); err != nil {
		r.log.Error("leads resolver initial load failed", "err", err)
	}

	ch, err := feed.Subscribe(ctx)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-ch:
			if !ok {
				return nil
			}
			if err := r.Refresh(ctx, load); err != nil {
				r.log.Error("leads resolver rebuild failed", "err", err)
				continue
			}
			r.log.Debug("leads resolver rebuilt", "leads", r.Len())
		}
	}
}
