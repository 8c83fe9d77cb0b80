package reaper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ggoodman/inspector-proxy-go/updates"
)

// Option customizes a Reaper.
type Option func(*Reaper)

// WithLogger overrides the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Reaper) {
		if l != nil {
			r.log = l
		}
	}
}

// Reaper deletes the updates a policy selects from a store.
type Reaper struct {
	store  updates.Store
	policy SelectionPolicy
	log    *slog.Logger
}

// New constructs a Reaper.
func New(store updates.Store, policy SelectionPolicy, opts ...Option) *Reaper {
	r := &Reaper{
		store:  store,
		policy: policy,
		log:    slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reap runs one selection pass and deletes what the policy picked. Policy
// errors abort before anything is deleted. Delete failures do not stop the
// pass; they are joined into the returned error alongside the ids that were
// deleted. Updates that vanished in the meantime count as deleted.
func (r *Reaper) Reap(ctx context.Context, launchedID string) ([]string, error) {
	all, err := r.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list updates: %w", err)
	}

	selected, err := r.policy.SelectForDeletion(launchedID, all)
	if err != nil {
		return nil, fmt.Errorf("select updates to delete: %w", err)
	}
	if len(selected) == 0 {
		r.log.DebugContext(ctx, "nothing to reap", slog.Int("updates", len(all)))
		return nil, nil
	}

	deleted := make([]string, 0, len(selected))
	var errs []error
	for _, id := range selected {
		if err := r.store.Delete(ctx, id); err != nil && !errors.Is(err, updates.ErrNotFound) {
			errs = append(errs, fmt.Errorf("delete update %s: %w", id, err))
			continue
		}
		deleted = append(deleted, id)
	}

	r.log.InfoContext(ctx, "reaped updates",
		slog.Int("updates", len(all)),
		slog.Int("deleted", len(deleted)),
		slog.Any("ids", deleted))
	return deleted, errors.Join(errs...)
}

// Run reaps once immediately, then every interval and whenever trigger
// fires, until ctx ends. A zero interval disables the timer and a nil trigger
// is never ready. Failed passes are logged and retried on the next tick.
func (r *Reaper) Run(ctx context.Context, launchedID string, interval time.Duration, trigger <-chan struct{}) error {
	var tick <-chan time.Time
	if interval > 0 {
		t := time.NewTicker(interval)
		defer t.Stop()
		tick = t.C
	}

	reap := func() {
		if _, err := r.Reap(ctx, launchedID); err != nil {
			r.log.ErrorContext(ctx, "reap failed", slog.String("err", err.Error()))
		}
	}

	reap()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick:
			reap()
		case _, ok := <-trigger:
			if !ok {
				trigger = nil
				continue
			}
			reap()
		}
	}
}
