package investigation

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Drafts tracks at most one live store per user.
type Drafts struct {
	service *Service
	opts    StoreOptions
	logger  *slog.Logger
	now     func() time.Time

	mu      sync.Mutex
	entries map[int64]*draftEntry
}

// draftEntry is filled once by the first Open of a user; ready closes when
// store or err is set.
type draftEntry struct {
	ready    chan struct{}
	store    *Store
	err      error
	lastUsed time.Time
}

func (e *draftEntry) loaded() bool {
	select {
	case <-e.ready:
		return e.err == nil
	default:
		return false
	}
}

// NewDrafts constructs the per-user registry.
func NewDrafts(service *Service, opts StoreOptions) *Drafts {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
		opts.Logger = logger
	}
	return &Drafts{
		service: service,
		opts:    opts,
		logger:  logger,
		now:     time.Now,
		entries: make(map[int64]*draftEntry),
	}
}

// Open returns the user's store, loading the latest saved report on first use.
// loaded is true only when the store was just created from a persisted row.
// Loads of different users run concurrently; callers racing on the same user
// wait for the first load.
func (d *Drafts) Open(ctx context.Context, userID int64) (store *Store, loaded bool, err error) {
	d.mu.Lock()
	e, ok := d.entries[userID]
	if !ok {
		e = &draftEntry{ready: make(chan struct{})}
		d.entries[userID] = e
		d.mu.Unlock()
		return d.load(ctx, userID, e)
	}
	d.mu.Unlock()

	select {
	case <-e.ready:
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
	if e.err != nil {
		return nil, false, e.err
	}
	d.touch(e)
	return e.store, false, nil
}

func (d *Drafts) load(ctx context.Context, userID int64, e *draftEntry) (*Store, bool, error) {
	rep, found, err := d.service.Latest(ctx, userID)
	if err != nil {
		d.mu.Lock()
		if d.entries[userID] == e {
			delete(d.entries, userID)
		}
		e.err = err
		d.mu.Unlock()
		close(e.ready)
		return nil, false, err
	}
	data := Empty()
	if found {
		data = rep.Data
	}
	st := NewStore(d.service.SaverFor(userID), rep.ID, data, d.opts)
	d.mu.Lock()
	e.store = st
	e.lastUsed = d.now()
	d.mu.Unlock()
	close(e.ready)
	return st, found, nil
}

func (d *Drafts) touch(e *draftEntry) {
	d.mu.Lock()
	e.lastUsed = d.now()
	d.mu.Unlock()
}

// Lookup returns the live store of the user without loading one.
func (d *Drafts) Lookup(userID int64) (*Store, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.entries[userID]
	if !ok || !e.loaded() {
		return nil, false
	}
	e.lastUsed = d.now()
	return e.store, true
}

// Release flushes and closes the user's store.
func (d *Drafts) Release(ctx context.Context, userID int64) error {
	d.mu.Lock()
	e, ok := d.entries[userID]
	delete(d.entries, userID)
	d.mu.Unlock()
	if !ok {
		return nil
	}
	return d.retire(ctx, e)
}

// retire waits for a pending load, then flushes and closes the store.
func (d *Drafts) retire(ctx context.Context, e *draftEntry) error {
	select {
	case <-e.ready:
	case <-ctx.Done():
		return ctx.Err()
	}
	if e.err != nil {
		return nil
	}
	err := e.store.Flush(ctx)
	e.store.Close()
	return err
}

// Sweep releases stores unused for at least idle, so drafts of sessions that
// expired without a logout do not stay resident. It returns how many were
// released.
func (d *Drafts) Sweep(ctx context.Context, idle time.Duration) int {
	cutoff := d.now().Add(-idle)
	stale := make(map[int64]*draftEntry)
	d.mu.Lock()
	for userID, e := range d.entries {
		if e.loaded() && !e.lastUsed.After(cutoff) {
			stale[userID] = e
			delete(d.entries, userID)
		}
	}
	d.mu.Unlock()

	for userID, e := range stale {
		if err := d.retire(ctx, e); err != nil {
			d.logger.Error("flush idle report", slog.Int64("user_id", userID), slog.Any("error", err))
		}
	}
	if len(stale) > 0 {
		d.logger.Info("idle drafts released", slog.Int("count", len(stale)))
	}
	return len(stale)
}

// Run sweeps idle stores every interval until ctx is cancelled.
func (d *Drafts) Run(ctx context.Context, interval, idle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Sweep(ctx, idle)
		}
	}
}

// Shutdown releases every live store.
func (d *Drafts) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	entries := d.entries
	d.entries = make(map[int64]*draftEntry)
	d.mu.Unlock()
	var errs []error
	for userID, e := range entries {
		if err := d.retire(ctx, e); err != nil {
			d.logger.Error("flush report on shutdown", slog.Int64("user_id", userID), slog.Any("error", err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
