package investigation

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultAutosaveDelay is the debounce window applied when none is configured.
const DefaultAutosaveDelay = time.Second

const defaultSaveTimeout = 15 * time.Second

// Saver persists a full report. An empty reportID inserts a new row and the
// returned id identifies it; otherwise the existing row is overwritten.
type Saver interface {
	Save(ctx context.Context, reportID string, data InvestigationData) (string, error)
}

// SaverFunc adapts a function to the Saver interface.
type SaverFunc func(ctx context.Context, reportID string, data InvestigationData) (string, error)

// Save implements Saver.
func (f SaverFunc) Save(ctx context.Context, reportID string, data InvestigationData) (string, error) {
	return f(ctx, reportID, data)
}

// StoreOptions tunes a Store.
type StoreOptions struct {
	Delay       time.Duration
	SaveTimeout time.Duration
	Logger      *slog.Logger
	Now         func() time.Time
}

// Status describes the autosave state of a store.
type Status struct {
	ReportID    string    `json:"reportId,omitempty"`
	Dirty       bool      `json:"dirty"`
	Saving      bool      `json:"saving"`
	LastSavedAt time.Time `json:"lastSavedAt,omitempty"`
	LastError   string    `json:"lastError,omitempty"`
}

// Store owns one report in progress and debounces its persistence.
type Store struct {
	saver       Saver
	delay       time.Duration
	saveTimeout time.Duration
	logger      *slog.Logger
	now         func() time.Time
	ids         *IDSequence

	// writeMu keeps at most one write in flight.
	writeMu sync.Mutex

	mu         sync.Mutex
	data       InvestigationData
	reportID   string
	epoch      uint64
	generation uint64
	timer      *time.Timer
	dirty      bool
	saving     bool
	closed     bool
	lastSaved  time.Time
	lastErr    error
}

// NewStore wraps data loaded from reportID. Pass an empty id for a report that
// has never been persisted.
func NewStore(saver Saver, reportID string, data InvestigationData, opts StoreOptions) *Store {
	if opts.Delay <= 0 {
		opts.Delay = DefaultAutosaveDelay
	}
	if opts.SaveTimeout <= 0 {
		opts.SaveTimeout = defaultSaveTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	data = data.Normalize().Clone()
	ids := NewIDSequence(data)
	ids.now = opts.Now
	return &Store{
		saver:       saver,
		delay:       opts.Delay,
		saveTimeout: opts.SaveTimeout,
		logger:      opts.Logger,
		now:         opts.Now,
		ids:         ids,
		data:        data,
		reportID:    reportID,
	}
}

// Get returns a snapshot that the caller may modify freely.
func (s *Store) Get() InvestigationData {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.Clone()
}

// ReportID returns the persisted row id, empty until the first insert completes.
func (s *Store) ReportID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reportID
}

// NextID returns a fresh id for a new photo or observation day.
func (s *Store) NextID() string {
	return s.ids.Next()
}

// Update merges the top-level keys of p and restarts the autosave timer.
// An empty partial changes nothing and leaves the timer alone.
func (s *Store) Update(p Partial) (InvestigationData, error) {
	return s.Apply(func(InvestigationData) (Partial, error) { return p, nil })
}

// Apply computes a partial from the current record and merges it atomically.
func (s *Store) Apply(fn func(current InvestigationData) (Partial, error)) (InvestigationData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return InvestigationData{}, ErrStoreClosed
	}
	p, err := fn(s.data.Clone())
	if err != nil {
		return InvestigationData{}, err
	}
	if p.IsEmpty() {
		return s.data.Clone(), nil
	}
	s.data = s.data.Merge(p)
	s.dirty = true
	s.scheduleLocked()
	return s.data.Clone(), nil
}

// Reset restores the empty record and detaches it from the persisted row, so
// the next save inserts a new one.
func (s *Store) Reset() (InvestigationData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return InvestigationData{}, ErrStoreClosed
	}
	s.data = Empty()
	s.reportID = ""
	s.epoch++
	s.dirty = true
	s.lastErr = nil
	s.scheduleLocked()
	return s.data.Clone(), nil
}

// Status reports the last save outcome.
func (s *Store) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		ReportID:    s.reportID,
		Dirty:       s.dirty,
		Saving:      s.saving,
		LastSavedAt: s.lastSaved,
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}

// Flush cancels the pending timer and writes immediately when there are unsaved edits.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	s.stopTimerLocked()
	s.mu.Unlock()
	return s.write(ctx, 0, false)
}

// Close cancels any pending write. A write already in flight completes.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.stopTimerLocked()
}

func (s *Store) scheduleLocked() {
	s.stopTimerLocked()
	gen := s.generation
	s.timer = time.AfterFunc(s.delay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.saveTimeout)
		defer cancel()
		_ = s.write(ctx, gen, true)
	})
}

func (s *Store) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.generation++
}

// write persists the current record. Timer-driven writes carry the generation
// they were scheduled in and are dropped when superseded or closed.
func (s *Store) write(ctx context.Context, gen uint64, fromTimer bool) error {
	if s.saver == nil {
		return ErrSaverUnavailable
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	if fromTimer && (s.closed || gen != s.generation) {
		s.mu.Unlock()
		return nil
	}
	if !s.dirty {
		s.mu.Unlock()
		return nil
	}
	if fromTimer {
		s.timer = nil
	}
	data := s.data.Clone()
	reportID := s.reportID
	epoch := s.epoch
	s.dirty = false
	s.saving = true
	s.mu.Unlock()

	newID, err := s.saver.Save(ctx, reportID, data)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.saving = false
	if err != nil {
		if epoch == s.epoch {
			s.dirty = true
		}
		s.lastErr = err
		s.logger.Error("autosave report", slog.String("report_id", reportID), slog.Any("error", err))
		return err
	}
	s.lastErr = nil
	s.lastSaved = s.now()
	if epoch == s.epoch && s.reportID == "" {
		s.reportID = newID
	}
	return nil
}
