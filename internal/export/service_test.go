package export

import (
	"context"
	"errors"
	"io"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/falco-investigation/falco/internal/agency"
	"github.com/falco-investigation/falco/internal/blob"
	"github.com/falco-investigation/falco/internal/investigation"
	jobmetrics "github.com/falco-investigation/falco/internal/jobs"
	"github.com/falco-investigation/falco/jobs"
)

type memoryRecords struct {
	mu   sync.Mutex
	seq  int
	rows map[string]Record
}

func newMemoryRecords() *memoryRecords {
	return &memoryRecords{rows: map[string]Record{}}
}

func (m *memoryRecords) Insert(_ context.Context, userID int64, reportID string) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	now := time.Now()
	rec := Record{ID: "exp-" + strconv.Itoa(m.seq), UserID: userID, ReportID: reportID, Status: StatusPending, CreatedAt: now, UpdatedAt: now}
	m.rows[rec.ID] = rec
	return rec, nil
}

func (m *memoryRecords) Get(_ context.Context, id string) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.rows[id]
	if !ok {
		return Record{}, ErrExportNotFound
	}
	return rec, nil
}

func (m *memoryRecords) List(_ context.Context, userID int64, _ int) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Record
	for _, rec := range m.rows {
		if rec.UserID == userID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *memoryRecords) transition(id string, from Status, fn func(*Record)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.rows[id]
	if !ok {
		return ErrExportNotFound
	}
	if from != "" && rec.Status != from {
		return ErrInvalidStatus
	}
	fn(&rec)
	rec.UpdatedAt = time.Now()
	m.rows[id] = rec
	return nil
}

func (m *memoryRecords) MarkInProgress(_ context.Context, id string) error {
	return m.transition(id, StatusPending, func(r *Record) { r.Status = StatusInProgress })
}

func (m *memoryRecords) MarkReady(_ context.Context, id string, a Artefact) error {
	return m.transition(id, StatusInProgress, func(r *Record) {
		r.Status = StatusReady
		r.Filename = a.Filename
		r.ObjectPath = a.ObjectPath
		size, pages := a.FileSize, a.PageCount
		r.FileSize, r.PageCount = &size, &pages
		r.DroppedImages = a.DroppedImages
		at := a.CompletedAt
		r.CompletedAt = &at
	})
}

func (m *memoryRecords) MarkFailed(_ context.Context, id string, msg string) error {
	return m.transition(id, "", func(r *Record) {
		r.Status = StatusFailed
		r.ErrorMessage = truncateError(msg)
	})
}

func (m *memoryRecords) ListExpired(_ context.Context, cutoff time.Time) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Record
	for _, rec := range m.rows {
		if rec.CreatedAt.Before(cutoff) && rec.Status != StatusInProgress {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *memoryRecords) FailStale(_ context.Context, before time.Time, msg string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, rec := range m.rows {
		if rec.Status == StatusInProgress && rec.UpdatedAt.Before(before) {
			rec.Status = StatusFailed
			rec.ErrorMessage = truncateError(msg)
			m.rows[id] = rec
			n++
		}
	}
	return n, nil
}

func (m *memoryRecords) Delete(_ context.Context, ids []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, id := range ids {
		if _, ok := m.rows[id]; ok {
			delete(m.rows, id)
			n++
		}
	}
	return n, nil
}

type fakeQueue struct {
	ids []string
	err error
}

func (q *fakeQueue) EnqueueReportExport(_ context.Context, id string) error {
	if q.err != nil {
		return q.err
	}
	q.ids = append(q.ids, id)
	return nil
}

type fakeReports map[string]investigation.Report

func (f fakeReports) Get(_ context.Context, id string, userID int64) (investigation.Report, error) {
	rep, ok := f[id]
	if !ok || rep.UserID != userID {
		return investigation.Report{}, investigation.ErrReportNotFound
	}
	return rep, nil
}

type fakeExporter struct {
	err      error
	profiles []agency.Optional
}

func (f *fakeExporter) Export(_ context.Context, data investigation.InvestigationData, profile agency.Optional) (Result, error) {
	f.profiles = append(f.profiles, profile)
	if f.err != nil {
		return Result{}, f.err
	}
	return Result{PDF: minimalPDF(data.SubjectName()), Filename: Filename(data.SubjectName(), time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)), Pages: 1}, nil
}

type staticProfiles struct {
	profile agency.Optional
	err     error
}

func (s staticProfiles) Load(context.Context, int64) (agency.Optional, error) { return s.profile, s.err }

type serviceFixture struct {
	service  *Service
	records  *memoryRecords
	queue    *fakeQueue
	exporter *fakeExporter
	blobs    *blob.FSStore
	now      time.Time
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	blobs, err := blob.NewFSStore(t.TempDir(), "http://files.invalid")
	require.NoError(t, err)
	data := investigation.Empty()
	data.InvestigatedInfo.FullName = "Mario Rossi"
	fx := &serviceFixture{
		records:  newMemoryRecords(),
		queue:    &fakeQueue{},
		exporter: &fakeExporter{},
		blobs:    blobs,
		now:      time.Now(),
	}
	fx.service = NewService(ServiceConfig{
		Records:  fx.records,
		Queue:    fx.queue,
		Reports:  fakeReports{"rep-1": {ID: "rep-1", UserID: 5, Data: data}},
		Profiles: staticProfiles{profile: agency.Some(agency.Profile{AgencyName: "Falco"})},
		Exporter: fx.exporter,
		Blobs:    blobs,
		Now:      func() time.Time { return fx.now },
	})
	return fx
}

func TestRequestQueuesPendingExport(t *testing.T) {
	fx := newServiceFixture(t)
	rec, err := fx.service.Request(context.Background(), 5, "rep-1")
	require.NoError(t, err)
	require.Equal(t, StatusPending, rec.Status)
	require.Equal(t, []string{rec.ID}, fx.queue.ids)

	_, err = fx.service.Request(context.Background(), 5, "")
	require.ErrorIs(t, err, ErrReportUnsaved)
	_, err = fx.service.Request(context.Background(), 6, "rep-1")
	require.ErrorIs(t, err, investigation.ErrReportNotFound)
}

func TestRequestMarksFailedWhenQueueDown(t *testing.T) {
	fx := newServiceFixture(t)
	fx.queue.err = errors.New("redis unavailable")
	_, err := fx.service.Request(context.Background(), 5, "rep-1")
	require.Error(t, err)

	list, err := fx.service.List(context.Background(), 5, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, StatusFailed, list[0].Status)
	require.Contains(t, list[0].ErrorMessage, "redis unavailable")
}

func TestProcessStoresArtefact(t *testing.T) {
	fx := newServiceFixture(t)
	rec, err := fx.service.Request(context.Background(), 5, "rep-1")
	require.NoError(t, err)

	require.NoError(t, fx.service.Process(context.Background(), rec.ID))
	got, err := fx.service.Get(context.Background(), rec.ID, 5)
	require.NoError(t, err)
	require.Equal(t, StatusReady, got.Status)
	require.Equal(t, "Report_Investigativo_Mario_Rossi_2024-01-02.pdf", got.Filename)
	require.Equal(t, 1, *got.PageCount)
	require.True(t, fx.exporter.profiles[0].Present())

	rc, _, err := fx.service.Open(context.Background(), rec.ID, 5)
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	require.Equal(t, int64(len(body)), *got.FileSize)

	// a redelivered task leaves the finished export alone
	require.NoError(t, fx.service.Process(context.Background(), rec.ID))
	require.Len(t, fx.exporter.profiles, 1)
}

func TestProcessFailureIsRecorded(t *testing.T) {
	fx := newServiceFixture(t)
	fx.exporter.err = ErrExportFailed
	rec, err := fx.service.Request(context.Background(), 5, "rep-1")
	require.NoError(t, err)

	require.ErrorIs(t, fx.service.Process(context.Background(), rec.ID), ErrExportFailed)
	got, err := fx.service.Get(context.Background(), rec.ID, 5)
	require.NoError(t, err)
	require.Equal(t, StatusFailed, got.Status)

	_, _, err = fx.service.Open(context.Background(), rec.ID, 5)
	require.ErrorIs(t, err, ErrNotReady)
}

func TestGetHidesOtherUsersExports(t *testing.T) {
	fx := newServiceFixture(t)
	rec, err := fx.service.Request(context.Background(), 5, "rep-1")
	require.NoError(t, err)
	_, err = fx.service.Get(context.Background(), rec.ID, 99)
	require.ErrorIs(t, err, ErrExportNotFound)
}

func TestRenderFallsBackWithoutProfile(t *testing.T) {
	fx := newServiceFixture(t)
	fx.service.profiles = staticProfiles{err: errors.New("db down")}
	_, err := fx.service.Render(context.Background(), 5, investigation.Empty())
	require.NoError(t, err)
	require.False(t, fx.exporter.profiles[0].Present())
}

func TestPurgeRemovesExpiredExports(t *testing.T) {
	fx := newServiceFixture(t)
	old, err := fx.service.Request(context.Background(), 5, "rep-1")
	require.NoError(t, err)
	require.NoError(t, fx.service.Process(context.Background(), old.ID))
	fresh, err := fx.service.Request(context.Background(), 5, "rep-1")
	require.NoError(t, err)

	oldRec, err := fx.records.Get(context.Background(), old.ID)
	require.NoError(t, err)
	fx.now = oldRec.CreatedAt.Add(2 * time.Hour)
	_ = fx.records.transition(fresh.ID, "", func(r *Record) { r.CreatedAt = fx.now })

	removed, err := fx.service.Purge(context.Background(), time.Hour)
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	_, err = fx.records.Get(context.Background(), old.ID)
	require.ErrorIs(t, err, ErrExportNotFound)
	_, _, err = fx.blobs.Open(context.Background(), blob.BucketReportExports, oldRec.ObjectPath)
	require.ErrorIs(t, err, blob.ErrNotFound)
	_, err = fx.records.Get(context.Background(), fresh.ID)
	require.NoError(t, err)

	_, err = fx.service.Purge(context.Background(), 0)
	require.Error(t, err)
}

func TestRecoverStaleFailsAbandonedExports(t *testing.T) {
	fx := newServiceFixture(t)
	ctx := context.Background()
	stuck, err := fx.service.Request(ctx, 5, "rep-1")
	require.NoError(t, err)
	require.NoError(t, fx.records.MarkInProgress(ctx, stuck.ID))
	running, err := fx.service.Request(ctx, 5, "rep-1")
	require.NoError(t, err)
	require.NoError(t, fx.records.MarkInProgress(ctx, running.ID))

	fx.records.mu.Lock()
	rec := fx.records.rows[stuck.ID]
	rec.UpdatedAt = time.Now().Add(-2 * DefaultStaleAfter)
	fx.records.rows[stuck.ID] = rec
	fx.records.mu.Unlock()

	n, err := fx.service.RecoverStale(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	got, err := fx.records.Get(ctx, stuck.ID)
	require.NoError(t, err)
	require.Equal(t, StatusFailed, got.Status)
	require.Equal(t, staleMessage, got.ErrorMessage)
	got, err = fx.records.Get(ctx, running.ID)
	require.NoError(t, err)
	require.Equal(t, StatusInProgress, got.Status)
}

func TestPurgeRemovesStuckExportsOnceStale(t *testing.T) {
	fx := newServiceFixture(t)
	ctx := context.Background()
	stuck, err := fx.service.Request(ctx, 5, "rep-1")
	require.NoError(t, err)
	require.NoError(t, fx.records.MarkInProgress(ctx, stuck.ID))

	fx.records.mu.Lock()
	rec := fx.records.rows[stuck.ID]
	rec.CreatedAt = time.Now().Add(-3 * time.Hour)
	rec.UpdatedAt = rec.CreatedAt
	fx.records.rows[stuck.ID] = rec
	fx.records.mu.Unlock()

	removed, err := fx.service.Purge(ctx, time.Hour)
	require.NoError(t, err)
	require.Equal(t, 1, removed)
	_, err = fx.records.Get(ctx, stuck.ID)
	require.ErrorIs(t, err, ErrExportNotFound)
}

func TestJobHandlers(t *testing.T) {
	fx := newServiceFixture(t)
	job := NewJob(fx.service, jobmetrics.NewMetrics(nil), time.Hour, nil)
	rec, err := fx.service.Request(context.Background(), 5, "rep-1")
	require.NoError(t, err)

	task, err := jobs.NewReportExportTask(jobs.ReportExportPayload{ExportID: rec.ID})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	got, err := fx.records.Get(context.Background(), rec.ID)
	require.NoError(t, err)
	require.Equal(t, StatusReady, got.Status)

	err = job.Handle(context.Background(), asynq.NewTask(jobs.TaskReportExport, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)

	missing, err := jobs.NewReportExportTask(jobs.ReportExportPayload{ExportID: "nope"})
	require.NoError(t, err)
	require.ErrorIs(t, job.Handle(context.Background(), missing), asynq.SkipRetry)

	purge, err := jobs.NewReportExportsPurgeTask(time.Hour)
	require.NoError(t, err)
	require.NoError(t, job.HandlePurge(context.Background(), purge))
	require.Len(t, job.Handlers(), 2)
}
