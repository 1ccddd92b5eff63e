package prediction_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/dogwatch/internal/imagestore"
	"github.com/kiranshivaraju/dogwatch/internal/prediction"
	"github.com/kiranshivaraju/dogwatch/internal/store"
	"github.com/kiranshivaraju/dogwatch/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Mock Store ---

type mockStore struct {
	mu        sync.Mutex
	jobs      map[uuid.UUID]*models.Job
	createErr error
	getErr    error
	gets      int
}

func newMockStore() *mockStore {
	return &mockStore{jobs: make(map[uuid.UUID]*models.Job)}
}

func (s *mockStore) Ping(_ context.Context) error { return nil }

func (s *mockStore) CreateJob(_ context.Context, job *models.Job) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *job
	s.jobs[job.ID] = &cp
	return nil
}

func (s *mockStore) GetJob(_ context.Context, id uuid.UUID) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets++
	if s.getErr != nil {
		return nil, s.getErr
	}
	job, ok := s.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *job
	return &cp, nil
}

func (s *mockStore) FinalizeJob(_ context.Context, id uuid.UUID, status models.JobStatus, result *bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok || job.Status.IsTerminal() {
		return false, nil
	}
	job.Status, job.Result = status, result
	return true, nil
}

func (s *mockStore) ListStalePending(_ context.Context, _ store.StaleFilter) ([]*models.Job, error) {
	return nil, nil
}

// --- Mock Image Store ---

type mockImages struct {
	images    map[uuid.UUID]imagestore.Image
	putErr    error
	deleteErr error
}

func newMockImages() *mockImages {
	return &mockImages{images: make(map[uuid.UUID]imagestore.Image)}
}

func (m *mockImages) Put(_ context.Context, img imagestore.Image) error {
	if m.putErr != nil {
		return m.putErr
	}
	m.images[img.JobID] = img
	return nil
}

func (m *mockImages) Get(_ context.Context, id uuid.UUID) (*imagestore.Image, error) {
	img, ok := m.images[id]
	if !ok {
		return nil, imagestore.ErrNotFound
	}
	return &img, nil
}

func (m *mockImages) Delete(_ context.Context, id uuid.UUID) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	delete(m.images, id)
	return nil
}

// --- Mock Queue ---

type mockQueue struct {
	enqueued []uuid.UUID
	err      error
}

func (q *mockQueue) Enqueue(_ context.Context, id uuid.UUID) error {
	if q.err != nil {
		return q.err
	}
	q.enqueued = append(q.enqueued, id)
	return nil
}

// --- Mock Cache ---

type mockCache struct {
	jobs map[uuid.UUID]*models.Job
	err  error
}

func (c *mockCache) GetPrediction(_ context.Context, id uuid.UUID) (*models.Job, bool, error) {
	if c.err != nil {
		return nil, false, c.err
	}
	job, ok := c.jobs[id]
	return job, ok, nil
}

var jpegBytes = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F'}

func jpegUpload() prediction.Upload {
	return prediction.Upload{Filename: "dogs.jpg", ContentType: "image/jpeg", Data: jpegBytes}
}

// --- Submit ---

func TestSubmit_Success(t *testing.T) {
	st, images, q := newMockStore(), newMockImages(), &mockQueue{}
	svc := prediction.NewService(st, images, q, nil)

	job, err := svc.Submit(context.Background(), jpegUpload())
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, job.ID)
	assert.Equal(t, models.JobStatusPending, job.Status)
	assert.Nil(t, job.Result)

	stored, ok := images.images[job.ID]
	require.True(t, ok)
	assert.Equal(t, jpegBytes, stored.Data)
	assert.Equal(t, "image/jpeg", stored.ContentType)

	require.Contains(t, st.jobs, job.ID)
	assert.Equal(t, models.JobStatusPending, st.jobs[job.ID].Status)

	assert.Equal(t, []uuid.UUID{job.ID}, q.enqueued)
}

func TestSubmit_FreshIDs(t *testing.T) {
	svc := prediction.NewService(newMockStore(), newMockImages(), &mockQueue{}, nil)

	seen := make(map[uuid.UUID]bool)
	for i := 0; i < 50; i++ {
		job, err := svc.Submit(context.Background(), jpegUpload())
		require.NoError(t, err)
		assert.False(t, seen[job.ID], "id reused")
		seen[job.ID] = true
	}
}

func TestSubmit_ContentTypeWithParams(t *testing.T) {
	images := newMockImages()
	svc := prediction.NewService(newMockStore(), images, &mockQueue{}, nil)

	up := jpegUpload()
	up.ContentType = "image/png; charset=binary"
	job, err := svc.Submit(context.Background(), up)
	require.NoError(t, err)
	assert.Equal(t, "image/png", images.images[job.ID].ContentType)
}

func TestSubmit_RejectsNonImage(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
	}{
		{"text", "text/plain"},
		{"pdf", "application/pdf"},
		{"empty", ""},
		{"malformed", "image"},
		{"octet stream", "application/octet-stream"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, images, q := newMockStore(), newMockImages(), &mockQueue{}
			svc := prediction.NewService(st, images, q, nil)

			up := jpegUpload()
			up.ContentType = tt.contentType
			job, err := svc.Submit(context.Background(), up)

			require.Error(t, err)
			assert.Nil(t, job)
			assert.ErrorIs(t, err, prediction.ErrInvalidInput)
			assert.Contains(t, err.Error(), "Invalid file type")

			assert.Empty(t, st.jobs)
			assert.Empty(t, images.images)
			assert.Empty(t, q.enqueued)
		})
	}
}

func TestSubmit_RejectsEmptyImage(t *testing.T) {
	st := newMockStore()
	svc := prediction.NewService(st, newMockImages(), &mockQueue{}, nil)

	up := jpegUpload()
	up.Data = nil
	_, err := svc.Submit(context.Background(), up)
	assert.ErrorIs(t, err, prediction.ErrInvalidInput)
	assert.Empty(t, st.jobs)
}

func TestSubmit_ImagePutFails(t *testing.T) {
	st, images, q := newMockStore(), newMockImages(), &mockQueue{}
	images.putErr = errors.New("disk full")
	svc := prediction.NewService(st, images, q, nil)

	_, err := svc.Submit(context.Background(), jpegUpload())
	assert.ErrorIs(t, err, prediction.ErrStorage)
	assert.Empty(t, st.jobs)
	assert.Empty(t, q.enqueued)
}

func TestSubmit_CreateJobFails(t *testing.T) {
	st, images, q := newMockStore(), newMockImages(), &mockQueue{}
	st.createErr = errors.New("connection reset")
	svc := prediction.NewService(st, images, q, nil)

	job, err := svc.Submit(context.Background(), jpegUpload())
	assert.ErrorIs(t, err, prediction.ErrStorage)
	assert.Nil(t, job)
	assert.Empty(t, st.jobs)
	assert.Empty(t, images.images, "image must not outlive a failed job write")
	assert.Empty(t, q.enqueued)
}

func TestSubmit_CreateJobFails_CleanupErrorKeepsStorageError(t *testing.T) {
	st, images, q := newMockStore(), newMockImages(), &mockQueue{}
	st.createErr = errors.New("connection reset")
	images.deleteErr = errors.New("disk gone")
	svc := prediction.NewService(st, images, q, nil)

	_, err := svc.Submit(context.Background(), jpegUpload())
	assert.ErrorIs(t, err, prediction.ErrStorage)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Empty(t, q.enqueued)
}

func TestSubmit_EnqueueFailsLeavesJobPending(t *testing.T) {
	st, q := newMockStore(), &mockQueue{err: errors.New("redis down")}
	svc := prediction.NewService(st, newMockImages(), q, nil)

	job, err := svc.Submit(context.Background(), jpegUpload())
	assert.ErrorIs(t, err, prediction.ErrEnqueue)
	assert.Nil(t, job)

	require.Len(t, st.jobs, 1)
	for _, j := range st.jobs {
		assert.Equal(t, models.JobStatusPending, j.Status)
	}
}

// --- GetStatus ---

func TestGetStatus_Pending(t *testing.T) {
	st := newMockStore()
	svc := prediction.NewService(st, newMockImages(), &mockQueue{}, nil)

	job, err := svc.Submit(context.Background(), jpegUpload())
	require.NoError(t, err)

	got, err := svc.GetStatus(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, models.JobStatusPending, got.Status)
	assert.Nil(t, got.Result)
}

func TestGetStatus_NotFound(t *testing.T) {
	svc := prediction.NewService(newMockStore(), newMockImages(), &mockQueue{}, nil)

	_, err := svc.GetStatus(context.Background(), uuid.New())
	assert.ErrorIs(t, err, prediction.ErrNotFound)
}

func TestGetStatus_StoreError(t *testing.T) {
	st := newMockStore()
	st.getErr = errors.New("timeout")
	svc := prediction.NewService(st, newMockImages(), &mockQueue{}, nil)

	_, err := svc.GetStatus(context.Background(), uuid.New())
	require.Error(t, err)
	assert.NotErrorIs(t, err, prediction.ErrNotFound)
}

func TestGetStatus_CacheHitSkipsStore(t *testing.T) {
	st := newMockStore()
	result := true
	id := uuid.New()
	ca := &mockCache{jobs: map[uuid.UUID]*models.Job{
		id: {ID: id, Status: models.JobStatusDone, Result: &result},
	}}
	svc := prediction.NewService(st, newMockImages(), &mockQueue{}, ca)

	got, err := svc.GetStatus(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusDone, got.Status)
	assert.Zero(t, st.gets)
}

func TestGetStatus_CacheErrorFallsBackToStore(t *testing.T) {
	st := newMockStore()
	ca := &mockCache{err: errors.New("redis down")}
	svc := prediction.NewService(st, newMockImages(), &mockQueue{}, ca)

	job, err := svc.Submit(context.Background(), jpegUpload())
	require.NoError(t, err)

	got, err := svc.GetStatus(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, 1, st.gets)
}

func TestGetStatus_IgnoresNonTerminalCacheEntry(t *testing.T) {
	st := newMockStore()
	svc := prediction.NewService(st, newMockImages(), &mockQueue{}, nil)
	job, err := svc.Submit(context.Background(), jpegUpload())
	require.NoError(t, err)

	ca := &mockCache{jobs: map[uuid.UUID]*models.Job{
		job.ID: {ID: job.ID, Status: models.JobStatusPending},
	}}
	svc = prediction.NewService(st, newMockImages(), &mockQueue{}, ca)

	_, err = svc.GetStatus(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, st.gets)
}

func TestGetStatus_TerminalIsStable(t *testing.T) {
	st := newMockStore()
	svc := prediction.NewService(st, newMockImages(), &mockQueue{}, nil)
	job, err := svc.Submit(context.Background(), jpegUpload())
	require.NoError(t, err)

	result := false
	_, err = st.FinalizeJob(context.Background(), job.ID, models.JobStatusDone, &result)
	require.NoError(t, err)

	first, err := svc.GetStatus(context.Background(), job.ID)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		got, err := svc.GetStatus(context.Background(), job.ID)
		require.NoError(t, err)
		assert.Equal(t, first.Status, got.Status)
		assert.Equal(t, first.Result, got.Result)
	}
}
