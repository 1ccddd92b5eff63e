package main

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/dogwatch/internal/config"
	"github.com/kiranshivaraju/dogwatch/internal/queue"
	"github.com/kiranshivaraju/dogwatch/internal/store"
	"github.com/kiranshivaraju/dogwatch/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ─── fakes ───────────────────────────────────────────────────────────────────

type fakeStore struct {
	jobs   map[uuid.UUID]*models.Job
	stale  []*models.Job
	filter store.StaleFilter
}

func (s *fakeStore) Ping(_ context.Context) error { return nil }

func (s *fakeStore) CreateJob(_ context.Context, _ *models.Job) error { return nil }

func (s *fakeStore) GetJob(_ context.Context, id uuid.UUID) (*models.Job, error) {
	job, ok := s.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return job, nil
}

func (s *fakeStore) FinalizeJob(_ context.Context, _ uuid.UUID, _ models.JobStatus, _ *bool) (bool, error) {
	return false, nil
}

func (s *fakeStore) ListStalePending(_ context.Context, f store.StaleFilter) ([]*models.Job, error) {
	s.filter = f
	return s.stale, nil
}

type fakeQueue struct {
	queue.Queue
	stats queue.Stats
	err   error
}

func (q *fakeQueue) Stats(_ context.Context) (queue.Stats, error) { return q.stats, q.err }

func testContext(t *testing.T, s *fakeStore, q *fakeQueue) *commandContext {
	t.Helper()
	t.Chdir(t.TempDir())
	t.Setenv("DATABASE_URL", "postgres://test@localhost/dogwatch")
	t.Setenv("REDIS_URL", "redis://localhost:6379")
	t.Setenv("CLASSIFIER_BASE_URL", "http://localhost:9000")

	ctx := newCommandContext()
	ctx.openStore = func(context.Context, *config.Config) (store.Store, func(), error) {
		return s, func() {}, nil
	}
	ctx.openQueue = func(*config.Config) (queue.Queue, func(), error) {
		return q, func() {}, nil
	}
	return ctx
}

func execute(t *testing.T, ctx *commandContext, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand(ctx)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func boolPtr(b bool) *bool { return &b }

// ─── status ──────────────────────────────────────────────────────────────────

func TestStatus_Done(t *testing.T) {
	id := uuid.New()
	now := time.Now()
	s := &fakeStore{jobs: map[uuid.UUID]*models.Job{
		id: {ID: id, Status: models.JobStatusDone, Result: boolPtr(true), CreatedAt: now, UpdatedAt: now},
	}}

	out, err := execute(t, testContext(t, s, nil), "status", id.String())
	require.NoError(t, err)
	assert.Contains(t, out, id.String())
	assert.Contains(t, out, "DONE")
	assert.Contains(t, out, "Result:  true")
}

func TestStatus_NotFound(t *testing.T) {
	_, err := execute(t, testContext(t, &fakeStore{}, nil), "status", uuid.NewString())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestStatus_InvalidID(t *testing.T) {
	_, err := execute(t, testContext(t, &fakeStore{}, nil), "status", "abc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid job id")
}

func TestStatus_RequiresOneArg(t *testing.T) {
	_, err := execute(t, testContext(t, &fakeStore{}, nil), "status")
	assert.Error(t, err)
}

// ─── stale ───────────────────────────────────────────────────────────────────

func TestStale_RendersTable(t *testing.T) {
	job := &models.Job{ID: uuid.New(), Status: models.JobStatusPending, CreatedAt: time.Now().Add(-time.Hour)}
	s := &fakeStore{stale: []*models.Job{job}}

	out, err := execute(t, testContext(t, s, nil), "stale", "--older-than", "30m", "--limit", "5")
	require.NoError(t, err)
	assert.Contains(t, out, job.ID.String())
	assert.Equal(t, 5, s.filter.Limit)
	assert.WithinDuration(t, time.Now().Add(-30*time.Minute), s.filter.OlderThan, 5*time.Second)
}

func TestStale_None(t *testing.T) {
	out, err := execute(t, testContext(t, &fakeStore{}, nil), "stale")
	require.NoError(t, err)
	assert.Contains(t, out, "No stale jobs")
}

// ─── queue ───────────────────────────────────────────────────────────────────

func TestQueue_ShowsDepth(t *testing.T) {
	q := &fakeQueue{stats: queue.Stats{Ready: 7, InFlight: 2}}

	out, err := execute(t, testContext(t, nil, q), "queue")
	require.NoError(t, err)
	assert.Contains(t, out, "7")
	assert.Contains(t, out, "2")
}

func TestQueue_Error(t *testing.T) {
	q := &fakeQueue{err: errors.New("redis down")}

	_, err := execute(t, testContext(t, nil, q), "queue")
	assert.Error(t, err)
}

// ─── migrate ─────────────────────────────────────────────────────────────────

func TestMigrate_ReportsVersion(t *testing.T) {
	ctx := testContext(t, nil, nil)
	ctx.migrate = func(*config.Config) (uint, bool, error) { return 2, false, nil }

	out, err := execute(t, ctx, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "Schema version 2 (clean)")
}

func TestMigrate_Error(t *testing.T) {
	ctx := testContext(t, nil, nil)
	ctx.migrate = func(*config.Config) (uint, bool, error) { return 0, false, errors.New("boom") }

	_, err := execute(t, ctx, "migrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "migrate")
}

// ─── config ──────────────────────────────────────────────────────────────────

func TestCommands_FailWithoutConfig(t *testing.T) {
	ctx := testContext(t, &fakeStore{}, nil)
	t.Setenv("DATABASE_URL", "")

	_, err := execute(t, ctx, "stale")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

// ─── helpers ─────────────────────────────────────────────────────────────────

func TestFormatResult(t *testing.T) {
	assert.Equal(t, "-", formatResult(nil))
	assert.Equal(t, "true", formatResult(boolPtr(true)))
	assert.Equal(t, "false", formatResult(boolPtr(false)))
}

func TestRenderTable_Empty(t *testing.T) {
	assert.Empty(t, renderTable(nil, nil))
}
