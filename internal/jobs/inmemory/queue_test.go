package inmemory

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dvloznov/customer-rfm/internal/jobs"
	"github.com/dvloznov/customer-rfm/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitForStatus(t *testing.T, store *Store, jobID string, status jobs.JobStatus) *jobs.SegmentationJob {
	t.Helper()
	var job *jobs.SegmentationJob
	require.Eventually(t, func() bool {
		j, err := store.GetJob(context.Background(), jobID)
		if err != nil {
			return false
		}
		job = j
		return j.Status == status
	}, 2*time.Second, 10*time.Millisecond)
	return job
}

func TestQueue_CompletesJob(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	q := NewQueue(10, 1, store)
	defer q.Close()

	require.NoError(t, q.Start(ctx, func(ctx context.Context, job *jobs.SegmentationJob) error {
		job.RunID = "run-" + job.InputPath
		job.Customers = 5
		return nil
	}))

	job := &jobs.SegmentationJob{InputPath: "in.xlsx"}
	require.NoError(t, q.PublishSegmentation(ctx, job))
	assert.NotEmpty(t, job.JobID)
	assert.Equal(t, jobs.JobStatusPending, job.Status)

	done := waitForStatus(t, store, job.JobID, jobs.JobStatusCompleted)
	assert.Equal(t, "run-in.xlsx", done.RunID)
	assert.Equal(t, 5, done.Customers)
	require.NotNil(t, done.StartedAt)
	require.NotNil(t, done.CompletedAt)

	// the published job is not touched by the worker
	assert.Equal(t, jobs.JobStatusPending, job.Status)
}

func TestQueue_FailedJobIsFinal(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	q := NewQueue(10, 1, store)
	defer q.Close()

	var mu sync.Mutex
	calls := 0
	require.NoError(t, q.Start(ctx, func(ctx context.Context, job *jobs.SegmentationJob) error {
		mu.Lock()
		calls++
		mu.Unlock()
		return errors.New("insufficient customer population")
	}))

	job := &jobs.SegmentationJob{}
	require.NoError(t, q.PublishSegmentation(ctx, job))

	failed := waitForStatus(t, store, job.JobID, jobs.JobStatusFailed)
	assert.Equal(t, "insufficient customer population", failed.Error)

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	assert.Equal(t, 1, calls)
	mu.Unlock()
}

func TestQueue_PublishAfterStop(t *testing.T) {
	q := NewQueue(1, 1, NewStore())
	require.NoError(t, q.Stop(context.Background()))

	err := q.PublishSegmentation(context.Background(), &jobs.SegmentationJob{})
	assert.ErrorIs(t, err, jobs.ErrQueueClosed)
	assert.ErrorIs(t, q.Start(context.Background(), nil), jobs.ErrQueueClosed)
	assert.NoError(t, q.Stop(context.Background()))
}

func TestQueue_PublishRespectsContext(t *testing.T) {
	q := NewQueue(0, 1, nil)
	defer q.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := q.PublishSegmentation(ctx, &jobs.SegmentationJob{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestQueue_StopWaitsForInFlight(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	q := NewQueue(1, 1, store)

	started := make(chan struct{})
	release := make(chan struct{})
	require.NoError(t, q.Start(ctx, func(ctx context.Context, job *jobs.SegmentationJob) error {
		close(started)
		<-release
		return nil
	}))

	job := &jobs.SegmentationJob{}
	require.NoError(t, q.PublishSegmentation(ctx, job))
	<-started

	stopped := make(chan error, 1)
	go func() { stopped <- q.Stop(ctx) }()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a job was running")
	case <-time.After(30 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-stopped)
	got, err := store.GetJob(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, jobs.JobStatusCompleted, got.Status)
}

// flakyStore accepts the first save and rejects every later one.
type flakyStore struct {
	*Store
	mu    sync.Mutex
	saves int
}

func (s *flakyStore) SaveJob(ctx context.Context, job *jobs.SegmentationJob) error {
	s.mu.Lock()
	s.saves++
	n := s.saves
	s.mu.Unlock()
	if n > 1 {
		return errors.New("store unavailable")
	}
	return s.Store.SaveJob(ctx, job)
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestQueue_StoreErrorsAreLogged(t *testing.T) {
	out := &syncBuffer{}
	ctx := logger.WithContext(context.Background(), logger.NewWithWriter(out))
	store := &flakyStore{Store: NewStore()}
	q := NewQueue(10, 1, store)
	defer q.Close()

	require.NoError(t, q.Start(ctx, func(ctx context.Context, job *jobs.SegmentationJob) error {
		return nil
	}))

	job := &jobs.SegmentationJob{InputPath: "in.xlsx"}
	require.NoError(t, q.PublishSegmentation(ctx, job))

	// running and completed both fail to save
	require.Eventually(t, func() bool {
		return strings.Count(out.String(), `"message":"Failed to save job state"`) == 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.Contains(t, out.String(), `"job_id":"`+job.JobID+`"`)

	stored, err := store.GetJob(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, jobs.JobStatusPending, stored.Status)
}
