package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dvloznov/customer-rfm/internal/jobs"
	"github.com/dvloznov/customer-rfm/internal/jobs/inmemory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingPublisher stores jobs without running them.
type recordingPublisher struct {
	store *inmemory.Store
	err   error
}

func (p *recordingPublisher) PublishSegmentation(ctx context.Context, job *jobs.SegmentationJob) error {
	if p.err != nil {
		return p.err
	}
	job.JobID = "job-" + job.InputPath
	job.Status = jobs.JobStatusPending
	return p.store.SaveJob(ctx, job)
}

func (p *recordingPublisher) Close() error { return nil }

func do(t *testing.T, h http.Handler, method, target, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return rec, out
}

func TestTriggerRun(t *testing.T) {
	store := inmemory.NewStore()
	h := newTestRouter(newFakeResults(), store, &recordingPublisher{store: store})

	rec, body := do(t, h, http.MethodPost, "/api/runs", `{"input_path":"march.xlsx","sheets":["Mar"]}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "job-march.xlsx", body["job_id"])
	assert.Equal(t, "pending", body["status"])

	rec, body = do(t, h, http.MethodGet, "/api/jobs/job-march.xlsx", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []interface{}{"Mar"}, body["sheets"])

	rec, body = do(t, h, http.MethodGet, "/api/jobs?status=pending", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["count"])
}

func TestTriggerRun_EmptyBody(t *testing.T) {
	store := inmemory.NewStore()
	h := newTestRouter(newFakeResults(), store, &recordingPublisher{store: store})

	rec, body := do(t, h, http.MethodPost, "/api/runs", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "job-", body["job_id"])
}

func TestTriggerRun_BadBody(t *testing.T) {
	store := inmemory.NewStore()
	h := newTestRouter(newFakeResults(), store, &recordingPublisher{store: store})

	rec, _ := do(t, h, http.MethodPost, "/api/runs", `{"input_path":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTriggerRun_Disabled(t *testing.T) {
	rec, body := do(t, newTestRouter(newFakeResults(), nil, nil), http.MethodPost, "/api/runs", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, body["error"], "not enabled")
}

func TestTriggerRun_QueueClosed(t *testing.T) {
	store := inmemory.NewStore()
	h := newTestRouter(newFakeResults(), store, &recordingPublisher{store: store, err: jobs.ErrQueueClosed})

	rec, _ := do(t, h, http.MethodPost, "/api/runs", "{}")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestGetJob_NotFound(t *testing.T) {
	rec, body := do(t, newTestRouter(newFakeResults(), nil, nil), http.MethodGet, "/api/jobs/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Job not found", body["error"])
}

func TestTriggerRun_EndToEndWithQueue(t *testing.T) {
	ctx := context.Background()
	store := inmemory.NewStore()
	queue := inmemory.NewQueue(4, 1, store)
	defer queue.Close()

	require.NoError(t, queue.Start(ctx, func(ctx context.Context, job *jobs.SegmentationJob) error {
		job.RunID = "run-1"
		job.Customers = 5
		return nil
	}))

	h := newTestRouter(newFakeResults(), store, queue)
	rec, body := do(t, h, http.MethodPost, "/api/runs", "{}")
	require.Equal(t, http.StatusAccepted, rec.Code)
	jobID := body["job_id"].(string)

	require.Eventually(t, func() bool {
		j, err := store.GetJob(ctx, jobID)
		return err == nil && j.Status == jobs.JobStatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	_, body = do(t, h, http.MethodGet, "/api/jobs/"+jobID, "")
	assert.Equal(t, "run-1", body["run_id"])
	assert.Equal(t, float64(5), body["customers"])
}
