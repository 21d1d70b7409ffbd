package observability

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dvloznov/customer-rfm/internal/logger"
	"github.com/dvloznov/customer-rfm/internal/pipeline"
	"github.com/dvloznov/customer-rfm/internal/rfm"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleResult() *pipeline.Result {
	started := time.Date(2024, 7, 1, 8, 0, 0, 0, time.UTC)
	return &pipeline.Result{
		RunID:         "run-1",
		StartedAt:     started,
		ReferenceDate: time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC),
		Customers: []*rfm.CustomerRFM{
			{Identifier: "9812345678", Monetary: decimal.NewFromInt(3000), Segment: rfm.SegmentChampions},
			{Identifier: "7123456789", Monetary: decimal.NewFromInt(100), Segment: rfm.SegmentLost},
			{Identifier: "9000000001", Monetary: decimal.NewFromInt(50), Segment: rfm.SegmentLost},
		},
		Summary: pipeline.Summary{
			RawRows:             10,
			ValidIdentifierRows: 9,
			CleanRows:           7,
			Invoices:            5,
			Customers:           3,
			Clean:               rfm.CleanStats{Input: 9, InvalidDate: 1, Duplicate: 1, Kept: 7},
			Segments: map[rfm.Segment]int{
				rfm.SegmentChampions: 1,
				rfm.SegmentLost:      2,
			},
		},
	}
}

func TestRecordRun_Success(t *testing.T) {
	m := NewMetrics()
	result := sampleResult()

	m.RecordRun(context.Background(), result, 2*time.Second, nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues(StatusSuccess)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RunDuration.WithLabelValues(StatusSuccess)))

	assert.Equal(t, 10.0, testutil.ToFloat64(m.RowsProcessed.WithLabelValues(StageRaw)))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.RowsProcessed.WithLabelValues(StageClean)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.RowsProcessed.WithLabelValues(StageCustomers)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RowsDropped.WithLabelValues("duplicate")))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.SegmentCustomers.WithLabelValues(string(rfm.SegmentLost))))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.SegmentCustomers.WithLabelValues(string(rfm.SegmentLoyal))))
	assert.Equal(t, 150.0, testutil.ToFloat64(m.SegmentMonetary.WithLabelValues(string(rfm.SegmentLost))))

	assert.Equal(t, float64(result.ReferenceDate.Unix()), testutil.ToFloat64(m.ReferenceDate))
	assert.Equal(t, float64(result.StartedAt.Add(2*time.Second).Unix()), testutil.ToFloat64(m.LastSuccess))

	// every segment is exported, including empty ones
	assert.Equal(t, len(rfm.Segments), testutil.CollectAndCount(m.SegmentCustomers))
}

func TestRecordRun_Failure(t *testing.T) {
	m := NewMetrics()

	m.RecordRun(context.Background(), nil, time.Second, errors.New("boom"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues(StatusFailed)))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.LastSuccess))
	assert.Equal(t, 0, testutil.CollectAndCount(m.SegmentCustomers))
}

func TestNewMetrics_IsolatedRegistries(t *testing.T) {
	a := NewMetrics()
	b := NewMetrics()

	a.RecordRun(context.Background(), sampleResult(), time.Second, nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(a.RunsTotal.WithLabelValues(StatusSuccess)))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.RunsTotal.WithLabelValues(StatusSuccess)))
}

func TestPush(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	buf := &bytes.Buffer{}
	ctx := logger.WithContext(context.Background(), logger.NewWithWriter(buf))

	m := NewMetrics()
	m.RecordRun(ctx, sampleResult(), time.Second, nil)

	require.NoError(t, m.Push(ctx, srv.URL, "rfm_segmentation"))
	assert.Equal(t, "/metrics/job/rfm_segmentation", gotPath)
	assert.Contains(t, buf.String(), `"message":"Recorded run metrics"`)
	assert.Contains(t, buf.String(), `"message":"Pushed run metrics"`)
}

func TestPush_EmptyURL(t *testing.T) {
	assert.NoError(t, NewMetrics().Push(context.Background(), "", "job"))
}

func TestPush_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := NewMetrics().Push(context.Background(), srv.URL, "rfm_segmentation")
	assert.Error(t, err)
}
