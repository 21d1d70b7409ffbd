package observability

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/customer-rfm/internal/logger"
	"github.com/dvloznov/customer-rfm/internal/pipeline"
	"github.com/dvloznov/customer-rfm/internal/rfm"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Run status label values.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Stage label values for RowsProcessed.
const (
	StageRaw             = "raw"
	StageValidIdentifier = "valid_identifier"
	StageClean           = "clean"
	StageInvoices        = "invoices"
	StageCustomers       = "customers"
)

// Metrics holds the gauges of one segmentation job. Each instance owns its
// registry so that a batch run pushes exactly these series.
type Metrics struct {
	registry *prometheus.Registry

	// RunsTotal counts finished runs by status
	RunsTotal *prometheus.CounterVec

	// RunDuration is the wall time of the last run in seconds
	RunDuration *prometheus.GaugeVec

	// LastSuccess is the unix timestamp of the last successful run
	LastSuccess prometheus.Gauge

	// RowsProcessed is the number of rows left after each stage of the last run
	RowsProcessed *prometheus.GaugeVec

	// RowsDropped is the number of rows the cleaner dropped, by reason
	RowsDropped *prometheus.GaugeVec

	// SegmentCustomers is the number of customers per segment in the last run
	SegmentCustomers *prometheus.GaugeVec

	// SegmentMonetary is the monetary total per segment in the last run
	SegmentMonetary *prometheus.GaugeVec

	// ReferenceDate is the unix timestamp of the last run's reference date
	ReferenceDate prometheus.Gauge
}

// NewMetrics registers the job metrics in a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		RunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rfm_runs_total",
				Help: "Total number of segmentation runs",
			},
			[]string{"status"},
		),
		RunDuration: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "rfm_run_duration_seconds",
				Help: "Duration of the last segmentation run in seconds",
			},
			[]string{"status"},
		),
		LastSuccess: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "rfm_last_success_timestamp_seconds",
				Help: "Unix timestamp of the last successful segmentation run",
			},
		),
		RowsProcessed: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "rfm_rows",
				Help: "Rows remaining after each pipeline stage of the last run",
			},
			[]string{"stage"}, // stage: raw, valid_identifier, clean, invoices, customers
		),
		RowsDropped: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "rfm_rows_dropped",
				Help: "Rows dropped by the cleaner in the last run",
			},
			[]string{"reason"},
		),
		SegmentCustomers: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "rfm_segment_customers",
				Help: "Customers per segment in the last run",
			},
			[]string{"segment"},
		),
		SegmentMonetary: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "rfm_segment_monetary",
				Help: "Monetary total per segment in the last run",
			},
			[]string{"segment"},
		),
		ReferenceDate: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "rfm_reference_date_timestamp_seconds",
				Help: "Reference date of the last successful run as a unix timestamp",
			},
		),
	}
}

// Registry returns the registry the metrics live in.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordRun implements pipeline.MetricsRecorder. result is nil when the run failed.
func (m *Metrics) RecordRun(ctx context.Context, result *pipeline.Result, duration time.Duration, runErr error) {
	status := StatusSuccess
	if runErr != nil || result == nil {
		status = StatusFailed
	}

	m.RunsTotal.WithLabelValues(status).Inc()
	m.RunDuration.WithLabelValues(status).Set(duration.Seconds())

	if status == StatusFailed {
		return
	}

	s := result.Summary
	m.RowsProcessed.WithLabelValues(StageRaw).Set(float64(s.RawRows))
	m.RowsProcessed.WithLabelValues(StageValidIdentifier).Set(float64(s.ValidIdentifierRows))
	m.RowsProcessed.WithLabelValues(StageClean).Set(float64(s.CleanRows))
	m.RowsProcessed.WithLabelValues(StageInvoices).Set(float64(s.Invoices))
	m.RowsProcessed.WithLabelValues(StageCustomers).Set(float64(s.Customers))

	m.RowsDropped.WithLabelValues("missing_identifier").Set(float64(s.Clean.MissingIdentifier))
	m.RowsDropped.WithLabelValues("invalid_date").Set(float64(s.Clean.InvalidDate))
	m.RowsDropped.WithLabelValues("invalid_amount").Set(float64(s.Clean.InvalidAmount))
	m.RowsDropped.WithLabelValues("missing_invoice").Set(float64(s.Clean.MissingInvoice))
	m.RowsDropped.WithLabelValues("non_positive").Set(float64(s.Clean.NonPositive))
	m.RowsDropped.WithLabelValues("duplicate").Set(float64(s.Clean.Duplicate))

	for _, seg := range rfm.Segments {
		m.SegmentCustomers.WithLabelValues(string(seg)).Set(float64(s.Segments[seg]))
		m.SegmentMonetary.WithLabelValues(string(seg)).Set(result.SegmentMonetary(seg).InexactFloat64())
	}

	m.ReferenceDate.Set(float64(result.ReferenceDate.Unix()))
	m.LastSuccess.Set(float64(result.StartedAt.Add(duration).Unix()))

	log := logger.FromContext(ctx)
	log.Debug().
		Str("status", status).
		Dur("duration", duration).
		Msg("Recorded run metrics")
}

// Push sends every metric to the Pushgateway at url under job. An empty url is a no-op.
func (m *Metrics) Push(ctx context.Context, url, job string) error {
	if url == "" {
		return nil
	}

	err := push.New(url, job).
		Gatherer(m.registry).
		PushContext(ctx)
	if err != nil {
		return fmt.Errorf("Push: pushing to %s: %w", url, err)
	}

	log := logger.FromContext(ctx)
	log.Info().Str("url", url).Str("job", job).Msg("Pushed run metrics")
	return nil
}
