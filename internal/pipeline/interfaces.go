package pipeline

import (
	"context"
	"time"

	"github.com/dvloznov/customer-rfm/internal/rfm"
)

// Source supplies the raw transaction rows of one snapshot.
type Source interface {
	// Load reads every row. A missing or unreadable source is an error.
	Load(ctx context.Context) ([]rfm.RawTransactionRow, error)

	// Describe names the source for logs and run records.
	Describe() string
}

// Sink persists or reports the final customer table.
type Sink interface {
	Write(ctx context.Context, result *Result) error
	Name() string
}

// RunTracker records the lifecycle of a run. It is optional.
type RunTracker interface {
	StartRun(ctx context.Context, runID, source string) error
	MarkRunFailed(ctx context.Context, runID string, runErr error)
	MarkRunSucceeded(ctx context.Context, runID string, customers int, referenceDate time.Time) error
}

// MetricsRecorder observes finished runs. It is optional.
type MetricsRecorder interface {
	// RecordRun is called once per run; result is nil when the run failed.
	RecordRun(ctx context.Context, result *Result, duration time.Duration, runErr error)
}
