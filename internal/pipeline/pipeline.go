package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/customer-rfm/internal/logger"
	"github.com/dvloznov/customer-rfm/internal/rfm"
	"github.com/google/uuid"
)

// ErrNoSource is returned by Run when Deps carries no Source.
var ErrNoSource = errors.New("pipeline: no source configured")

// Deps wires one segmentation run. Tracker and Metrics may be nil.
type Deps struct {
	Source      Source
	Sinks       []Sink
	DateLayouts []string
	Tracker     RunTracker
	Metrics     MetricsRecorder

	// Now defaults to time.Now and exists for tests.
	Now func() time.Time
}

// Run executes the segmentation pipeline once.
// The run is tracked start to finish when a tracker is set; a failed run is
// marked failed and its error returned unchanged in chain.
func Run(ctx context.Context, deps Deps) (*Result, error) {
	if deps.Source == nil {
		return nil, ErrNoSource
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	state := &PipelineState{
		RunID:     uuid.NewString(),
		StartedAt: now().UTC(),
	}

	log := logger.FromContext(ctx).With().Str("run_id", state.RunID).Logger()
	ctx = logger.WithContext(ctx, log)

	if deps.Tracker != nil {
		if err := deps.Tracker.StartRun(ctx, state.RunID, deps.Source.Describe()); err != nil {
			return nil, fmt.Errorf("Run: starting run: %w", err)
		}
	}

	p := NewSegmentationPipeline(deps.Source, rfm.NewCleaner(deps.DateLayouts), deps.Sinks...)
	log.Info().Strs("steps", p.Steps()).Msg("Starting segmentation run")

	if err := p.Execute(ctx, state); err != nil {
		log.Error().Err(err).Msg("Segmentation run failed")
		if deps.Tracker != nil {
			deps.Tracker.MarkRunFailed(ctx, state.RunID, err)
		}
		if deps.Metrics != nil {
			deps.Metrics.RecordRun(ctx, nil, now().Sub(state.StartedAt), err)
		}
		return nil, err
	}

	result := state.Result()

	if deps.Tracker != nil {
		if err := deps.Tracker.MarkRunSucceeded(ctx, state.RunID, len(result.Customers), result.ReferenceDate); err != nil {
			return nil, fmt.Errorf("Run: marking run succeeded: %w", err)
		}
	}
	if deps.Metrics != nil {
		deps.Metrics.RecordRun(ctx, result, now().Sub(state.StartedAt), nil)
	}

	log.Info().
		Int("customers", result.Summary.Customers).
		Time("reference_date", result.ReferenceDate).
		Msg("Segmentation run finished")
	return result, nil
}
