package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/customer-rfm/internal/logger"
	"github.com/dvloznov/customer-rfm/internal/rfm"
	"github.com/shopspring/decimal"
)

// PipelineStep represents a single step in the segmentation pipeline.
type PipelineStep interface {
	Name() string
	Execute(ctx context.Context, state *PipelineState) error
}

// PipelineState holds the shared state across all pipeline steps.
type PipelineState struct {
	RunID     string
	StartedAt time.Time

	Rows          []rfm.RawTransactionRow
	ValidRows     []rfm.RawTransactionRow
	Transactions  []rfm.CleanTransaction
	Invoices      []rfm.Invoice
	Customers     []*rfm.CustomerRFM
	ReferenceDate time.Time

	SourceName string
	Summary    Summary
}

// Result snapshots the state for sinks.
func (s *PipelineState) Result() *Result {
	return &Result{
		RunID:         s.RunID,
		Source:        s.SourceName,
		StartedAt:     s.StartedAt,
		ReferenceDate: s.ReferenceDate,
		Customers:     s.Customers,
		Summary:       s.Summary,
	}
}

// Step 1: LoadRowsStep reads the raw snapshot from a Source.
type LoadRowsStep struct {
	Source Source
}

func (s *LoadRowsStep) Name() string { return "load_rows" }

func (s *LoadRowsStep) Execute(ctx context.Context, state *PipelineState) error {
	rows, err := s.Source.Load(ctx)
	if err != nil {
		return fmt.Errorf("LoadRowsStep: loading %s: %w", s.Source.Describe(), err)
	}
	state.SourceName = s.Source.Describe()
	state.Rows = rows
	state.Summary.RawRows = len(rows)

	state.Summary.PeriodRows = make(map[string]int)
	for _, r := range rows {
		state.Summary.PeriodRows[r.Period]++
	}

	log := logger.FromContext(ctx)
	for period, n := range state.Summary.PeriodRows {
		log.Debug().Str("period", period).Int("rows", n).Msg("Period loaded")
	}
	log.Info().Str("source", state.SourceName).Int("rows", len(rows)).Msg("Loaded raw rows")
	return nil
}

// Step 2: NormalizeIdentifiersStep keeps rows with a valid customer identifier.
type NormalizeIdentifiersStep struct{}

func (s *NormalizeIdentifiersStep) Name() string { return "normalize_identifiers" }

func (s *NormalizeIdentifiersStep) Execute(ctx context.Context, state *PipelineState) error {
	state.ValidRows = rfm.FilterValidIdentifiers(state.Rows)
	state.Summary.ValidIdentifierRows = len(state.ValidRows)

	log := logger.FromContext(ctx)
	log.Info().
		Int("kept", len(state.ValidRows)).
		Int("dropped", len(state.Rows)-len(state.ValidRows)).
		Msg("Normalized identifiers")
	return nil
}

// Step 3: CleanTransactionsStep parses dates and amounts and drops bad rows.
type CleanTransactionsStep struct {
	Cleaner *rfm.Cleaner
}

func (s *CleanTransactionsStep) Name() string { return "clean_transactions" }

func (s *CleanTransactionsStep) Execute(ctx context.Context, state *PipelineState) error {
	cleaner := s.Cleaner
	if cleaner == nil {
		cleaner = rfm.NewCleaner(nil)
	}

	txs, stats := cleaner.Clean(state.ValidRows)
	state.Transactions = txs
	state.Summary.Clean = stats
	state.Summary.CleanRows = len(txs)

	log := logger.FromContext(ctx)
	log.Info().
		Int("input", stats.Input).
		Int("kept", stats.Kept).
		Int("missing_identifier", stats.MissingIdentifier).
		Int("invalid_date", stats.InvalidDate).
		Int("invalid_amount", stats.InvalidAmount).
		Int("missing_invoice", stats.MissingInvoice).
		Int("non_positive", stats.NonPositive).
		Int("duplicate", stats.Duplicate).
		Str("total_amount", rfm.TotalTransactionAmount(txs).String()).
		Msg("Cleaned transactions")
	return nil
}

// Step 4: AggregateInvoicesStep rolls item lines up to invoices.
type AggregateInvoicesStep struct{}

func (s *AggregateInvoicesStep) Name() string { return "aggregate_invoices" }

func (s *AggregateInvoicesStep) Execute(ctx context.Context, state *PipelineState) error {
	state.Invoices = rfm.AggregateInvoices(state.Transactions)
	state.Summary.Invoices = len(state.Invoices)

	log := logger.FromContext(ctx)
	log.Info().
		Int("invoices", len(state.Invoices)).
		Str("total_amount", rfm.TotalInvoiceAmount(state.Invoices).String()).
		Msg("Aggregated invoices")
	return nil
}

// Step 5: ComputeRFMStep derives recency, frequency and monetary per customer.
type ComputeRFMStep struct{}

func (s *ComputeRFMStep) Name() string { return "compute_rfm" }

func (s *ComputeRFMStep) Execute(ctx context.Context, state *PipelineState) error {
	customers, ref, err := rfm.ComputeRFM(state.Invoices)
	if err != nil {
		return fmt.Errorf("ComputeRFMStep: %w", err)
	}
	state.Customers = customers
	state.ReferenceDate = ref
	state.Summary.Customers = len(customers)

	total := decimal.Zero
	for _, c := range customers {
		total = total.Add(c.Monetary)
	}
	state.Summary.TotalMonetary = total

	log := logger.FromContext(ctx)
	log.Info().
		Int("customers", len(customers)).
		Time("reference_date", ref).
		Msg("Computed RFM metrics")
	return nil
}

// Step 6: ScoreQuintilesStep assigns 1..5 scores and the RFM code.
type ScoreQuintilesStep struct{}

func (s *ScoreQuintilesStep) Name() string { return "score_quintiles" }

func (s *ScoreQuintilesStep) Execute(ctx context.Context, state *PipelineState) error {
	if err := rfm.ScoreQuintiles(state.Customers); err != nil {
		return fmt.Errorf("ScoreQuintilesStep: %w", err)
	}
	return nil
}

// Step 7: AssignSegmentsStep labels every customer.
type AssignSegmentsStep struct{}

func (s *AssignSegmentsStep) Name() string { return "assign_segments" }

func (s *AssignSegmentsStep) Execute(ctx context.Context, state *PipelineState) error {
	rfm.AssignSegments(state.Customers)
	state.Summary.Segments = rfm.SegmentCounts(state.Customers)

	log := logger.FromContext(ctx)
	for _, seg := range rfm.Segments {
		log.Info().Str("segment", string(seg)).Int("customers", state.Summary.Segments[seg]).Msg("Segment size")
	}
	return nil
}

// Step 8: WriteSinksStep hands the result to every sink in order.
// The first failing sink aborts the run.
type WriteSinksStep struct {
	Sinks []Sink
}

func (s *WriteSinksStep) Name() string { return "write_sinks" }

func (s *WriteSinksStep) Execute(ctx context.Context, state *PipelineState) error {
	log := logger.FromContext(ctx)
	result := state.Result()
	for _, sink := range s.Sinks {
		if err := sink.Write(ctx, result); err != nil {
			return fmt.Errorf("WriteSinksStep: sink %s: %w", sink.Name(), err)
		}
		log.Info().Str("sink", sink.Name()).Msg("Sink written")
	}
	return nil
}

// Pipeline represents a sequence of steps to execute.
type Pipeline struct {
	steps []PipelineStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps in the pipeline sequentially.
func (p *Pipeline) Execute(ctx context.Context, state *PipelineState) error {
	for i, step := range p.steps {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("pipeline step %d (%s) cancelled: %w", i+1, step.Name(), err)
		}
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("pipeline step %d (%s) failed: %w", i+1, step.Name(), err)
		}
	}
	return nil
}

// Steps lists the step names in execution order.
func (p *Pipeline) Steps() []string {
	names := make([]string, len(p.steps))
	for i, step := range p.steps {
		names[i] = step.Name()
	}
	return names
}

// NewSegmentationPipeline creates the standard 8-step segmentation pipeline.
func NewSegmentationPipeline(source Source, cleaner *rfm.Cleaner, sinks ...Sink) *Pipeline {
	return NewPipeline(
		&LoadRowsStep{Source: source},
		&NormalizeIdentifiersStep{},
		&CleanTransactionsStep{Cleaner: cleaner},
		&AggregateInvoicesStep{},
		&ComputeRFMStep{},
		&ScoreQuintilesStep{},
		&AssignSegmentsStep{},
		&WriteSinksStep{Sinks: sinks},
	)
}
