package main

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/customer-rfm/internal/config"
	"github.com/dvloznov/customer-rfm/internal/gcsuploader"
	infraBQ "github.com/dvloznov/customer-rfm/internal/infra/bigquery"
	"github.com/dvloznov/customer-rfm/internal/logger"
	"github.com/dvloznov/customer-rfm/internal/notionsync"
	"github.com/dvloznov/customer-rfm/internal/observability"
	"github.com/dvloznov/customer-rfm/internal/pipeline"
	"github.com/dvloznov/customer-rfm/internal/sink"
	"github.com/dvloznov/customer-rfm/internal/source"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra flags
var (
	runInput   string
	runOutput  string
	runSheets  []string
	runTimeout time.Duration
)

//nolint:gochecknoglobals // Cobra commands are typically global
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one segmentation and write the results",
	Long: `Loads the configured transactions, cleans them, computes recency, frequency
and monetary value per customer, scores them in quintiles, assigns segments and
writes the customer table to every configured output.`,
	RunE: runSegmentation,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runInput, "input", "", "input workbook path or gs:// URI (overrides input.path)")
	runCmd.Flags().StringVar(&runOutput, "output", "", "output workbook path or gs:// URI (overrides output.path)")
	runCmd.Flags().StringSliceVar(&runSheets, "sheet", nil, "only load these sheets (repeatable)")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 30*time.Minute, "abort the run after this long")
}

func runSegmentation(cmd *cobra.Command, _ []string) error {
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if runInput != "" {
		cfg.Input.Path = runInput
	}
	if runOutput != "" {
		cfg.Output.Path = runOutput
	}
	if len(runSheets) > 0 {
		cfg.Input.Sheets = runSheets
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), runTimeout)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	var repo *infraBQ.Repository
	if cfg.BigQuery.Enabled() {
		repo, err = infraBQ.NewRepository(ctx, infraBQ.Dataset{
			ProjectID: cfg.BigQuery.Project,
			DatasetID: cfg.BigQuery.Dataset,
		})
		if err != nil {
			return fmt.Errorf("run: %w", err)
		}
		defer repo.Close()
	}

	result, err := executeRun(ctx, cfg, repo, gcsuploader.NewGCSStorageService())
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "run %s: %d customers segmented, reference date %s\n",
		result.RunID, result.Summary.Customers, result.ReferenceDate.Format("2006-01-02"))
	return nil
}

// executeRun runs one segmentation with the outputs cfg enables and pushes its metrics.
// repo may be nil when cfg enables no BigQuery feature.
func executeRun(ctx context.Context, cfg *config.Config, repo *infraBQ.Repository, storage *gcsuploader.GCSStorageService) (*pipeline.Result, error) {
	log := logger.FromContext(ctx)

	metrics := observability.NewMetrics()
	deps := pipeline.Deps{
		Source:      buildSource(cfg, repo, storage),
		Sinks:       buildSinks(cfg, repo, storage),
		DateLayouts: cfg.Input.DateLayouts,
		Metrics:     metrics,
	}
	if cfg.BigQuery.TrackRuns {
		deps.Tracker = repo
	}

	result, runErr := pipeline.Run(ctx, deps)

	if err := metrics.Push(ctx, cfg.Metrics.PushgatewayURL, cfg.Metrics.Job); err != nil {
		log.Warn().Err(err).Msg("Failed to push run metrics")
	}
	return result, runErr
}

func buildSource(cfg *config.Config, repo *infraBQ.Repository, storage *gcsuploader.GCSStorageService) pipeline.Source {
	if cfg.BigQuery.SourceTable != "" {
		return source.NewBigQuery(repo.WithRawTable(cfg.BigQuery.SourceTable), cfg.BigQuery.SourceTable, cfg.BigQuery.SourcePeriods)
	}

	cols := cfg.Input.Columns
	return source.NewWorkbook(cfg.Input.Path, source.Columns{
		Identifier:    cols.Identifier,
		InvoiceNumber: cols.InvoiceNumber,
		InvoiceDate:   cols.InvoiceDate,
		ItemName:      cols.ItemName,
		NetAmount:     cols.NetAmount,
	}, cfg.Input.Sheets, storage)
}

func buildSinks(cfg *config.Config, repo *infraBQ.Repository, storage *gcsuploader.GCSStorageService) []pipeline.Sink {
	var sinks []pipeline.Sink

	if cfg.Output.Path != "" {
		sinks = append(sinks, sink.NewWorkbook(cfg.Output.Path, cfg.Output.Sheet, cfg.Output.SummarySheet, storage))
	}
	if cfg.BigQuery.WriteResults {
		sinks = append(sinks, sink.NewBigQuery(repo))
	}
	if cfg.Notion.Enabled {
		sinks = append(sinks, sink.NewNotion(notionsync.NewNotionClient(cfg.Notion.Token), cfg.Notion.DatabaseID, cfg.Notion.DryRun))
	}

	return append(sinks, sink.NewLog())
}
