package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dvloznov/customer-rfm/internal/bigquery"
	infraBQ "github.com/dvloznov/customer-rfm/internal/infra/bigquery"
	"github.com/dvloznov/customer-rfm/internal/logger"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra flags
var inspectLimit int

//nolint:gochecknoglobals // Cobra commands are typically global
var inspectCmd = &cobra.Command{
	Use:   "inspect [run-id]",
	Short: "List recent runs, or show the segments of one run",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runInspect,
}

func init() {
	rootCmd.AddCommand(inspectCmd)

	inspectCmd.Flags().IntVar(&inspectLimit, "limit", 20, "number of runs to list")
}

func runInspect(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	repo, err := infraBQ.NewRepository(ctx, infraBQ.Dataset{
		ProjectID: cfg.BigQuery.Project,
		DatasetID: cfg.BigQuery.Dataset,
	})
	if err != nil {
		return fmt.Errorf("inspect: %w", err)
	}
	defer repo.Close()

	if len(args) == 0 {
		runs, err := repo.ListRuns(ctx, inspectLimit)
		if err != nil {
			return err
		}
		return printRuns(cmd.OutOrStdout(), runs)
	}

	run, err := repo.GetRun(ctx, args[0])
	if err != nil {
		return err
	}
	counts, err := repo.SegmentCounts(ctx, run.RunID)
	if err != nil {
		return err
	}
	return printSegments(cmd.OutOrStdout(), run, counts)
}

func printRuns(out io.Writer, runs []*bigquery.RunRow) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN ID\tSTARTED\tSTATUS\tCUSTOMERS\tREFERENCE DATE\tSOURCE")

	for _, r := range runs {
		customers := "-"
		if r.Customers.Valid {
			customers = fmt.Sprint(r.Customers.Int64)
		}
		refDate := "-"
		if r.ReferenceDate.Valid {
			refDate = r.ReferenceDate.Date.String()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.RunID, r.StartedTS.Format(time.RFC3339), r.Status, customers, refDate, r.Source)
	}

	return w.Flush()
}

func printSegments(out io.Writer, run *bigquery.RunRow, counts []*bigquery.SegmentCountRow) error {
	fmt.Fprintf(out, "Run %s (%s, %s)\n\n", run.RunID, run.Status, run.Source)

	var total int64
	for _, c := range counts {
		total += c.Customers
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SEGMENT\tCUSTOMERS\tSHARE\tMONETARY")
	for _, c := range counts {
		share := 0.0
		if total > 0 {
			share = float64(c.Customers) / float64(total) * 100
		}
		monetary := "0.00"
		if c.Monetary != nil {
			monetary = c.Monetary.FloatString(2)
		}
		fmt.Fprintf(w, "%s\t%d\t%.1f%%\t%s\n", c.Segment, c.Customers, share, monetary)
	}

	return w.Flush()
}
