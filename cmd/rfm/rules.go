package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dvloznov/customer-rfm/internal/rfm"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra commands are typically global
var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Print the segment rules in evaluation order",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return printRules(cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(rulesCmd)
}

func printRules(out io.Writer) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tCONDITION\tSEGMENT")
	for i, r := range rfm.SegmentRules {
		fmt.Fprintf(w, "%d\t%s\t%s\n", i+1, r.Condition, r.Segment)
	}
	return w.Flush()
}
