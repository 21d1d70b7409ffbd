package sink

import (
	"context"
	"fmt"

	"github.com/dvloznov/customer-rfm/internal/notionsync"
	"github.com/dvloznov/customer-rfm/internal/pipeline"
	"github.com/dvloznov/customer-rfm/internal/rfm"
)

// Notion publishes the per-segment summary to a Notion database.
type Notion struct {
	client     notionsync.NotionService
	databaseID string
	dryRun     bool
}

func NewNotion(client notionsync.NotionService, databaseID string, dryRun bool) *Notion {
	return &Notion{client: client, databaseID: databaseID, dryRun: dryRun}
}

func (n *Notion) Name() string { return "notion" }

func (n *Notion) Write(ctx context.Context, result *pipeline.Result) error {
	if _, err := notionsync.SyncSegmentSummaries(ctx, n.client, n.databaseID, SegmentSummaries(result), n.dryRun); err != nil {
		return fmt.Errorf("Notion.Write: %w", err)
	}
	return nil
}

// SegmentSummaries lists every segment in rule order, empty ones included.
func SegmentSummaries(result *pipeline.Result) []notionsync.SegmentSummary {
	out := make([]notionsync.SegmentSummary, 0, len(rfm.SegmentRules))
	for _, rule := range rfm.SegmentRules {
		out = append(out, notionsync.SegmentSummary{
			Segment:       string(rule.Segment),
			Rule:          rule.Condition,
			Customers:     result.Summary.Segments[rule.Segment],
			Share:         result.SegmentShare(rule.Segment),
			Monetary:      result.SegmentMonetary(rule.Segment),
			RunID:         result.RunID,
			ReferenceDate: result.ReferenceDate,
		})
	}
	return out
}
