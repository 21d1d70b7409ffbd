package sink

import (
	"context"
	"sort"

	"github.com/dvloznov/customer-rfm/internal/logger"
	"github.com/dvloznov/customer-rfm/internal/pipeline"
	"github.com/dvloznov/customer-rfm/internal/rfm"
)

// Log reports the customer count by segment, largest first.
type Log struct{}

func NewLog() *Log { return &Log{} }

func (l *Log) Name() string { return "log" }

func (l *Log) Write(ctx context.Context, result *pipeline.Result) error {
	log := logger.FromContext(ctx)

	for _, seg := range SegmentsBySize(result.Summary.Segments) {
		log.Info().
			Str("segment", string(seg)).
			Int("customers", result.Summary.Segments[seg]).
			Str("monetary", result.SegmentMonetary(seg).StringFixed(2)).
			Msg("Customer count by segment")
	}
	log.Info().
		Int("customers", result.Summary.Customers).
		Time("reference_date", result.ReferenceDate).
		Msg("Segmentation summary")
	return nil
}

// SegmentsBySize orders the non-empty segments by descending count. Equal
// counts keep rule order.
func SegmentsBySize(counts map[rfm.Segment]int) []rfm.Segment {
	var out []rfm.Segment
	for _, s := range rfm.Segments {
		if counts[s] > 0 {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return counts[out[i]] > counts[out[j]]
	})
	return out
}
