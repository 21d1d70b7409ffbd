package rfm

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		r, f, m int
		want    Segment
	}{
		{5, 5, 5, SegmentChampions},
		{4, 4, 4, SegmentChampions},
		{3, 3, 1, SegmentLoyal},
		{5, 5, 3, SegmentLoyal},
		{5, 1, 1, SegmentNewCustomers},
		{4, 2, 5, SegmentNewCustomers},
		{1, 4, 2, SegmentAtRisk},
		{2, 3, 5, SegmentAtRisk},
		{1, 1, 1, SegmentLost},
		{2, 2, 5, SegmentLost},
		{3, 2, 3, SegmentPromising},
		{3, 1, 5, SegmentPromising},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d%d%d", tt.r, tt.f, tt.m), func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.r, tt.f, tt.m))
		})
	}
}

func TestClassify_FirstMatchWins(t *testing.T) {
	// 4,4,4 satisfies both the Champions and the Loyal rule.
	assert.True(t, SegmentRules[0].Match(4, 4, 4))
	assert.True(t, SegmentRules[1].Match(4, 4, 4))
	assert.Equal(t, SegmentChampions, Classify(4, 4, 4))
}

func TestClassify_Total(t *testing.T) {
	valid := map[Segment]bool{}
	for _, s := range Segments {
		valid[s] = true
	}
	for r := 1; r <= 5; r++ {
		for f := 1; f <= 5; f++ {
			for m := 1; m <= 5; m++ {
				assert.True(t, valid[Classify(r, f, m)])
			}
		}
	}
	last := SegmentRules[len(SegmentRules)-1]
	assert.Equal(t, SegmentPromising, last.Segment)
	assert.True(t, last.Match(0, 0, 0))
}

func TestAssignSegmentsAndCounts(t *testing.T) {
	customers := []*CustomerRFM{
		{RScore: 5, FScore: 5, MScore: 5},
		{RScore: 1, FScore: 1, MScore: 1},
		{RScore: 1, FScore: 2, MScore: 1},
	}
	AssignSegments(customers)

	assert.Equal(t, SegmentChampions, customers[0].Segment)
	assert.Equal(t, SegmentLost, customers[1].Segment)

	counts := SegmentCounts(customers)
	assert.Len(t, counts, len(Segments))
	assert.Equal(t, 1, counts[SegmentChampions])
	assert.Equal(t, 2, counts[SegmentLost])
	assert.Equal(t, 0, counts[SegmentLoyal])
}
