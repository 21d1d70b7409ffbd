package rfm

// Segment is a business-facing customer label.
type Segment string

const (
	SegmentChampions    Segment = "Champions"
	SegmentLoyal        Segment = "Loyal"
	SegmentNewCustomers Segment = "New Customers"
	SegmentAtRisk       Segment = "At Risk"
	SegmentLost         Segment = "Lost"
	SegmentPromising    Segment = "Promising"
)

// Segments lists every label in rule order.
var Segments = []Segment{
	SegmentChampions,
	SegmentLoyal,
	SegmentNewCustomers,
	SegmentAtRisk,
	SegmentLost,
	SegmentPromising,
}

// SegmentRule is one row of the classification table.
type SegmentRule struct {
	Condition string
	Match     func(r, f, m int) bool
	Segment   Segment
}

// SegmentRules is evaluated top to bottom; the first match wins. The rules
// overlap, so the order is part of the contract. The last rule always matches.
var SegmentRules = []SegmentRule{
	{
		Condition: "R >= 4 and F >= 4 and M >= 4",
		Match:     func(r, f, m int) bool { return r >= 4 && f >= 4 && m >= 4 },
		Segment:   SegmentChampions,
	},
	{
		Condition: "R >= 3 and F >= 3",
		Match:     func(r, f, _ int) bool { return r >= 3 && f >= 3 },
		Segment:   SegmentLoyal,
	},
	{
		Condition: "R >= 4 and F <= 2",
		Match:     func(r, f, _ int) bool { return r >= 4 && f <= 2 },
		Segment:   SegmentNewCustomers,
	},
	{
		Condition: "R <= 2 and F >= 3",
		Match:     func(r, f, _ int) bool { return r <= 2 && f >= 3 },
		Segment:   SegmentAtRisk,
	},
	{
		Condition: "R <= 2 and F <= 2",
		Match:     func(r, f, _ int) bool { return r <= 2 && f <= 2 },
		Segment:   SegmentLost,
	},
	{
		Condition: "otherwise",
		Match:     func(_, _, _ int) bool { return true },
		Segment:   SegmentPromising,
	},
}

// Classify returns the segment of the first rule matching the scores.
func Classify(r, f, m int) Segment {
	for _, rule := range SegmentRules {
		if rule.Match(r, f, m) {
			return rule.Segment
		}
	}
	return SegmentPromising
}

// AssignSegments labels every scored customer.
func AssignSegments(customers []*CustomerRFM) {
	for _, c := range customers {
		c.Segment = Classify(c.RScore, c.FScore, c.MScore)
	}
}

// SegmentCounts returns the number of customers per segment, with every
// segment present.
func SegmentCounts(customers []*CustomerRFM) map[Segment]int {
	counts := make(map[Segment]int, len(Segments))
	for _, s := range Segments {
		counts[s] = 0
	}
	for _, c := range customers {
		counts[c.Segment]++
	}
	return counts
}
