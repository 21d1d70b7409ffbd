package notionsync

import (
	"time"

	"github.com/jomei/notionapi"
	"github.com/shopspring/decimal"
)

// Property names of the segment summary database.
const (
	PropSegment       = "Segment"
	PropCustomers     = "Customers"
	PropShare         = "Share"
	PropMonetary      = "Monetary"
	PropRunID         = "Run ID"
	PropReferenceDate = "Reference Date"
	PropRule          = "Rule"
)

// SegmentSummary is one segment of one run, as shown on the dashboard.
type SegmentSummary struct {
	Segment       string
	Rule          string
	Customers     int
	Share         float64
	Monetary      decimal.Decimal
	RunID         string
	ReferenceDate time.Time
}

// SegmentSummaryToNotionProperties converts a SegmentSummary to Notion properties.
// The segment name is the page title and identifies the page across runs.
func SegmentSummaryToNotionProperties(s SegmentSummary) notionapi.Properties {
	props := notionapi.Properties{
		PropSegment: notionapi.TitleProperty{
			Title: []notionapi.RichText{
				{
					Type: notionapi.ObjectTypeText,
					Text: &notionapi.Text{
						Content: s.Segment,
					},
				},
			},
		},
		PropCustomers: notionapi.NumberProperty{
			Number: float64(s.Customers),
		},
		PropShare: notionapi.NumberProperty{
			Number: s.Share,
		},
		PropMonetary: notionapi.NumberProperty{
			Number: s.Monetary.Round(2).InexactFloat64(),
		},
		PropRunID: notionapi.RichTextProperty{
			RichText: []notionapi.RichText{
				{
					Type: notionapi.ObjectTypeText,
					Text: &notionapi.Text{
						Content: s.RunID,
					},
				},
			},
		},
	}

	if !s.ReferenceDate.IsZero() {
		props[PropReferenceDate] = notionapi.DateProperty{
			Date: &notionapi.DateObject{
				Start: func() *notionapi.Date {
					d := notionapi.Date(time.Date(
						s.ReferenceDate.Year(), s.ReferenceDate.Month(), s.ReferenceDate.Day(),
						0, 0, 0, 0, time.UTC,
					))
					return &d
				}(),
			},
		}
	}

	if s.Rule != "" {
		props[PropRule] = notionapi.RichTextProperty{
			RichText: []notionapi.RichText{
				{
					Type: notionapi.ObjectTypeText,
					Text: &notionapi.Text{
						Content: s.Rule,
					},
				},
			},
		}
	}

	return props
}

// extractSegment extracts the segment title from a Notion page's properties.
// Returns empty string if not found.
func extractSegment(page notionapi.Page) string {
	if prop, ok := page.Properties[PropSegment]; ok {
		if title, ok := prop.(*notionapi.TitleProperty); ok {
			if len(title.Title) > 0 {
				return title.Title[0].PlainText
			}
		}
	}
	return ""
}
