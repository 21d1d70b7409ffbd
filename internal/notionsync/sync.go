package notionsync

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/customer-rfm/internal/logger"
	"github.com/jomei/notionapi"
)

const (
	// PageSize is the number of pages requested per database query
	PageSize = 100
)

// ErrPartialSync is returned when some pages could not be written.
var ErrPartialSync = errors.New("notion sync incomplete")

// SyncStats counts the page operations of one sync.
type SyncStats struct {
	Created  int
	Updated  int
	Archived int
	Failed   int
}

// SyncSegmentSummaries upserts one page per segment into the Notion database.
// Pages are matched by their Segment title, so repeated syncs update in place.
// Pages whose title is not a current segment are archived. Individual page
// failures are logged and counted; any failure yields ErrPartialSync.
func SyncSegmentSummaries(ctx context.Context, notionClient NotionService, notionDBID string, summaries []SegmentSummary, dryRun bool) (SyncStats, error) {
	log := logger.FromContext(ctx)
	var stats SyncStats

	log.Info().
		Int("segments", len(summaries)).
		Bool("dry_run", dryRun).
		Msg("Starting segment sync to Notion")

	pages, err := queryAllNotionPages(ctx, notionClient, notionDBID)
	if err != nil {
		return stats, fmt.Errorf("SyncSegmentSummaries: failed to query Notion pages: %w", err)
	}

	existing := make(map[string]string, len(pages))
	current := make(map[string]bool, len(summaries))
	for _, s := range summaries {
		current[s.Segment] = true
	}

	for _, page := range pages {
		segment := extractSegment(page)
		if current[segment] {
			if _, dup := existing[segment]; !dup {
				existing[segment] = string(page.ID)
				continue
			}
		}

		// stale or duplicate page
		if dryRun {
			log.Info().Str("segment", segment).Str("page_id", string(page.ID)).Msg("[DRY RUN] Would archive Notion page")
			stats.Archived++
			continue
		}
		if err := notionClient.DeletePage(ctx, string(page.ID)); err != nil {
			log.Warn().Err(err).Str("page_id", string(page.ID)).Msg("Failed to archive Notion page")
			stats.Failed++
			continue
		}
		stats.Archived++
	}

	for _, s := range summaries {
		pageID, found := existing[s.Segment]

		if dryRun {
			if found {
				log.Info().Str("segment", s.Segment).Str("page_id", pageID).Int("customers", s.Customers).Msg("[DRY RUN] Would update Notion page")
				stats.Updated++
			} else {
				log.Info().Str("segment", s.Segment).Int("customers", s.Customers).Msg("[DRY RUN] Would create Notion page")
				stats.Created++
			}
			continue
		}

		props := SegmentSummaryToNotionProperties(s)
		if found {
			if _, err := notionClient.UpdatePage(ctx, pageID, props); err != nil {
				log.Warn().Err(err).Str("segment", s.Segment).Str("page_id", pageID).Msg("Failed to update Notion page")
				stats.Failed++
				continue
			}
			stats.Updated++
			continue
		}

		page, err := notionClient.CreatePage(ctx, notionDBID, props)
		if err != nil {
			log.Warn().Err(err).Str("segment", s.Segment).Msg("Failed to create Notion page")
			stats.Failed++
			continue
		}
		log.Debug().Str("segment", s.Segment).Str("page_id", string(page.ID)).Msg("Created Notion page")
		stats.Created++
	}

	log.Info().
		Int("created", stats.Created).
		Int("updated", stats.Updated).
		Int("archived", stats.Archived).
		Int("failed", stats.Failed).
		Msg("Segment sync to Notion finished")

	if stats.Failed > 0 {
		return stats, fmt.Errorf("SyncSegmentSummaries: %d page operations failed: %w", stats.Failed, ErrPartialSync)
	}
	return stats, nil
}

// queryAllNotionPages pages through the whole database.
func queryAllNotionPages(ctx context.Context, notionClient NotionService, databaseID string) ([]notionapi.Page, error) {
	var allPages []notionapi.Page
	var cursor notionapi.Cursor

	for {
		req := &notionapi.DatabaseQueryRequest{
			PageSize: PageSize,
		}

		// Only set StartCursor if we have a cursor value
		if cursor != "" {
			req.StartCursor = cursor
		}

		resp, err := notionClient.QueryDatabase(ctx, databaseID, req)
		if err != nil {
			return nil, fmt.Errorf("queryAllNotionPages: %w", err)
		}

		allPages = append(allPages, resp.Results...)

		if !resp.HasMore {
			break
		}
		cursor = resp.NextCursor
	}

	return allPages, nil
}
