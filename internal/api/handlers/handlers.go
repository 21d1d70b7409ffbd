package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/dvloznov/customer-rfm/internal/api/middleware"
	"github.com/dvloznov/customer-rfm/internal/bigquery"
	"github.com/dvloznov/customer-rfm/internal/rfm"
	"github.com/rs/zerolog"
)

// MaxLimit caps the limit query parameter.
const MaxLimit = 1000

// RunsHandler serves segmentation runs and their results.
type RunsHandler struct {
	repo bigquery.ResultsRepository
	log  zerolog.Logger
}

// NewRunsHandler creates a new runs handler.
func NewRunsHandler(repo bigquery.ResultsRepository, log zerolog.Logger) *RunsHandler {
	return &RunsHandler{
		repo: repo,
		log:  log,
	}
}

// ListRuns handles GET /api/runs
func (h *RunsHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	runs, err := h.repo.ListRuns(ctx, limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list runs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list runs")
		return
	}
	if runs == nil {
		runs = []*bigquery.RunRow{}
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}

// GetSegments handles GET /api/runs/{id}/segments
func (h *RunsHandler) GetSegments(w http.ResponseWriter, r *http.Request, runID string) {
	ctx := r.Context()

	run, ok := h.lookupRun(w, r, runID)
	if !ok {
		return
	}

	counts, err := h.repo.SegmentCounts(ctx, runID)
	if err != nil {
		h.log.Error().Err(err).Str("run_id", runID).Msg("Failed to count segments")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to count segments")
		return
	}
	if counts == nil {
		counts = []*bigquery.SegmentCountRow{}
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"run":      run,
		"segments": counts,
		"count":    len(counts),
	})
}

// ListCustomers handles GET /api/runs/{id}/customers?segment=&limit=
func (h *RunsHandler) ListCustomers(w http.ResponseWriter, r *http.Request, runID string) {
	ctx := r.Context()

	segment := r.URL.Query().Get("segment")
	if segment != "" && !knownSegment(segment) {
		middleware.WriteError(w, http.StatusBadRequest, "Unknown segment: "+segment)
		return
	}

	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	if _, ok := h.lookupRun(w, r, runID); !ok {
		return
	}

	customers, err := h.repo.ListCustomers(ctx, runID, segment, limit)
	if err != nil {
		h.log.Error().Err(err).Str("run_id", runID).Msg("Failed to list customers")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list customers")
		return
	}
	if customers == nil {
		customers = []*bigquery.CustomerRFMRow{}
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"run_id":    runID,
		"segment":   segment,
		"customers": customers,
		"count":     len(customers),
	})
}

// ListRules handles GET /api/rules
func ListRules(w http.ResponseWriter, r *http.Request) {
	type rule struct {
		Order     int    `json:"order"`
		Segment   string `json:"segment"`
		Condition string `json:"condition"`
	}

	rules := make([]rule, 0, len(rfm.SegmentRules))
	for i, sr := range rfm.SegmentRules {
		rules = append(rules, rule{Order: i + 1, Segment: string(sr.Segment), Condition: sr.Condition})
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"rules": rules,
		"count": len(rules),
	})
}

func (h *RunsHandler) lookupRun(w http.ResponseWriter, r *http.Request, runID string) (*bigquery.RunRow, bool) {
	run, err := h.repo.GetRun(r.Context(), runID)
	if errors.Is(err, bigquery.ErrRunNotFound) {
		middleware.WriteError(w, http.StatusNotFound, "Run not found")
		return nil, false
	}
	if err != nil {
		h.log.Error().Err(err).Str("run_id", runID).Msg("Failed to get run")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get run")
		return nil, false
	}
	return run, true
}

// parseLimit reads ?limit=. Zero means the repository default.
func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}

	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		middleware.WriteError(w, http.StatusBadRequest, "limit must be a positive integer")
		return 0, false
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return limit, true
}

func knownSegment(s string) bool {
	for _, seg := range rfm.Segments {
		if string(seg) == s {
			return true
		}
	}
	return false
}
