package api

import (
	"net/http"
	"time"

	"github.com/dvloznov/customer-rfm/internal/api/handlers"
	"github.com/dvloznov/customer-rfm/internal/api/middleware"
	"github.com/dvloznov/customer-rfm/internal/bigquery"
	"github.com/dvloznov/customer-rfm/internal/jobs"
	"github.com/rs/zerolog"
)

// Deps are the collaborators of the HTTP API.
type Deps struct {
	Results bigquery.ResultsRepository
	Jobs    jobs.JobStore

	// Publisher may be nil, in which case POST /api/runs answers 503
	Publisher jobs.Publisher

	Log           zerolog.Logger
	AllowedOrigin string
}

// NewRouter wires the endpoints and the middleware chain.
func NewRouter(d Deps) http.Handler {
	runsHandler := handlers.NewRunsHandler(d.Results, d.Log)
	jobsHandler := handlers.NewJobsHandler(d.Publisher, d.Jobs, d.Log)

	mux := http.NewServeMux()

	// Runs endpoints
	mux.HandleFunc("GET /api/runs", runsHandler.ListRuns)
	mux.HandleFunc("POST /api/runs", jobsHandler.TriggerRun)
	mux.HandleFunc("GET /api/runs/{id}/segments", func(w http.ResponseWriter, r *http.Request) {
		runsHandler.GetSegments(w, r, r.PathValue("id"))
	})
	mux.HandleFunc("GET /api/runs/{id}/customers", func(w http.ResponseWriter, r *http.Request) {
		runsHandler.ListCustomers(w, r, r.PathValue("id"))
	})

	// Jobs endpoints
	mux.HandleFunc("GET /api/jobs", jobsHandler.ListJobs)
	mux.HandleFunc("GET /api/jobs/{id}", func(w http.ResponseWriter, r *http.Request) {
		jobsHandler.GetJob(w, r, r.PathValue("id"))
	})

	mux.HandleFunc("GET /api/rules", handlers.ListRules)

	// Health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	return middleware.Recovery(d.Log)(
		middleware.Logger(d.Log)(
			middleware.RequestID(
				middleware.CORS(d.AllowedOrigin)(mux),
			),
		),
	)
}
