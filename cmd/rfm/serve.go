package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/customer-rfm/internal/api"
	"github.com/dvloznov/customer-rfm/internal/config"
	"github.com/dvloznov/customer-rfm/internal/gcsuploader"
	infraBQ "github.com/dvloznov/customer-rfm/internal/infra/bigquery"
	"github.com/dvloznov/customer-rfm/internal/jobs"
	"github.com/dvloznov/customer-rfm/internal/jobs/inmemory"
	"github.com/dvloznov/customer-rfm/internal/logger"
	"github.com/spf13/cobra"
)

// jobTimeout bounds one queued segmentation run.
const jobTimeout = 30 * time.Minute

//nolint:gochecknoglobals // Cobra flags
var servePort string

//nolint:gochecknoglobals // Cobra commands are typically global
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve segmentation results over HTTP",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&servePort, "port", "", "HTTP server port (overrides api.port)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.BigQuery.Project == "" {
		return fmt.Errorf("serve: bigquery project is required")
	}

	port := cfg.API.Port
	if servePort != "" {
		port = servePort
	}

	ctx := logger.WithContext(cmd.Context(), log)

	repo, err := infraBQ.NewRepository(ctx, infraBQ.Dataset{
		ProjectID: cfg.BigQuery.Project,
		DatasetID: cfg.BigQuery.Dataset,
	})
	if err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	defer repo.Close()

	// Initialize job infrastructure
	jobStore := inmemory.NewStore()
	var publisher jobs.Publisher
	var jobQueue *inmemory.Queue

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	if cfg.API.EnableRuns {
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("serve: runs enabled but the run config is invalid: %w", err)
		}

		jobQueue = inmemory.NewQueue(cfg.API.QueueSize, 1, jobStore)
		if err := jobQueue.Start(workerCtx, segmentationJobHandler(cfg, repo)); err != nil {
			return fmt.Errorf("serve: starting job worker: %w", err)
		}
		publisher = jobQueue
		log.Info().Int("queue_size", cfg.API.QueueSize).Msg("Run triggering enabled")
	}

	server := &http.Server{
		Addr: ":" + port,
		Handler: api.NewRouter(api.Deps{
			Results:       repo,
			Jobs:          jobStore,
			Publisher:     publisher,
			Log:           log,
			AllowedOrigin: cfg.API.AllowedOrigins,
		}),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("port", port).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-quit:
	}

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("serve: shutdown: %w", err)
	}

	// Stop job queue and wait for in-flight runs
	if jobQueue != nil {
		if err := jobQueue.Stop(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Error stopping job queue")
		}
	}

	log.Info().Msg("Server exited")
	return nil
}

// segmentationJobHandler runs a queued job against a copy of cfg with the job's overrides applied.
func segmentationJobHandler(cfg *config.Config, repo *infraBQ.Repository) jobs.JobHandler {
	storage := gcsuploader.NewGCSStorageService()

	return func(ctx context.Context, job *jobs.SegmentationJob) error {
		runCfg := *cfg
		if job.InputPath != "" {
			runCfg.Input.Path = job.InputPath
		}
		if len(job.Sheets) > 0 {
			runCfg.Input.Sheets = job.Sheets
		}
		if err := runCfg.Validate(); err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(ctx, jobTimeout)
		defer cancel()

		result, err := executeRun(ctx, &runCfg, repo, storage)
		if err != nil {
			return err
		}

		job.RunID = result.RunID
		job.Customers = result.Summary.Customers
		return nil
	}
}
