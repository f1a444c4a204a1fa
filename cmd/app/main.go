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

	"github.com/rs/zerolog/log"

	"github.com/local/pdftools/internal/api"
	cfgpkg "github.com/local/pdftools/internal/config"
	"github.com/local/pdftools/internal/imagerender"
	"github.com/local/pdftools/internal/jobs"
	"github.com/local/pdftools/internal/limiter"
	logpkg "github.com/local/pdftools/internal/logger"
	"github.com/local/pdftools/internal/metrics"
	"github.com/local/pdftools/internal/statuscheck"
	"github.com/local/pdftools/internal/storage"
	"github.com/local/pdftools/internal/tools"
)

func main() {
	cfg := cfgpkg.Load()

	// Init logging
	_ = logpkg.Init(logpkg.Options{
		Service:      "pdftools",
		Level:        cfg.Logging.Level,
		Pretty:       cfg.Logging.Pretty,
		File:         cfg.Logging.File,
		MaxSizeMB:    cfg.Logging.MaxSizeMB,
		MaxBackups:   cfg.Logging.MaxBackups,
		MaxAgeDays:   cfg.Logging.MaxAgeDays,
		Compress:     cfg.Logging.Compress,
		SendToAxiom:  cfg.Axiom.Send && cfg.Axiom.APIKey != "",
		AxiomAPIKey:  cfg.Axiom.APIKey,
		AxiomOrgID:   cfg.Axiom.OrgID,
		AxiomDataset: cfg.Axiom.Dataset,
		AxiomFlush:   cfg.Axiom.FlushInterval,
	})
	defer logpkg.Close()

	metrics.Init()

	runner := tools.NewRunner(tools.Options{Render: imagerender.Options{
		DPI:   cfg.Render.DPI,
		Color: imagerender.ColorMode(cfg.Render.ColorMode),
	}})

	ctx, stopSignals := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()

	deps := api.Dependencies{
		Runner:         runner,
		Limiter:        limiter.New(limiter.Options{MaxInflight: cfg.Server.MaxInflight}),
		MaxUploadBytes: cfg.Server.MaxUploadMB << 20,
	}
	checkOpts := statuscheck.Options{}

	// Async jobs (optional)
	var worker *jobs.Worker
	if cfg.Jobs.Enabled {
		rdb, err := jobs.NewRedisClient(ctx, cfg.Jobs.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer rdb.Close()

		rq, err := jobs.NewRedisQueue(ctx, rdb, cfg.Jobs.Stream, cfg.Jobs.Group)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to init job queue")
		}
		blobs, err := storage.New(ctx, cfg.Storage)
		if err != nil {
			log.Fatal().Err(err).Str("backend", cfg.Storage.Backend).Msg("failed to init storage")
		}

		svc := jobs.NewService(rq, jobs.NewRedisStatus(rdb, cfg.Jobs.ResultTTL), blobs, runner)
		deps.Jobs = svc
		checkOpts.Redis = rq
		checkOpts.Storage = blobs
		checkOpts.StorageBackend = cfg.Storage.Backend

		if cfg.Jobs.RunWorker {
			host, _ := os.Hostname()
			worker = jobs.NewWorker(jobs.WorkerConfig{
				Concurrency:  cfg.Jobs.Concurrency,
				PollInterval: cfg.Jobs.PollInterval,
				Consumer:     host,
			}, svc)
			worker.Start(context.Background())
		}

		if cfg.Storage.Backend == "local" {
			go sweepLocal(ctx, cfg.Storage.LocalDir, cfg.Jobs.ResultTTL)
		}
	}
	deps.Checker = statuscheck.New(checkOpts)

	mux := http.NewServeMux()
	api.New(deps).RegisterRoutes(mux)

	srv := &http.Server{Addr: ":" + cfg.Server.Port, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		log.Info().Msgf("HTTP server listening on :%s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server error")
		}
	}()

	// Graceful shutdown
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	if worker != nil {
		if err := worker.Stop(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("workers did not stop in time")
		}
	}
	fmt.Println("shutdown complete")
}

// sweepLocal removes expired job blobs from the local store.
func sweepLocal(ctx context.Context, dir string, ttl time.Duration) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			storage.CleanupTemps(dir, ttl)
		}
	}
}
