package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	cfgpkg "github.com/local/docsuite/internal/config"
	"github.com/local/docsuite/internal/delivery"
	"github.com/local/docsuite/internal/imagerender"
	"github.com/local/docsuite/internal/jobs"
	"github.com/local/docsuite/internal/limiter"
	logpkg "github.com/local/docsuite/internal/logger"
	"github.com/local/docsuite/internal/metrics"
	"github.com/local/docsuite/internal/orchestrator"
	"github.com/local/docsuite/internal/scan"
	"github.com/local/docsuite/internal/statuscheck"
	"github.com/local/docsuite/internal/storage"
	"github.com/local/docsuite/internal/store"
	"github.com/local/docsuite/internal/tools"
)

func main() {
	// .env is optional; real environment wins
	_ = godotenv.Load()
	cfg := cfgpkg.FromEnv()

	if err := logpkg.Init(logpkg.OptionsFrom(cfg)); err != nil {
		log.Fatal().Err(err).Msg("logger init failed")
	}
	defer logpkg.Close()
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Job store: Redis when configured, otherwise in-process
	var (
		jobStore  jobs.Store
		redisPing statuscheck.Pinger
	)
	if cfg.Jobs.RedisURL != "" {
		rs, err := store.NewRedisStatus(cfg.Jobs.RedisURL, cfg.Jobs.StatusTTL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to init redis status store")
		}
		defer rs.Close()
		jobStore, redisPing = rs, rs
	} else {
		jobStore = store.NewMemory(cfg.Jobs.StatusTTL)
	}

	slots, err := limiter.New(limiter.Options{RedisURL: cfg.Jobs.RedisURL, MaxInflight: cfg.Jobs.MaxConcurrent})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init job limiter")
	}
	defer slots.Close()

	// Delivery target for background jobs
	var (
		adapter     delivery.Adapter
		objects     orchestrator.ObjectGetter
		s3Ping      statuscheck.Pinger
		deliveryDir string
	)
	switch cfg.Delivery.Mode {
	case "s3":
		s3c, err := storage.NewS3Client(ctx, storage.Options{
			Bucket:          cfg.Delivery.Bucket,
			Region:          cfg.Delivery.Region,
			AccessKeyID:     cfg.Delivery.AccessKeyID,
			SecretAccessKey: cfg.Delivery.SecretAccessKey,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to init s3 client")
		}
		adapter = delivery.NewS3Share(s3c, cfg.Delivery.Prefix, cfg.Delivery.PresignTTL)
		objects = s3c
		s3Ping = statuscheck.PingFunc(s3c.HeadBucket)
	default:
		fs, err := delivery.NewFilesystem(cfg.Delivery.Dir)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to init delivery dir")
		}
		adapter = fs
		deliveryDir = fs.Dir()
	}

	runner := jobs.NewRunner(jobStore, adapter, slots)

	renderer := imagerender.New(imagerender.Config{MaxPixels: cfg.Render.MaxPixels})
	suite := tools.New(tools.Config{
		Export:  imagerender.Preset{Scale: cfg.Render.ExportScale, Format: imagerender.JPEG(cfg.Render.ExportQuality)},
		Flatten: imagerender.Preset{Scale: cfg.Render.FlattenScale, Format: imagerender.JPEG(cfg.Render.FlattenQuality)},
		Scan:    scan.Config{PageWidth: cfg.Scan.PageWidth, PageHeight: cfg.Scan.PageHeight},
	}, renderer)

	orch := orchestrator.New(orchestrator.Dependencies{
		Tools: suite,
		Jobs:  runner,
		Health: statuscheck.New(statuscheck.Options{
			Redis:       redisPing,
			S3:          s3Ping,
			DeliveryDir: deliveryDir,
			Sample:      statuscheck.SamplePDF(),
		}),
		Fetch: orchestrator.NewFetcher(orchestrator.FetchConfig{
			Objects:  objects,
			FileRoot: cfg.Server.InputRoot,
			MaxBytes: cfg.Server.MaxUploadBytes(),
		}),
		Slots:          slots,
		MaxUploadBytes: cfg.Server.MaxUploadBytes(),
	})
	mux := http.NewServeMux()
	orch.RegisterRoutes(mux)

	go orchestrator.RunCleanup(ctx, deliveryDir, 10*time.Minute, cfg.Jobs.CleanupAge)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           http.TimeoutHandler(mux, cfg.Server.RequestTimeout, "request timed out"),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info().Str("delivery", adapter.Name()).Msgf("HTTP server listening on :%s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("http server error")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	_ = srv.Shutdown(sctx)
	if err := runner.Shutdown(sctx); err != nil {
		log.Warn().Err(err).Msg("jobs still running at shutdown")
	}
	log.Info().Msg("shutdown complete")
}
