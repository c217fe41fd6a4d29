package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/withcare/carelink/internal/cache"
	"github.com/withcare/carelink/internal/clock"
	"github.com/withcare/carelink/internal/config"
	"github.com/withcare/carelink/internal/database"
	"github.com/withcare/carelink/internal/expiry"
	"github.com/withcare/carelink/internal/logging"
	"github.com/withcare/carelink/internal/monitoring"
	"github.com/withcare/carelink/internal/request"
	"github.com/withcare/carelink/internal/review"
	"github.com/withcare/carelink/internal/server"
)

func main() {
	// Load configuration first
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logging
	logging.Setup(&cfg.Logging, cfg.Server.Env)

	log.Info().
		Str("env", cfg.Server.Env).
		Str("timezone", cfg.Time.Zone).
		Msg("Starting CareLink API server")

	clk, err := clock.New(cfg.Time.Zone)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load civil timezone")
	}

	// Initialize database connection
	db, err := database.New(cfg.Database.URL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	// Redis is a read-path accelerator only; start without it if unreachable
	redis, err := cache.New(cfg.Redis.URL)
	if err != nil {
		log.Warn().Err(err).Msg("Redis unavailable, rating stats cache disabled")
		redis = nil
	} else {
		defer redis.Close()
	}

	// Initialize Prometheus metrics
	monitoring.Init()

	// Background sweeps: expiry over open requests, auto-complete over
	// overdue unreviewed assignments
	scheduler := expiry.NewScheduler(
		request.NewService(db.Pool, clk),
		review.NewService(db.Pool, clk, redis),
		clk,
		cfg.Scheduler.ExpiryInterval,
		cfg.Scheduler.AutoCompleteInterval,
	)

	srv := server.NewAPIServer(cfg, db.Pool, clk, redis, scheduler)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      srv.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := scheduler.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start sweep scheduler")
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Int("port", cfg.Server.Port).Msg("API server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})

	var metricsServer *http.Server
	if cfg.Monitoring.PrometheusEnabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", monitoring.Handler())
		metricsServer = &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Monitoring.PrometheusPort),
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			log.Info().Int("port", cfg.Monitoring.PrometheusPort).Msg("Prometheus metrics server listening")
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutdown signal received, gracefully shutting down...")

		scheduler.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if metricsServer != nil {
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Metrics server forced to shutdown")
			}
		}
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("Server error")
	}

	log.Info().Msg("Server exited gracefully")
}
