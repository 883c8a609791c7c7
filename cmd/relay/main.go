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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	router "github.com/dkeye/RailPhone/internal/adapters/http"
	sig "github.com/dkeye/RailPhone/internal/adapters/signal"
	"github.com/dkeye/RailPhone/internal/config"
	"github.com/dkeye/RailPhone/internal/logging"
	"github.com/dkeye/RailPhone/internal/relay"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize the global logger early so config loading can use it.
	logging.Bootstrap()

	cfg, err := config.LoadRelay()
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
		os.Exit(1)
	}
	closer, err := logging.Setup(cfg.Log)
	if err != nil {
		log.Error().Err(err).Msg("failed to set up logging")
		os.Exit(1)
	}
	defer closer.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := relay.NewMetrics(reg)

	hub := sig.NewHub(
		relay.NewRegistry(),
		relay.NewCalls(),
		relay.NewCallRateLimiter(cfg.CallRate.Limit, cfg.CallRate.Interval),
		relay.NewMediaRelay(cfg.MediaQueue, metrics),
		metrics,
		sig.HubOptions{ReadLimit: cfg.ReadLimit, PingPeriod: cfg.PingPeriod},
	)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router.SetupRouter(ctx, cfg, hub, reg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", addr).Msg("RailPhone relay started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("relay stopped with error")
		os.Exit(1)
	}
	log.Info().Msg("Server exited gracefully")
}
