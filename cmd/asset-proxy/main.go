package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Sternrassler/asset-variants/pkg/cache"
	"github.com/Sternrassler/asset-variants/pkg/config"
	"github.com/Sternrassler/asset-variants/pkg/imaging"
	"github.com/Sternrassler/asset-variants/pkg/logging"
	"github.com/Sternrassler/asset-variants/pkg/origin"
	"github.com/Sternrassler/asset-variants/pkg/pipeline"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	configPath := flag.String("config", os.Getenv("ASSET_CONFIG"), "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "asset-proxy: %v\n", err)
		os.Exit(1)
	}
	logging.Setup(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("Server failed")
	}
}

// run wires the stores into a pipeline and serves until ctx is cancelled.
func run(ctx context.Context, cfg config.Config) error {
	srv, err := build(ctx, cfg)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      newRouter(srv),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", cfg.Server.Addr).
			Str("origin", string(cfg.Origin.Kind())).
			Str("cache", string(cfg.Cache.Kind())).
			Msg("Starting asset proxy")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	log.Info().Msg("Shutting down")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info().Msg("Server stopped")
	return nil
}

// build creates the origin store, the guarded cache store and the transform
// engine and returns the HTTP-facing server around them.
func build(ctx context.Context, cfg config.Config) (*server, error) {
	originStore, err := origin.New(ctx, cfg.Origin, logging.NewLogger("origin"))
	if err != nil {
		return nil, err
	}

	backendStore, err := cache.New(ctx, cfg.Cache.Config, logging.NewLogger("cache"))
	if err != nil {
		return nil, err
	}
	cacheStore := cache.NewGuardedStore(backendStore, cfg.Cache.Guard, logging.NewLogger("cache-guard"))

	engine := imaging.NewProcessor(cfg.Transform, logging.NewLogger("imaging"))

	p, err := pipeline.New(cfg.Pipeline, originStore, cacheStore, engine)
	if err != nil {
		return nil, err
	}

	srv := &server{
		pipeline: p,
		maxWarm:  cfg.Server.MaxWarmVariants,
		logger:   logging.NewLogger("http"),
		checks:   map[string]cache.Pinger{},
		advisory: map[string]cache.Pinger{},
	}
	if pinger, ok := originStore.(cache.Pinger); ok {
		srv.checks["origin"] = pinger
	}
	// Requests succeed without the cache, so it is reported but never fails
	// readiness.
	if pinger, ok := backendStore.(cache.Pinger); ok {
		srv.advisory["cache"] = pinger
	}
	return srv, nil
}
