package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/joho/godotenv"

	"schoolsite/internal/bootstrap"
	"schoolsite/internal/infra"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	services, err := bootstrap.New(ctx, cfg, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: failed to initialize services")
	}
	defer services.Close()

	handler, err := services.Handler()
	if err != nil {
		logger.Fatal().Err(err).Msg("api: failed to build router")
	}

	var wg sync.WaitGroup
	if cfg.WorkerInline {
		if !services.Shared {
			logger.Info().Msg("api: no shared queue, running the pipeline in-process")
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = services.Worker().Run(ctx)
		}()
	}

	server := infra.NewHTTPServer(cfg, handler)
	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	wg.Wait()
	logger.Info().Msg("server stopped")
}
