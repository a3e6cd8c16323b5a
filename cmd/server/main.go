package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/piljoong/moyim/internal/adapters/http"
	"github.com/piljoong/moyim/internal/app"
	"github.com/piljoong/moyim/internal/app/orch"
	"github.com/piljoong/moyim/internal/config"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	identity := app.NewIdentityStore()
	departments := app.NewDepartmentRegistry()
	conns := app.NewConnRegistry()

	coordinator := orch.New(identity, departments, conns, app.SimplePolicy{})

	// Abandoned identities get reaped on a schedule; everything else is
	// event-driven.
	reaper := cron.New()
	if _, err := reaper.AddFunc(cfg.ReapSchedule, func() {
		if n := coordinator.ReapIdle(cfg.IdleTTL); n > 0 {
			log.Info().Int("reaped", n).Msg("idle reaper pass")
		}
	}); err != nil {
		log.Error().Err(err).Str("schedule", cfg.ReapSchedule).Msg("bad reap schedule")
	} else {
		reaper.Start()
		defer reaper.Stop()
	}

	r := router.SetupRouter(ctx, cfg, coordinator)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("moyim server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
