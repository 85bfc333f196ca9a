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

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	router "github.com/dkeye/Roulette/internal/adapters/http"
	"github.com/dkeye/Roulette/internal/adapters/presence"
	wssignal "github.com/dkeye/Roulette/internal/adapters/signal"
	"github.com/dkeye/Roulette/internal/app"
	"github.com/dkeye/Roulette/internal/app/orch"
	"github.com/dkeye/Roulette/internal/config"
	"github.com/dkeye/Roulette/internal/core"
	"github.com/dkeye/Roulette/internal/metrics"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.Mode == "debug" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	var (
		sinks  []core.PresenceSink
		mirror router.PresenceMirror
	)
	if cfg.Redis.Enabled {
		rp, err := presence.Connect(ctx, cfg.Redis)
		if err != nil {
			// Presence mirroring is best-effort; run without it.
			log.Error().Err(err).Msg("redis presence mirror disabled")
		} else {
			defer rp.Close()
			sinks = append(sinks, rp)
			mirror = rp
		}
	}

	m := metrics.New()
	tracker := app.NewPresenceTracker(sinks...)
	defer tracker.Close()

	o := orch.New(tracker, orch.Options{
		MailboxSize:  cfg.MailboxSize,
		ClosedTTL:    cfg.ClosedSessionTTL,
		ReapInterval: cfg.ReapInterval,
		ICEServers:   cfg.ICE(),
		Policy:       app.SimplePolicy{},
		Metrics:      m,
	})
	ctl := wssignal.NewSignalWSController(o, wssignal.SettingsFromConfig(cfg))

	r := router.SetupRouter(ctx, cfg, ctl, m, mirror)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", addr).Msg("Roulette server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error { return o.Run(gctx) })
	g.Go(func() error { return ctl.Run(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		err := srv.Shutdown(shutdownCtx)
		ctl.CloseAll()
		if derr := ctl.Drain(shutdownCtx); derr != nil {
			log.Warn().Err(derr).Msg("connections still open at shutdown")
		}
		return err
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server error")
		return
	}
	log.Info().Msg("Server exited gracefully")
}
