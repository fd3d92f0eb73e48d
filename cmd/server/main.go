package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/meshroom/internal/adapters/history"
	router "github.com/dkeye/meshroom/internal/adapters/http"
	"github.com/dkeye/meshroom/internal/adapters/session"
	sig "github.com/dkeye/meshroom/internal/adapters/signal"
	"github.com/dkeye/meshroom/internal/app"
	"github.com/dkeye/meshroom/internal/app/orch"
	"github.com/dkeye/meshroom/internal/config"
	"github.com/dkeye/meshroom/internal/core"
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
	zerolog.SetGlobalLevel(config.ParseLevel(cfg.LogLevel))

	var store core.History
	if cfg.History.Path != "" {
		db, err := history.OpenBadger(cfg.History.Path)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to open history")
		}
		defer func() {
			if err := db.Close(); err != nil {
				log.Error().Err(err).Msg("close history")
			}
		}()
		store = history.NewBadgerStore(db, cfg.History.Limit)
		log.Info().Str("path", cfg.History.Path).Msg("history on badger")
	} else {
		store = history.NewMemoryStore(cfg.History.Limit)
		log.Warn().Msg("history kept in memory")
	}

	writer := app.NewHistoryWriter(store, cfg.History.Queue)
	writer.Start(ctx)

	relay := orch.New(app.NewRegistry(), orch.Options{
		History:    store,
		Writer:     writer,
		Policy:     app.KickPolicy{},
		ChatMaxLen: cfg.Chat.MaxLength,
		QueueSize:  cfg.QueueSize,
	})
	go relay.Run(ctx)

	ctl := sig.NewSignalWSController(relay, session.CookieIdentity{}, sig.Options{
		ReadLimit:   cfg.ReadLimit,
		PingPeriod:  cfg.PingPeriod,
		PongWait:    cfg.PongWait,
		WriteWait:   cfg.WriteWait,
		SendBuffer:  cfg.SendBuffer,
		ChatLimiter: sig.NewRoomRateLimiter(cfg.Chat.RateLimit, cfg.Chat.RateInterval),
	})

	r := router.SetupRouter(ctx, cfg, router.Deps{
		Rooms:   relay,
		History: store,
		Signal:  ctl,
		Session: session.CookieIdentity{},
	})
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("signaling server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	writer.Wait()
	log.Info().Msg("Server exited gracefully")
}
