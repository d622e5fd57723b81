package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"example.com/cardtable/internal/config"
	"example.com/cardtable/internal/game"
	"example.com/cardtable/internal/ws"
)

func main() {
	cfgPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	config.LoadDotEnv()
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	config.SetupLogging(os.Stderr, cfg.Host.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	host := ws.NewHost(cfg.Host.OriginAllowlist)
	go host.Run(ctx)

	server := &http.Server{
		Addr:        ":" + cfg.Host.Port,
		Handler:     host.Routes(cfg.Host.StaticDir, cfg.Host.AssetsDir),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 120 * time.Second,
	}
	go func() {
		log.Info().Str("addr", server.Addr).Strs("origins", cfg.Host.OriginAllowlist).Msg("server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	if cfg.Host.Script != "" {
		go func() {
			dealer := game.NewDealer(host, nil)
			if err := dealer.RunFile(ctx, cfg.Host.Script); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Str("script", cfg.Host.Script).Msg("dealer stopped")
				return
			}
			log.Info().Msg("dealer finished")
		}()
	}

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}
}
