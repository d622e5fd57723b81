package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/rs/zerolog/log"

	"example.com/cardtable/internal/client"
	"example.com/cardtable/internal/config"
	"example.com/cardtable/internal/display"
)

func main() {
	cfgPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	config.LoadDotEnv()
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	config.SetupLogging(os.Stderr, cfg.Client.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dialer := client.WebSocketDialer{ReadLimit: cfg.Client.ReadLimit}
	r := client.New(dialer, display.NewTextSurface(os.Stdout), client.Options{
		URL:        cfg.Client.ServerURL,
		HandSlots:  cfg.Client.HandSlots,
		TableSlots: cfg.Client.TableSlots,
		Reconnect:  cfg.Client.Reconnect,
		BackoffMin: cfg.Client.BackoffMin,
		BackoffMax: cfg.Client.BackoffMax,
	})

	go readClicks(os.Stdin, r)

	log.Info().Str("url", cfg.Client.ServerURL).Msg("connecting")
	if err := r.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("viewer stopped")
		os.Exit(1)
	}
}

// readClicks treats every line holding a slot number as a click on that hand slot.
func readClicks(in io.Reader, r *client.SyncRenderer) {
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		i, err := strconv.Atoi(line)
		if err != nil {
			fmt.Fprintf(os.Stderr, "not a slot number: %q\n", line)
			continue
		}
		if !r.Click(i) {
			fmt.Fprintf(os.Stderr, "slot %d is not clickable right now\n", i)
		}
	}
}
