// Package main provides the server entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"

	api "github.com/soundcrate/soundcrate/internal/api/http"
	"github.com/soundcrate/soundcrate/internal/app/player"
	"github.com/soundcrate/soundcrate/internal/app/restore"
	"github.com/soundcrate/soundcrate/internal/infra/catalog"
	"github.com/soundcrate/soundcrate/internal/infra/config"
	"github.com/soundcrate/soundcrate/internal/infra/device"
	"github.com/soundcrate/soundcrate/internal/infra/logger"
	"github.com/soundcrate/soundcrate/internal/infra/store"
)

var (
	app        = kingpin.New("soundcrate-server", "soundcrate playback server")
	configPath = app.Flag("config", "Path to config file").Default("config/server.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	kingpin.MustParse(app.Parse(os.Args[1:]))

	loggerConfig := logger.Config{Output: "stdout", Level: "info"}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = *logfile
	}
	if err := logger.Init(loggerConfig); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Server error: %v", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	resolver, err := catalog.NewFromConfig(ctx, cfg.Catalog.Type, cfg.Catalog.Settings)
	if err != nil {
		return err
	}

	session := player.NewSession(player.Config{
		EventBufferSize: cfg.Playback.EventBufferSize,
		RecencyWindow:   time.Duration(cfg.Playback.ShuffleRecencyWindowMin) * time.Minute,
		DefaultVolume:   cfg.Playback.DefaultVolume,
	})
	defer session.Close()

	dev := device.NewClockDevice(0, 250*time.Millisecond)
	defer dev.Close()
	go session.Bind(ctx, dev)

	restorer := restore.NewController(session, st, st, resolver)

	server := api.NewServer(cfg.Server.Addr, session, st, resolver, restorer, cfg.Playback.DefaultPlaylistName)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		zlog.Info().Msgf("Received signal %v, shutting down", sig)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return server.Shutdown(shutdownCtx)
}
