// Command connector holds the Discord gateway session, keeps the owners
// cache current and answers guild and member requests from the bridge.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"discord_web/internal/bus"
	"discord_web/internal/config"
	"discord_web/internal/discord"
	"discord_web/internal/dispatcher"
	"discord_web/internal/logger"
	"discord_web/internal/storage"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("failed to load .env file")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Error().Err(err).Msg("connector stopped")
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	root, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	if err := cfg.ValidateConnector(); err != nil {
		return err
	}

	client, err := storage.Connect(ctx, cfg.Redis.URL)
	if err != nil {
		return err
	}
	defer client.Close()

	connector, err := discord.New(cfg.Discord.BotToken, logger.Component(root, "discord"))
	if err != nil {
		return err
	}

	d := dispatcher.New(bus.NewRedisBus(client), connector, storage.NewOwnerStore(storage.NewRedisHashStore(client)),
		dispatcher.Config{
			LookupTimeout: cfg.Bridge.LookupTimeout,
			MaxInFlight:   cfg.Bridge.MaxInFlight,
		}, logger.Component(root, "dispatcher"))
	connector.Bind(d)

	if err := d.Start(ctx); err != nil {
		return err
	}
	if err := connector.Open(ctx); err != nil {
		_ = d.Close()
		return err
	}
	root.Info().Msg("connector ready")

	<-ctx.Done()
	root.Info().Msg("shutting down")

	if err := connector.Close(); err != nil {
		root.Warn().Err(err).Msg("failed to close discord session")
	}
	return d.Close()
}
