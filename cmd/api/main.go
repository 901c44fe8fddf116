// Command api serves the browser API and the single page app. Guild data is
// requested from the connector over the Redis bridge.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"discord_web/internal/bridge"
	"discord_web/internal/bus"
	"discord_web/internal/config"
	"discord_web/internal/httpapi"
	"discord_web/internal/logger"
	"discord_web/internal/oauth"
	"discord_web/internal/storage"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("failed to load .env file")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Error().Err(err).Msg("api stopped")
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
	if err := cfg.ValidateAPI(); err != nil {
		return err
	}

	client, err := storage.Connect(ctx, cfg.Redis.URL)
	if err != nil {
		return err
	}
	defer client.Close()

	store := storage.NewRedisHashStore(client)
	sessions := storage.NewSessionStore(store, cfg.Auth.SessionTTL)
	owners := storage.NewOwnerStore(store)

	registry := bridge.NewRegistry(bus.NewRedisBus(client),
		bridge.WithTimeout(cfg.Bridge.RequestTimeout),
		bridge.WithLogger(logger.Component(root, "bridge")),
	)
	if err := registry.Start(ctx); err != nil {
		return err
	}
	defer registry.Close()

	provider := oauth.NewDiscordProvider(oauth.ProviderConfig{
		ClientID:     cfg.Discord.ClientID,
		ClientSecret: cfg.Discord.ClientSecret,
		RedirectURL:  cfg.Discord.RedirectURL,
		Scopes:       cfg.Discord.Scopes,
		APIBaseURL:   cfg.Discord.APIBaseURL,
	})
	auth := oauth.NewAuthorizer(oauth.NewStateSet(cfg.Auth.StateTTL), provider, sessions, logger.Component(root, "oauth"))

	api := httpapi.NewServer(httpapi.Config{
		StaticDir:    cfg.HTTP.StaticDir,
		CookieName:   cfg.Auth.CookieName,
		CookieSecure: cfg.Auth.CookieSecure,
	}, auth, owners, registry, logger.Component(root, "http"))

	server := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.HTTP.Port),
		Handler:      api.Handler(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}
	return serve(ctx, server, root)
}

func serve(ctx context.Context, server *http.Server, root zerolog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		root.Info().Str("addr", server.Addr).Msg("listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("failed to serve http: %w", err)
	case <-ctx.Done():
	}

	root.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down http server: %w", err)
	}
	return nil
}
