// Package app wires the control service together: store, metrics,
// session registry, and the HTTP control surface.
package app

import (
	"context"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatlink/internal/authsvc"
	"github.com/vovakirdan/chatlink/internal/config"
	"github.com/vovakirdan/chatlink/internal/dispatch"
	"github.com/vovakirdan/chatlink/internal/metrics"
	"github.com/vovakirdan/chatlink/internal/registry"
	"github.com/vovakirdan/chatlink/internal/store"
	"github.com/vovakirdan/chatlink/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/chatlink/internal/transport/http"
)

// App wires together the session engine and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	registry        *registry.Registry
	store           store.Store
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	m := metrics.New()
	reg := registry.New(registry.Config{
		URL:               cfg.ChatURL,
		JoinTimeout:       cfg.JoinTimeout,
		ReconnectBase:     cfg.ReconnectBase,
		ReconnectMax:      cfg.ReconnectMax,
		MaxAttempts:       cfg.MaxAttempts,
		KeepAliveInterval: cfg.KeepAliveInterval,
		AuthSettleDelay:   cfg.AuthSettleDelay,
	}, *logger, m)

	var refresh *authsvc.Client
	if cfg.ClientID != "" && cfg.ClientSecret != "" {
		refresh = authsvc.New(authsvc.Config{
			TokenURL:     cfg.TokenURL,
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
		}, *logger)
	}

	server := transporthttp.NewServer(reg, st, refresh, m, cfg, logger)

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		registry:        reg,
		store:           st,
		log:             logger,
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	a.resume(ctx)

	serverErr := make(chan error, 1)
	go func() {
		if err := a.server.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		a.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.cleanup()
			return err
		}

		a.cleanup()
		return <-serverErr
	}
}

// resume restarts every persisted profile marked autostart, so a
// service restart does not silently drop live bots.
func (a *App) resume(ctx context.Context) {
	profiles, err := a.store.ListProfiles(ctx)
	if err != nil {
		a.log.Warn().Err(err).Msg("failed to list profiles for resume")
		return
	}
	for _, p := range profiles {
		if !p.Autostart {
			continue
		}
		err := a.registry.Start(ctx, p.ID, registry.StartConfig{
			Channel:       p.Channel,
			AccessToken:   p.AccessToken,
			Username:      p.Username,
			CommandSource: a.commandSource(p.ID),
		})
		if err != nil {
			a.log.Warn().Err(err).Str("profile_id", p.ID).Msg("failed to resume bot")
			continue
		}
		a.log.Info().Str("profile_id", p.ID).Str("channel", p.Channel).Msg("bot resumed")
	}
}

func (a *App) commandSource(profileID string) func() []dispatch.Command {
	return func() []dispatch.Command {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		commands, err := a.store.ListCommands(ctx, profileID)
		if err != nil {
			a.log.Warn().Err(err).Str("profile_id", profileID).Msg("failed to load commands")
			return nil
		}
		return commands
	}
}

// cleanup stops every session and closes the store.
func (a *App) cleanup() {
	a.registry.StopAll()
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
