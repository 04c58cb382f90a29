// Package http is the bot deployment's control surface: start, stop,
// inspect, and speak through chat sessions over authenticated HTTP.
package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatlink/internal/auth"
	"github.com/vovakirdan/chatlink/internal/authsvc"
	"github.com/vovakirdan/chatlink/internal/config"
	"github.com/vovakirdan/chatlink/internal/metrics"
	"github.com/vovakirdan/chatlink/internal/registry"
	"github.com/vovakirdan/chatlink/internal/store"
)

// NewServer builds the control-surface HTTP server. Health and metrics
// are open; every other route requires a bearer credential.
func NewServer(reg *registry.Registry, st store.Store, refresh *authsvc.Client, m *metrics.Metrics, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	verifier := auth.NewSecretVerifier(cfg.ControlSecret, cfg.ControlSecretHash)
	jwtCfg := &auth.JWTConfig{
		Secret: verifier.SigningKey(),
		Issuer: "chatlink",
		TTL:    cfg.TokenTTL,
	}

	bots := NewBotHandlers(reg, st, logger)
	auths := NewAuthHandlers(jwtCfg, refresh, logger)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), LoggerMiddleware(logger))

	router.GET("/health", bots.Health)
	router.GET("/metrics", gin.WrapH(m.Handler()))

	guarded := router.Group("/", AuthMiddleware(verifier, jwtCfg, logger))
	guarded.POST("/auth/token", auths.CreateToken)
	guarded.POST("/auth/refresh", auths.RefreshToken)
	guarded.GET("/bots", bots.ListBots)
	guarded.GET("/bots/:id", bots.GetBot)
	guarded.POST("/bots/:id/start", bots.StartBot)
	guarded.POST("/bots/:id/stop", bots.StopBot)
	guarded.POST("/bots/:id/message", bots.SendMessage)

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}
