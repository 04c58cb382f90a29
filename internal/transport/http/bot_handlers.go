package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatlink/internal/dispatch"
	"github.com/vovakirdan/chatlink/internal/registry"
	"github.com/vovakirdan/chatlink/internal/store"
)

// BotHandlers exposes the session registry over HTTP.
type BotHandlers struct {
	registry *registry.Registry
	store    store.Store
	log      *zerolog.Logger
}

// NewBotHandlers creates the bot handlers.
func NewBotHandlers(reg *registry.Registry, st store.Store, logger *zerolog.Logger) *BotHandlers {
	return &BotHandlers{registry: reg, store: st, log: logger}
}

// StartBotRequest is the body of POST /bots/:id/start.
type StartBotRequest struct {
	Channel     string             `json:"channel" binding:"required"`
	AccessToken string             `json:"accessToken"`
	Username    string             `json:"username"`
	Commands    []dispatch.Command `json:"commands"`
}

// SendMessageRequest is the body of POST /bots/:id/message.
type SendMessageRequest struct {
	Message string `json:"message" binding:"required"`
}

// BotInfo is one row of the GET /bots listing.
type BotInfo struct {
	ProfileID   string `json:"profileId"`
	Channel     string `json:"channel"`
	IsConnected bool   `json:"isConnected"`
}

// BotStatusResponse is the body of GET /bots/:id.
type BotStatusResponse struct {
	IsRunning   bool   `json:"isRunning"`
	IsConnected bool   `json:"isConnected"`
	Channel     string `json:"channel"`
}

// SuccessResponse acknowledges a mutating request.
type SuccessResponse struct {
	Success bool `json:"success"`
}

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Health reports liveness and the session count. Unauthenticated.
// GET /health
func (h *BotHandlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "bots": h.registry.Len()})
}

// ListBots returns a snapshot of every registered bot.
// GET /bots
func (h *BotHandlers) ListBots(c *gin.Context) {
	infos := h.registry.List()
	bots := make([]BotInfo, 0, len(infos))
	for _, info := range infos {
		bots = append(bots, BotInfo{ProfileID: info.Key, Channel: info.Channel, IsConnected: info.IsConnected})
	}
	c.JSON(http.StatusOK, gin.H{"bots": bots})
}

// GetBot reports one bot's status.
// GET /bots/:id
func (h *BotHandlers) GetBot(c *gin.Context) {
	status, err := h.registry.Status(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "bot not found"})
		return
	}
	c.JSON(http.StatusOK, BotStatusResponse{
		IsRunning:   status.IsRunning,
		IsConnected: status.IsConnected,
		Channel:     status.Channel,
	})
}

// StartBot starts (or replaces) the bot for a profile. The profile and
// its commands are persisted first; the dispatcher reads the stored
// command list fresh per message, so later edits apply live.
// POST /bots/:id/start
func (h *BotHandlers) StartBot(c *gin.Context) {
	id := c.Param("id")

	var req StartBotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Str("profile_id", id).Msg("invalid start request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	cfg := registry.StartConfig{
		Channel:     req.Channel,
		AccessToken: req.AccessToken,
		Username:    req.Username,
		Commands:    req.Commands,
	}

	if h.store != nil {
		profile := store.Profile{
			ID:          id,
			Channel:     req.Channel,
			Username:    req.Username,
			AccessToken: req.AccessToken,
			Autostart:   true,
		}
		if err := h.store.SaveProfile(c.Request.Context(), profile); err != nil {
			h.log.Error().Err(err).Str("profile_id", id).Msg("failed to persist profile")
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
			return
		}
		if err := h.store.ReplaceCommands(c.Request.Context(), id, req.Commands); err != nil {
			h.log.Error().Err(err).Str("profile_id", id).Msg("failed to persist commands")
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
			return
		}
		cfg.CommandSource = h.commandSource(id)
	}

	// The session outlives this request; its lifetime is bounded by
	// registry Stop, not the request context.
	if err := h.registry.Start(context.Background(), id, cfg); err != nil {
		h.log.Error().Err(err).Str("profile_id", id).Msg("failed to start bot")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to start bot"})
		return
	}

	h.log.Info().Str("profile_id", id).Str("channel", req.Channel).Msg("bot started")
	c.JSON(http.StatusOK, SuccessResponse{Success: true})
}

// StopBot tears down the bot for a profile.
// POST /bots/:id/stop
func (h *BotHandlers) StopBot(c *gin.Context) {
	id := c.Param("id")

	if err := h.registry.Stop(id); err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "bot not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	if h.store != nil {
		if profile, err := h.store.GetProfile(c.Request.Context(), id); err == nil {
			profile.Autostart = false
			if err := h.store.SaveProfile(c.Request.Context(), *profile); err != nil {
				h.log.Warn().Err(err).Str("profile_id", id).Msg("failed to clear autostart")
			}
		}
	}

	h.log.Info().Str("profile_id", id).Msg("bot stopped")
	c.JSON(http.StatusOK, SuccessResponse{Success: true})
}

// SendMessage posts a message through a connected bot. Never queues.
// POST /bots/:id/message
func (h *BotHandlers) SendMessage(c *gin.Context) {
	id := c.Param("id")

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	if err := h.registry.Send(id, req.Message); err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "bot not found"})
			return
		}
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "bot is not connected"})
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Success: true})
}

// commandSource reads the stored command list; called once per inbound
// chat message by the dispatcher.
func (h *BotHandlers) commandSource(profileID string) func() []dispatch.Command {
	return func() []dispatch.Command {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		commands, err := h.store.ListCommands(ctx, profileID)
		if err != nil {
			h.log.Warn().Err(err).Str("profile_id", profileID).Msg("failed to load commands")
			return nil
		}
		return commands
	}
}
