package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatlink/internal/auth"
	"github.com/vovakirdan/chatlink/internal/authsvc"
)

// AuthHandlers mints operator tokens and proxies OAuth refreshes.
type AuthHandlers struct {
	jwtCfg  *auth.JWTConfig
	refresh *authsvc.Client
	limiter *rateLimiter
	log     *zerolog.Logger
}

// NewAuthHandlers creates the auth handlers. refresh may be nil when no
// app credentials are configured.
func NewAuthHandlers(jwtCfg *auth.JWTConfig, refresh *authsvc.Client, logger *zerolog.Logger) *AuthHandlers {
	return &AuthHandlers{
		jwtCfg:  jwtCfg,
		refresh: refresh,
		limiter: newRateLimiter(refreshPerMinute),
		log:     logger,
	}
}

// TokenResponse carries a freshly minted operator token.
type TokenResponse struct {
	Token string `json:"token"`
}

// RefreshRequest is the body of POST /auth/refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

// CreateToken mints a short-lived operator token. The caller already
// passed the bearer check with the shared secret.
// POST /auth/token
func (h *AuthHandlers) CreateToken(c *gin.Context) {
	token, err := auth.GenerateToken(h.jwtCfg)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to mint operator token")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	c.JSON(http.StatusOK, TokenResponse{Token: token})
}

// RefreshToken exchanges a chat refresh token for fresh credentials.
// POST /auth/refresh
func (h *AuthHandlers) RefreshToken(c *gin.Context) {
	if h.refresh == nil {
		c.JSON(http.StatusNotImplemented, ErrorResponse{Error: "token refresh not configured"})
		return
	}
	if !h.limiter.allow() {
		c.JSON(http.StatusTooManyRequests, ErrorResponse{Error: "too many refresh requests"})
		return
	}

	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	tokens, err := h.refresh.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		h.log.Warn().Err(err).Msg("token refresh failed")
		c.JSON(http.StatusBadGateway, ErrorResponse{Error: "token refresh failed"})
		return
	}
	c.JSON(http.StatusOK, tokens)
}
