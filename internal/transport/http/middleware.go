package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatlink/internal/auth"
)

// AuthMiddleware validates the bearer credential on every guarded
// route: either the shared control secret or an operator token minted
// from it.
func AuthMiddleware(verifier *auth.SecretVerifier, jwtCfg *auth.JWTConfig, logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			logger.Debug().Msg("missing authorization header")
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "missing authorization header"})
			c.Abort()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			logger.Debug().Msg("invalid authorization header format")
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid authorization header format"})
			c.Abort()
			return
		}

		credential := parts[1]
		if verifier.Verify(credential) {
			c.Next()
			return
		}
		if _, err := auth.ValidateToken(jwtCfg, credential); err == nil {
			c.Next()
			return
		}

		logger.Debug().Msg("invalid bearer credential")
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid credentials"})
		c.Abort()
	}
}

// LoggerMiddleware logs HTTP requests.
func LoggerMiddleware(logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Msg("http request")
	}
}
