package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/acadio/assess-backend/internal/response"
	"github.com/acadio/assess-backend/internal/token"
)

const (
	// ContextKeyAttempt is the Gin context key for attempt token claims.
	ContextKeyAttempt = "attempt_claims"
)

// RequireAttemptToken validates the attempt token from the Authorization header.
func RequireAttemptToken(issuer *token.Issuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := extractToken(c)
		if raw == "" {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		claims, err := issuer.Validate(raw)
		if err != nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenInvalid)
			return
		}

		c.Set(ContextKeyAttempt, claims)
		c.Next()
	}
}

// RequireAttemptWSToken validates the attempt token from the query param
// ?token=... Used for WebSocket upgrade requests, which cannot set headers.
func RequireAttemptWSToken(issuer *token.Issuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.Query("token")
		if raw == "" {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		claims, err := issuer.Validate(raw)
		if err != nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenInvalid)
			return
		}

		c.Set(ContextKeyAttempt, claims)
		c.Next()
	}
}

// GetAttemptClaims retrieves the attempt token claims from the Gin context.
func GetAttemptClaims(c *gin.Context) *token.Claims {
	val, exists := c.Get(ContextKeyAttempt)
	if !exists {
		return nil
	}
	claims, ok := val.(*token.Claims)
	if !ok {
		return nil
	}
	return claims
}

func extractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return parts[1]
		}
	}
	// Fallback for clients that cannot send headers
	return c.Query("token")
}
