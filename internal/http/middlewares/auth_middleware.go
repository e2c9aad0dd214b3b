package middlewares

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/vereinshub/stundenhub/internal/auth"
)

// SessionVerifier is kept small so handler tests can fake it.
type SessionVerifier interface {
	VerifySession(token string) (*auth.SessionClaims, error)
}

type AuthMiddleware struct {
	jwt SessionVerifier
}

func NewAuthMiddleware(jwt SessionVerifier) *AuthMiddleware {
	return &AuthMiddleware{jwt: jwt}
}

const (
	ctxProfileIDKey = "session.profileID"
	ctxEmailKey     = "session.email"
)

// RequireSession rejects requests without a valid bearer session and stashes
// the claims on the gin context. Identity is always read back through the
// helpers below, never from globals.
func (m *AuthMiddleware) RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")

		if !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"code":    "unauthorized",
				"message": "Missing or invalid Authorization header",
			})
			return
		}

		raw := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer"))

		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"code":    "unauthorized",
				"message": "Missing or invalid session token",
			})
			return
		}

		claims, err := m.jwt.VerifySession(raw)

		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"code":    "unauthorized",
				"message": "Invalid or expired session token",
			})
			return
		}

		c.Set(ctxProfileIDKey, claims.ProfileID)
		c.Set(ctxEmailKey, claims.Email)

		c.Next()
	}
}

func ProfileIDFromContext(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxProfileIDKey)

	if !ok {
		return "", false
	}

	id, ok := v.(string)

	return id, ok
}

func EmailFromContext(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxEmailKey)

	if !ok {
		return "", false
	}

	email, ok := v.(string)

	return email, ok
}
