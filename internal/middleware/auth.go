package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"profilehub/api/internal/config"
	"profilehub/api/internal/models"
	"profilehub/api/internal/security"
)

const (
	identityKey = "caller_identity"
	claimsKey   = "access_claims"
)

// UserResolver looks up the user behind a token subject.
type UserResolver interface {
	GetByID(ctx context.Context, id string) (models.User, error)
	FindByEmail(ctx context.Context, email string) (models.User, error)
}

// Auth verifies the bearer token and resolves its subject to exactly one
// canonical user id. Legacy tokens carry an email address in the subject
// claim; both forms normalize here, once, so downstream authorization never
// has to consider the dual-claim shape.
func Auth(cfg *config.AppConfig, users UserResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing_token"})
			return
		}

		tokenStr := strings.TrimPrefix(authHeader, "Bearer ")

		claims, err := security.ParseAccessToken(tokenStr, cfg.Security.JWTSecret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token"})
			return
		}

		var user models.User
		if strings.Contains(claims.Subject, "@") {
			user, err = users.FindByEmail(c.Request.Context(), claims.Subject)
		} else {
			user, err = users.GetByID(c.Request.Context(), claims.Subject)
		}
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user_not_found"})
			return
		}

		c.Set(claimsKey, *claims)
		c.Set(identityKey, models.Identity{
			UserID: user.ID,
			Email:  user.Email,
			Role:   user.Role,
		})

		c.Next()
	}
}

// CallerIdentity returns the normalized identity set by Auth.
func CallerIdentity(c *gin.Context) (models.Identity, bool) {
	val, exists := c.Get(identityKey)
	if !exists {
		return models.Identity{}, false
	}
	identity, ok := val.(models.Identity)
	return identity, ok
}

// AccessClaims returns the raw token claims set by Auth.
func AccessClaims(c *gin.Context) (security.AccessClaims, bool) {
	val, exists := c.Get(claimsKey)
	if !exists {
		return security.AccessClaims{}, false
	}
	claims, ok := val.(security.AccessClaims)
	return claims, ok
}
