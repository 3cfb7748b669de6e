package middleware

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"guardian-api/internal/licensing"
	"guardian-api/internal/models"
	"guardian-api/internal/response"
	"guardian-api/internal/services"
	"guardian-api/pkg/logging"

	"github.com/gin-gonic/gin"
)

// Context keys set by DashboardAuth
const (
	UserIDKey   = "user_id"
	UsernameKey = "username"
)

// AdminAuth guards the bot/command API with the shared admin key
func AdminAuth(apiKey string) gin.HandlerFunc {
	expected := []byte(apiKey)
	return func(c *gin.Context) {
		key := c.GetHeader("X-API-Key")
		if key == "" {
			response.AbortJSON(c, http.StatusUnauthorized, "Missing X-API-Key header")
			return
		}
		if len(expected) == 0 || subtle.ConstantTimeCompare([]byte(key), expected) != 1 {
			logging.Ctx(c.Request.Context()).Warn().
				Str("client_ip", c.ClientIP()).
				Str("path", c.FullPath()).
				Msg("rejected admin api key")
			response.AbortJSON(c, http.StatusUnauthorized, "Invalid API key")
			return
		}
		c.Next()
	}
}

// DashboardAuth resolves the bearer token to a Discord user and stores the
// user id in the context
func DashboardAuth(verifier services.IdentityVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			response.AbortJSON(c, http.StatusUnauthorized, "Missing bearer token")
			return
		}

		identity, err := verifier.Verify(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, services.ErrUnauthenticated) {
				response.AbortJSON(c, http.StatusUnauthorized, "Invalid or expired token")
				return
			}
			response.Fail(c, err)
			c.Abort()
			return
		}

		c.Set(UserIDKey, identity.UserID)
		c.Set(UsernameKey, identity.Username)
		c.Next()
	}
}

// UserID returns the dashboard user set by DashboardAuth
func UserID(c *gin.Context) (int64, bool) {
	v, ok := c.Get(UserIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok
}

// TierKey is the context key holding the caller's effective tier
const TierKey = "tier"

// RequireTier lets the request through only if the dashboard user holds at
// least the required tier. Owners pass as EXCLUSIVE.
func RequireTier(licenses *services.LicenseService, isOwner func(int64) bool, required models.Tier) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := UserID(c)
		if !ok {
			response.AbortJSON(c, http.StatusUnauthorized, "User authentication required")
			return
		}
		if isOwner != nil && isOwner(userID) {
			c.Set(TierKey, models.TierExclusive)
			c.Next()
			return
		}

		decision, err := licenses.CheckAccess(c.Request.Context(), userID, required)
		if err != nil {
			response.Fail(c, err)
			c.Abort()
			return
		}
		if !decision.Allowed {
			response.AbortJSON(c, http.StatusForbidden, licensing.TierLabel(required)+" license required for dashboard access")
			return
		}
		tier, _ := models.ParseTier(decision.EffectiveTier)
		c.Set(TierKey, tier)
		c.Next()
	}
}

// Tier returns the tier set by RequireTier
func Tier(c *gin.Context) models.Tier {
	if v, ok := c.Get(TierKey); ok {
		if t, ok := v.(models.Tier); ok {
			return t
		}
	}
	return models.TierNone
}
