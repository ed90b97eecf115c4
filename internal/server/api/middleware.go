package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/sarbazinfo/sarbaz-server/internal/common"
	"github.com/sarbazinfo/sarbaz-server/internal/server/models"
)

// currentUserKey is the gin context key under which requireAuth stores the
// authenticated account.
const currentUserKey = "currentUser"

// requireAuth resolves the Bearer access token into a full account record
// and aborts with one uniform 401 on any failure. Missing header, malformed
// token, wrong signature, expiry, deleted and blocked accounts all produce
// the same response; the cause only reaches the logs.
func (h *Handler) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader(common.AuthorizationHeader))
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		user, err := h.auth.CurrentUser(c.Request.Context(), token)
		if err != nil {
			h.logger.Info(c.Request.Context(), "access denied",
				"method", c.Request.Method, "path", c.FullPath(), "error", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		c.Set(currentUserKey, user)
		c.Next()
	}
}

// currentUser returns the account stored by requireAuth. Handlers registered
// behind the middleware may rely on it being present.
func currentUser(c *gin.Context) *models.User {
	return c.MustGet(currentUserKey).(*models.User)
}

func bearerToken(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != common.AuthScheme {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
