package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/dannoetc/raterhub-tracker/internal/domain"
	"github.com/dannoetc/raterhub-tracker/internal/service"
)

const currentUserKey = "currentUser"

// Auth validates Authorization headers and attaches the current user.
type Auth struct {
	AuthService *service.AuthService
}

// RequireUser ensures the request carries a valid bearer token.
func (m *Auth) RequireUser(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if header == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "message": "Authorization header required."})
		return
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "message": "Bearer token required."})
		return
	}

	user, err := m.AuthService.ValidateToken(c.Request.Context(), strings.TrimSpace(parts[1]))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "message": "Invalid access token."})
		return
	}

	SetCurrentUser(c, user)
	c.Next()
}

// SetCurrentUser attaches the user to the request context. RequireUser calls
// it after token validation; handler tests call it directly.
func SetCurrentUser(c *gin.Context, user domain.User) {
	c.Set(currentUserKey, user)
}

// RequireAdmin ensures the current user has the admin role. Must run after
// RequireUser.
func (m *Auth) RequireAdmin(c *gin.Context) {
	user, ok := GetCurrentUser(c)
	if !ok || user.Role != domain.RoleAdmin {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden", "message": "Admin role required."})
		return
	}
	c.Next()
}

// GetCurrentUser exposes the authenticated user to handlers.
func GetCurrentUser(c *gin.Context) (domain.User, bool) {
	value, ok := c.Get(currentUserKey)
	if !ok {
		return domain.User{}, false
	}
	user, ok := value.(domain.User)
	return user, ok
}
