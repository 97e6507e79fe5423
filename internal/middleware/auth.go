package middleware

import (
	"net/http"
	"strings"

	jwtsvc "notestream/internal/pkg/jwt"

	"github.com/gin-gonic/gin"
)

const (
	// RoleAdmin may query any file's status regardless of ownership.
	RoleAdmin = "admin"
)

// OptionalAuth resolves the requester identity without requiring one.
// Anonymous uploads are a first-class path: no Authorization header means
// the request proceeds with no user_id set. A present but invalid token is
// rejected so a caller can tell a typo'd token apart from anonymity.
func OptionalAuth(jwt *jwtsvc.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		if h == "" {
			c.Next()
			return
		}

		if !strings.HasPrefix(h, "Bearer ") {
			abortUnauthorized(c, "Invalid Authorization header")
			return
		}

		tokenStr := strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
		if tokenStr == "" {
			abortUnauthorized(c, "Empty token")
			return
		}

		claims, err := jwt.ValidateToken(tokenStr)
		if err != nil {
			abortUnauthorized(c, "Invalid token")
			return
		}

		c.Set("user_id", claims.UserID)
		c.Set("role", claims.Role)
		c.Next()
	}
}

// RequesterID returns the authenticated user ID, or nil for anonymous requests.
func RequesterID(c *gin.Context) *int64 {
	v, exists := c.Get("user_id")
	if !exists {
		return nil
	}
	switch id := v.(type) {
	case int64:
		return &id
	case float64:
		n := int64(id)
		return &n
	}
	return nil
}

// Privileged reports whether the requester holds the admin role.
func Privileged(c *gin.Context) bool {
	return c.GetString("role") == RoleAdmin
}

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"success": false,
		"error": gin.H{
			"code":    "UNAUTHORIZED",
			"message": message,
		},
	})
}
