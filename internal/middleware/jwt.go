package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/medibridge/telehealth/internal/auth"
	"github.com/medibridge/telehealth/pkg/response"
)

const (
	// ContextUserID is the key for the caller's user id in gin context.
	ContextUserID = "user_id"
	// ContextUserRole is the key for the caller's role in gin context.
	ContextUserRole = "user_role"
)

// JWT returns a middleware that validates a bearer token and sets user claims in context.
func JWT(jwtService *auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Unauthorized(c, "missing authorization header")
			c.Abort()
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			response.Unauthorized(c, "invalid authorization header")
			c.Abort()
			return
		}
		claims, err := jwtService.Validate(strings.TrimSpace(parts[1]))
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}
		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextUserRole, claims.Role)
		c.Next()
	}
}
