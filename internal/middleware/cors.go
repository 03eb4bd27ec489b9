package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// CORS returns a middleware that sets CORS headers for cross-origin requests.
// allowedOrigins is "*" or a comma-separated list (e.g. "https://clinic.example,http://localhost:3000").
func CORS(allowedOrigins string) gin.HandlerFunc {
	origins := parseOrigins(allowedOrigins)
	return func(c *gin.Context) {
		if allow := origins.allow(c.GetHeader("Origin")); allow != "" {
			c.Header("Access-Control-Allow-Origin", allow)
			c.Header("Access-Control-Allow-Methods", "GET, POST, PATCH, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
			c.Header("Access-Control-Max-Age", "86400")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// OriginChecker returns a WebSocket upgrade origin check using the same allow list as CORS.
// Requests without an Origin header (native clients) are accepted.
func OriginChecker(allowedOrigins string) func(r *http.Request) bool {
	origins := parseOrigins(allowedOrigins)
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || origins.allow(origin) != ""
	}
}

type originSet map[string]bool

func (o originSet) allow(origin string) string {
	if len(o) == 0 || o["*"] {
		return "*"
	}
	if origin != "" && o[origin] {
		return origin
	}
	return ""
}

func parseOrigins(s string) originSet {
	m := make(originSet)
	for _, o := range strings.Split(strings.TrimSpace(s), ",") {
		o = strings.TrimSpace(o)
		if o != "" {
			m[o] = true
		}
	}
	return m
}
