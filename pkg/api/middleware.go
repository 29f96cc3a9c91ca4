package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// securityHeaders sets standard response headers on every response.
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	}
}

// requireAuth resolves the bearer token in the Authorization header and
// stores the authenticated user's id/role on the context, aborting with
// 401 if the token is missing, unknown, or expired.
func (s *Server) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token := strings.TrimPrefix(header, "Bearer ")
		if token == "" || token == header {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			c.Abort()
			return
		}

		sess, err := s.authSessions.Lookup(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			c.Abort()
			return
		}

		c.Set("user_id", sess.UserID)
		c.Set("username", sess.Username)
		c.Set("role", sess.Role)
		c.Next()
	}
}

// requireAdmin is requireAuth plus an admin-role check, guarding the
// prompt/driving-mode admin endpoints.
func (s *Server) requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		s.requireAuth()(c)
		if c.IsAborted() {
			return
		}
		if role, _ := c.Get("role"); role != "admin" {
			c.JSON(http.StatusForbidden, gin.H{"error": "admin role required"})
			c.Abort()
			return
		}
		c.Next()
	}
}
