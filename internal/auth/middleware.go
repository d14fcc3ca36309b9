package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	userIDContextKey       = "auth_user_id"
	sessionTokenContextKey = "auth_session_token"
)

// Middleware resolves the session token and stores the authenticated user in
// the context. Requests without a valid session fail closed with 401.
func (s *Service) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := s.extractToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
			return
		}
		userID, err := s.Resolve(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
			return
		}
		c.Set(userIDContextKey, userID)
		c.Set(sessionTokenContextKey, token)
		c.Next()
	}
}

// ResolveRequest is the lenient variant used by check-auth: it returns the
// authenticated user id, or false without writing a response.
func (s *Service) ResolveRequest(c *gin.Context) (int64, bool) {
	token := s.extractToken(c)
	if token == "" {
		return 0, false
	}
	userID, err := s.Resolve(c.Request.Context(), token)
	if err != nil {
		return 0, false
	}
	return userID, true
}

// UserIDFromContext retrieves the authenticated user id from the gin context.
func UserIDFromContext(c *gin.Context) (int64, bool) {
	val, ok := c.Get(userIDContextKey)
	if !ok {
		return 0, false
	}
	userID, ok := val.(int64)
	return userID, ok
}

// SessionTokenFromContext retrieves the token captured by the middleware.
func SessionTokenFromContext(c *gin.Context) (string, bool) {
	val, ok := c.Get(sessionTokenContextKey)
	if !ok {
		return "", false
	}
	token, ok := val.(string)
	return token, ok
}

func (s *Service) extractToken(c *gin.Context) string {
	authHeader := c.GetHeader(s.headerName)
	if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}
	if token, err := c.Cookie(s.cookieName); err == nil && token != "" {
		return token
	}
	return ""
}
