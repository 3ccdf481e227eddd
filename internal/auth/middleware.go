package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	usernameContextKey = "auth_username"
	tokenContextKey    = "auth_token"
)

// RequireSession validates the session token and stores the authenticated
// username in the context. It fails closed: no valid session, no handler.
func (s *Service) RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := s.extractToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		username, err := s.sessions.Lookup(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		if username == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "session expired or invalid"})
			return
		}
		c.Set(usernameContextKey, username)
		c.Set(tokenContextKey, token)
		c.Next()
	}
}

// UsernameFromContext retrieves the authenticated username from the gin context.
func UsernameFromContext(c *gin.Context) (string, bool) {
	val, ok := c.Get(usernameContextKey)
	if !ok {
		return "", false
	}
	username, ok := val.(string)
	return username, ok && username != ""
}

// TokenFromContext retrieves the session token captured by the middleware.
func TokenFromContext(c *gin.Context) (string, bool) {
	val, ok := c.Get(tokenContextKey)
	if !ok {
		return "", false
	}
	token, ok := val.(string)
	return token, ok
}

// ExtractToken pulls the session token from the request without validating it.
// Used by the logout and whoami entry points, which accept anonymous callers.
func (s *Service) ExtractToken(c *gin.Context) string {
	return s.extractToken(c)
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
