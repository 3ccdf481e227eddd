package api

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"chatterbox/internal/apperr"
	"chatterbox/internal/auth"
	"chatterbox/internal/message"
	"chatterbox/internal/models"
	"chatterbox/internal/store"
)

// Handler wires HTTP routes to the auth and message services.
type Handler struct {
	auth     *auth.Service
	messages *message.Service
	store    *store.Store
}

// NewHandler constructs a Handler instance.
func NewHandler(authService *auth.Service, messageService *message.Service, st *store.Store) *Handler {
	return &Handler{
		auth:     authService,
		messages: messageService,
		store:    st,
	}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api")
	api.GET("/health", h.health)
	api.POST("/auth/signup", h.signup)
	api.POST("/auth/login", h.login)
	api.POST("/auth/logout", h.logout)
	api.GET("/auth/whoami", h.whoami)

	protected := api.Group("")
	protected.Use(h.auth.RequireSession(), h.auth.CSRFMiddleware())
	protected.GET("/recipients", h.listRecipients)
	protected.POST("/messages", h.sendMessage)
	protected.GET("/messages/inbox", h.inbox)
	protected.GET("/messages/sent", h.sent)
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type sendMessageRequest struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

func (h *Handler) signup(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	identity, token, err := h.auth.Signup(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		h.respondError(c, err)
		return
	}
	csrfToken, err := h.auth.NewCSRFToken()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "establish session failed"})
		return
	}
	h.setSessionCookies(c, token, csrfToken)
	c.JSON(http.StatusCreated, gin.H{
		"username":      identity.Username,
		"session_token": token,
	})
}

func (h *Handler) login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	identity, token, err := h.auth.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		h.respondError(c, err)
		return
	}
	csrfToken, err := h.auth.NewCSRFToken()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "establish session failed"})
		return
	}
	h.setSessionCookies(c, token, csrfToken)
	c.JSON(http.StatusOK, gin.H{
		"username":      identity.Username,
		"session_token": token,
	})
}

func (h *Handler) logout(c *gin.Context) {
	if token := h.auth.ExtractToken(c); token != "" {
		h.auth.Logout(c.Request.Context(), token)
	}
	h.clearSessionCookies(c)
	c.Status(http.StatusNoContent)
}

func (h *Handler) whoami(c *gin.Context) {
	identity := h.auth.CurrentIdentity(c.Request.Context(), h.auth.ExtractToken(c))
	if identity == nil {
		c.JSON(http.StatusOK, gin.H{"authenticated": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"authenticated": true,
		"username":      identity.Username,
	})
}

func (h *Handler) listRecipients(c *gin.Context) {
	identity, ok := h.identityFromContext(c)
	if !ok {
		return
	}
	recipients, err := h.messages.ListRecipients(c.Request.Context(), identity)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"recipients": recipients})
}

func (h *Handler) sendMessage(c *gin.Context) {
	identity, ok := h.identityFromContext(c)
	if !ok {
		return
	}
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	msg, err := h.messages.Send(c.Request.Context(), identity, req.To, req.Subject, req.Body)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"id":      msg.ID,
		"message": msg,
	})
}

func (h *Handler) inbox(c *gin.Context) {
	identity, ok := h.identityFromContext(c)
	if !ok {
		return
	}
	messages, err := h.messages.Inbox(c.Request.Context(), identity)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

func (h *Handler) sent(c *gin.Context) {
	identity, ok := h.identityFromContext(c)
	if !ok {
		return
	}
	messages, err := h.messages.Sent(c.Request.Context(), identity)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

func (h *Handler) health(c *gin.Context) {
	if err := h.store.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) identityFromContext(c *gin.Context) (*models.Identity, bool) {
	username, ok := auth.UsernameFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return nil, false
	}
	return &models.Identity{Username: username}, true
}

// respondError maps coded service errors to HTTP statuses. Store failures are
// logged with their cause and surfaced as an opaque message.
func (h *Handler) respondError(c *gin.Context, err error) {
	var appErr *apperr.Error
	msg := err.Error()
	if errors.As(err, &appErr) {
		msg = appErr.Message
	}
	switch apperr.CodeOf(err) {
	case apperr.CodeInvalidArgument:
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
	case apperr.CodeAlreadyExists:
		c.JSON(http.StatusConflict, gin.H{"error": msg})
	case apperr.CodeUnauthenticated:
		c.JSON(http.StatusUnauthorized, gin.H{"error": msg})
	default:
		log.Printf("internal error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func (h *Handler) setSessionCookies(c *gin.Context, sessionToken, csrfToken string) {
	ttl := int(h.auth.SessionTTL().Seconds())
	if ttl <= 0 {
		ttl = 3600
	}
	secure := gin.Mode() == gin.ReleaseMode
	setCookie(c, &http.Cookie{
		Name:     h.auth.CookieName(),
		Value:    sessionToken,
		MaxAge:   ttl,
		Path:     "/",
		Secure:   secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	setCookie(c, &http.Cookie{
		Name:     h.auth.CSRFCookieName(),
		Value:    csrfToken,
		MaxAge:   ttl,
		Path:     "/",
		Secure:   secure,
		HttpOnly: false,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *Handler) clearSessionCookies(c *gin.Context) {
	for _, name := range []string{h.auth.CookieName(), h.auth.CSRFCookieName()} {
		setCookie(c, &http.Cookie{
			Name:     name,
			Value:    "",
			MaxAge:   -1,
			Path:     "/",
			Secure:   gin.Mode() == gin.ReleaseMode,
			HttpOnly: name == h.auth.CookieName(),
			SameSite: http.SameSiteStrictMode,
		})
	}
}

func setCookie(c *gin.Context, ck *http.Cookie) {
	if ck == nil {
		return
	}
	http.SetCookie(c.Writer, ck)
}
