package auth

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"chatterbox/internal/apperr"
	"chatterbox/internal/models"
	"chatterbox/internal/session"
	"chatterbox/internal/store"

	"golang.org/x/crypto/bcrypt"
)

const (
	minUsernameLen = 3
	minPasswordLen = 6
	bcryptCost     = 12
)

// Both failed lookup and failed password comparison surface this exact error,
// so responses never reveal whether a username exists.
var errInvalidCredentials = apperr.Auth("invalid username or password")

// Service orchestrates signup, login, and session lifecycle. It is the only
// component allowed to create or destroy sessions.
type Service struct {
	store          *store.Store
	sessions       session.Store
	sessionTTL     time.Duration
	cookieName     string
	headerName     string
	csrfCookieName string
	csrfHeaderName string
}

// NewService constructs an auth service with the supplied session lifetime.
func NewService(st *store.Store, sessions session.Store, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = session.DefaultTTL
	}
	return &Service{
		store:          st,
		sessions:       sessions,
		sessionTTL:     ttl,
		cookieName:     "session_token",
		headerName:     "Authorization",
		csrfCookieName: "csrf_token",
		csrfHeaderName: "X-CSRF-Token",
	}
}

// Signup validates credentials, persists the new user, and establishes a
// session. The raw password and its hash never appear in responses or logs.
func (s *Service) Signup(ctx context.Context, username, password string) (*models.Identity, string, error) {
	username = strings.TrimSpace(username)
	if len(username) < minUsernameLen {
		return nil, "", apperr.Validation("username must be at least 3 characters")
	}
	if len(password) < minPasswordLen {
		return nil, "", apperr.Validation("password must be at least 6 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return nil, "", apperr.Store(err)
	}

	// The unique constraint is the sole arbiter of conflicts; no existence
	// check runs first, so concurrent signups cannot race past it.
	if _, err := s.store.CreateUser(ctx, username, string(hash)); err != nil {
		if errors.Is(err, store.ErrUsernameTaken) {
			return nil, "", apperr.Conflict("username taken")
		}
		return nil, "", apperr.Store(err)
	}

	token, err := s.establishSession(ctx, username)
	if err != nil {
		return nil, "", err
	}
	return &models.Identity{Username: username}, token, nil
}

// Login verifies credentials and establishes a session.
func (s *Service) Login(ctx context.Context, username, password string) (*models.Identity, string, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, "", errInvalidCredentials
	}

	user, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, "", apperr.Store(err)
	}
	if user == nil {
		return nil, "", errInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, "", errInvalidCredentials
	}

	token, err := s.establishSession(ctx, user.Username)
	if err != nil {
		return nil, "", err
	}
	return &models.Identity{Username: user.Username}, token, nil
}

// Logout destroys the session unconditionally. Destroying an absent session
// is not an error, and an internal failure never reaches the caller.
func (s *Service) Logout(ctx context.Context, token string) {
	if token == "" {
		return
	}
	if err := s.sessions.Delete(ctx, token); err != nil {
		log.Printf("destroy session failed: %v", err)
	}
}

// CurrentIdentity resolves the token to an identity, or nil for anonymous.
// Unlike RequireSession it never fails the caller.
func (s *Service) CurrentIdentity(ctx context.Context, token string) *models.Identity {
	if token == "" {
		return nil
	}
	username, err := s.sessions.Lookup(ctx, token)
	if err != nil {
		log.Printf("session lookup failed: %v", err)
		return nil
	}
	if username == "" {
		return nil
	}
	return &models.Identity{Username: username}
}

func (s *Service) establishSession(ctx context.Context, username string) (string, error) {
	token, err := session.NewToken()
	if err != nil {
		return "", apperr.Store(err)
	}
	if err := s.sessions.Save(ctx, token, username, s.sessionTTL); err != nil {
		return "", apperr.Store(err)
	}
	return token, nil
}

// CookieName returns the cookie name carrying session tokens.
func (s *Service) CookieName() string {
	return s.cookieName
}

// CSRFCookieName returns the cookie used for CSRF tokens.
func (s *Service) CSRFCookieName() string {
	return s.csrfCookieName
}

// CSRFHeaderName returns the CSRF header name.
func (s *Service) CSRFHeaderName() string {
	return s.csrfHeaderName
}

// SessionTTL reports the configured session lifetime.
func (s *Service) SessionTTL() time.Duration {
	return s.sessionTTL
}

// NewCSRFToken returns a random token used for CSRF protection.
func (s *Service) NewCSRFToken() (string, error) {
	return session.NewToken()
}
