package api

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"chatterbox/internal/auth"
	"chatterbox/internal/config"
	"chatterbox/internal/message"
	"chatterbox/internal/session"
	"chatterbox/internal/storage"
	"chatterbox/internal/store"
)

func newTestServer(t *testing.T) (*gin.Engine, *sql.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		Databases: map[string]config.DatabaseConfig{
			"sqlite3": {DSN: ":memory:"},
		},
	}
	db, err := storage.Open("sqlite3", cfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	if err := storage.Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate db: %v", err)
	}

	st := store.New(db)
	authSvc := auth.NewService(st, session.NewMemoryStore(), time.Hour)
	msgSvc := message.NewService(st)
	handler := NewHandler(authSvc, msgSvc, st)

	router := gin.New()
	handler.RegisterRoutes(router)
	return router, db
}

func doJSONRequest(t *testing.T, router *gin.Engine, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, data []byte, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("decode json: %v", err)
	}
}

func assertStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("unexpected status %d (want %d), body: %s", rec.Code, want, rec.Body.String())
	}
}

func signupUser(t *testing.T, router *gin.Engine, username, password string) map[string]string {
	t.Helper()
	resp := doJSONRequest(t, router, http.MethodPost, "/api/auth/signup", map[string]string{
		"username": username,
		"password": password,
	}, nil)
	assertStatus(t, resp, http.StatusCreated)
	var body struct {
		Username     string `json:"username"`
		SessionToken string `json:"session_token"`
	}
	decodeJSON(t, resp.Body.Bytes(), &body)
	if body.Username != username || body.SessionToken == "" {
		t.Fatalf("unexpected signup body: %+v", body)
	}
	return map[string]string{"Authorization": fmt.Sprintf("Bearer %s", body.SessionToken)}
}

func TestSignupLoginWhoami(t *testing.T) {
	router, db := newTestServer(t)
	defer db.Close()

	authHeader := signupUser(t, router, "alice", "secret1")

	whoResp := doJSONRequest(t, router, http.MethodGet, "/api/auth/whoami", nil, authHeader)
	assertStatus(t, whoResp, http.StatusOK)
	var whoBody struct {
		Authenticated bool   `json:"authenticated"`
		Username      string `json:"username"`
	}
	decodeJSON(t, whoResp.Body.Bytes(), &whoBody)
	if !whoBody.Authenticated || whoBody.Username != "alice" {
		t.Fatalf("unexpected whoami body: %+v", whoBody)
	}

	// Anonymous whoami never fails.
	anonResp := doJSONRequest(t, router, http.MethodGet, "/api/auth/whoami", nil, nil)
	assertStatus(t, anonResp, http.StatusOK)
	var anonBody struct {
		Authenticated bool `json:"authenticated"`
	}
	decodeJSON(t, anonResp.Body.Bytes(), &anonBody)
	if anonBody.Authenticated {
		t.Fatalf("expected anonymous whoami")
	}

	// Duplicate signup conflicts.
	dupResp := doJSONRequest(t, router, http.MethodPost, "/api/auth/signup", map[string]string{
		"username": "alice",
		"password": "another6",
	}, nil)
	assertStatus(t, dupResp, http.StatusConflict)

	// Fresh login issues a working session.
	loginResp := doJSONRequest(t, router, http.MethodPost, "/api/auth/login", map[string]string{
		"username": "alice",
		"password": "secret1",
	}, nil)
	assertStatus(t, loginResp, http.StatusOK)
}

func TestSignupValidationStatus(t *testing.T) {
	router, db := newTestServer(t)
	defer db.Close()

	resp := doJSONRequest(t, router, http.MethodPost, "/api/auth/signup", map[string]string{
		"username": "al",
		"password": "secret1",
	}, nil)
	assertStatus(t, resp, http.StatusBadRequest)

	resp = doJSONRequest(t, router, http.MethodPost, "/api/auth/signup", map[string]string{
		"username": "alice",
		"password": "short",
	}, nil)
	assertStatus(t, resp, http.StatusBadRequest)
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	router, db := newTestServer(t)
	defer db.Close()

	signupUser(t, router, "alice", "secret1")

	wrongPassword := doJSONRequest(t, router, http.MethodPost, "/api/auth/login", map[string]string{
		"username": "alice",
		"password": "not-it",
	}, nil)
	unknownUser := doJSONRequest(t, router, http.MethodPost, "/api/auth/login", map[string]string{
		"username": "mallory",
		"password": "whatever",
	}, nil)

	assertStatus(t, wrongPassword, http.StatusUnauthorized)
	assertStatus(t, unknownUser, http.StatusUnauthorized)
	if wrongPassword.Body.String() != unknownUser.Body.String() {
		t.Fatalf("login failure bodies differ: %s vs %s",
			wrongPassword.Body.String(), unknownUser.Body.String())
	}
}

func TestMessageFlowEndToEnd(t *testing.T) {
	router, db := newTestServer(t)
	defer db.Close()

	aliceHeader := signupUser(t, router, "alice", "secret1")
	bobHeader := signupUser(t, router, "bob", "secret2")

	// alice -> bob
	sendResp := doJSONRequest(t, router, http.MethodPost, "/api/messages", map[string]string{
		"to":      "bob",
		"subject": "Hi",
		"body":    "Hello",
	}, aliceHeader)
	assertStatus(t, sendResp, http.StatusCreated)
	var sendBody struct {
		ID int64 `json:"id"`
	}
	decodeJSON(t, sendResp.Body.Bytes(), &sendBody)
	if sendBody.ID <= 0 {
		t.Fatalf("expected message id, got %+v", sendBody)
	}

	// Sending to a username with no account is accepted.
	ghostResp := doJSONRequest(t, router, http.MethodPost, "/api/messages", map[string]string{
		"to":      "ghost",
		"subject": "Anyone",
		"body":    "there?",
	}, aliceHeader)
	assertStatus(t, ghostResp, http.StatusCreated)

	// Self-send is rejected and persists nothing.
	selfResp := doJSONRequest(t, router, http.MethodPost, "/api/messages", map[string]string{
		"to":      "alice",
		"subject": "Hi",
		"body":    "me",
	}, aliceHeader)
	assertStatus(t, selfResp, http.StatusBadRequest)

	type inboxBody struct {
		Messages []struct {
			ID       int64  `json:"id"`
			FromUser string `json:"from_user"`
			ToUser   string `json:"to_user"`
			Subject  string `json:"subject"`
		} `json:"messages"`
	}

	bobInbox := doJSONRequest(t, router, http.MethodGet, "/api/messages/inbox", nil, bobHeader)
	assertStatus(t, bobInbox, http.StatusOK)
	var bobInboxBody inboxBody
	decodeJSON(t, bobInbox.Body.Bytes(), &bobInboxBody)
	if len(bobInboxBody.Messages) != 1 || bobInboxBody.Messages[0].FromUser != "alice" {
		t.Fatalf("unexpected bob inbox: %+v", bobInboxBody)
	}

	aliceSent := doJSONRequest(t, router, http.MethodGet, "/api/messages/sent", nil, aliceHeader)
	assertStatus(t, aliceSent, http.StatusOK)
	var aliceSentBody inboxBody
	decodeJSON(t, aliceSent.Body.Bytes(), &aliceSentBody)
	if len(aliceSentBody.Messages) != 2 {
		t.Fatalf("expected 2 sent messages, got %+v", aliceSentBody)
	}
	// Newest first: the ghost message went out last.
	if aliceSentBody.Messages[0].ToUser != "ghost" || aliceSentBody.Messages[1].ToUser != "bob" {
		t.Fatalf("unexpected sent ordering: %+v", aliceSentBody)
	}

	aliceInbox := doJSONRequest(t, router, http.MethodGet, "/api/messages/inbox", nil, aliceHeader)
	assertStatus(t, aliceInbox, http.StatusOK)
	var aliceInboxBody inboxBody
	decodeJSON(t, aliceInbox.Body.Bytes(), &aliceInboxBody)
	if len(aliceInboxBody.Messages) != 0 {
		t.Fatalf("alice inbox should be empty: %+v", aliceInboxBody)
	}

	bobSent := doJSONRequest(t, router, http.MethodGet, "/api/messages/sent", nil, bobHeader)
	assertStatus(t, bobSent, http.StatusOK)
	var bobSentBody inboxBody
	decodeJSON(t, bobSent.Body.Bytes(), &bobSentBody)
	if len(bobSentBody.Messages) != 0 {
		t.Fatalf("bob sent should be empty: %+v", bobSentBody)
	}

	recipResp := doJSONRequest(t, router, http.MethodGet, "/api/recipients", nil, aliceHeader)
	assertStatus(t, recipResp, http.StatusOK)
	var recipBody struct {
		Recipients []string `json:"recipients"`
	}
	decodeJSON(t, recipResp.Body.Bytes(), &recipBody)
	if len(recipBody.Recipients) != 1 || recipBody.Recipients[0] != "bob" {
		t.Fatalf("unexpected recipients: %+v", recipBody)
	}
}

func TestProtectedRoutesRequireSession(t *testing.T) {
	router, db := newTestServer(t)
	defer db.Close()

	paths := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/recipients"},
		{http.MethodPost, "/api/messages"},
		{http.MethodGet, "/api/messages/inbox"},
		{http.MethodGet, "/api/messages/sent"},
	}
	for _, p := range paths {
		resp := doJSONRequest(t, router, p.method, p.path, nil, nil)
		assertStatus(t, resp, http.StatusUnauthorized)
	}
}

func TestLogoutInvalidatesSession(t *testing.T) {
	router, db := newTestServer(t)
	defer db.Close()

	authHeader := signupUser(t, router, "alice", "secret1")

	logoutResp := doJSONRequest(t, router, http.MethodPost, "/api/auth/logout", nil, authHeader)
	assertStatus(t, logoutResp, http.StatusNoContent)

	// The revoked token no longer opens protected routes.
	inboxResp := doJSONRequest(t, router, http.MethodGet, "/api/messages/inbox", nil, authHeader)
	assertStatus(t, inboxResp, http.StatusUnauthorized)

	// Logout is idempotent.
	againResp := doJSONRequest(t, router, http.MethodPost, "/api/auth/logout", nil, authHeader)
	assertStatus(t, againResp, http.StatusNoContent)
}

func TestCSRFProtectsCookieRequests(t *testing.T) {
	router, db := newTestServer(t)
	defer db.Close()

	signupResp := doJSONRequest(t, router, http.MethodPost, "/api/auth/signup", map[string]string{
		"username": "alice",
		"password": "secret1",
	}, nil)
	assertStatus(t, signupResp, http.StatusCreated)

	var sessionCookie, csrfCookie *http.Cookie
	for _, ck := range signupResp.Result().Cookies() {
		switch ck.Name {
		case "session_token":
			sessionCookie = ck
		case "csrf_token":
			csrfCookie = ck
		}
	}
	if sessionCookie == nil || csrfCookie == nil {
		t.Fatalf("expected session and csrf cookies, got %+v", signupResp.Result().Cookies())
	}
	if !sessionCookie.HttpOnly {
		t.Fatalf("session cookie must be httpOnly")
	}
	cookieHeader := fmt.Sprintf("%s=%s; %s=%s",
		sessionCookie.Name, sessionCookie.Value, csrfCookie.Name, csrfCookie.Value)

	// Cookie-authenticated mutation without the CSRF header is rejected.
	noHeader := doJSONRequest(t, router, http.MethodPost, "/api/messages", map[string]string{
		"to":      "bob",
		"subject": "Hi",
		"body":    "Hello",
	}, map[string]string{"Cookie": cookieHeader})
	assertStatus(t, noHeader, http.StatusForbidden)

	// Matching double-submit token passes.
	withHeader := doJSONRequest(t, router, http.MethodPost, "/api/messages", map[string]string{
		"to":      "bob",
		"subject": "Hi",
		"body":    "Hello",
	}, map[string]string{"Cookie": cookieHeader, "X-CSRF-Token": csrfCookie.Value})
	assertStatus(t, withHeader, http.StatusCreated)

	// Reads are exempt from the CSRF check.
	inboxResp := doJSONRequest(t, router, http.MethodGet, "/api/messages/inbox", nil,
		map[string]string{"Cookie": cookieHeader})
	assertStatus(t, inboxResp, http.StatusOK)
}

func TestHealth(t *testing.T) {
	router, db := newTestServer(t)
	defer db.Close()

	resp := doJSONRequest(t, router, http.MethodGet, "/api/health", nil, nil)
	assertStatus(t, resp, http.StatusOK)
}
