package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	goAccess "github.com/MrEthical07/goAccess"
	"github.com/MrEthical07/goAccess/directory/memory"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureMailer struct {
	mu   sync.Mutex
	msgs []goAccess.ActivationMessage
}

func (m *captureMailer) SendActivation(_ context.Context, msg goAccess.ActivationMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.msgs = append(m.msgs, msg)
	return nil
}

func (m *captureMailer) lastToken(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.msgs)
	return m.msgs[len(m.msgs)-1].Token
}

type testServer struct {
	handler http.Handler
	mailer  *captureMailer
	redis   *miniredis.Miniredis
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := goAccess.DefaultConfig()
	cfg.Token.Secret = []byte(testSecret)
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Session.CookieSecure = false

	mailer := &captureMailer{}
	logger := slog.New(slog.DiscardHandler)
	engine, err := goAccess.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithDirectory(memory.New()).
		WithMailer(mailer).
		WithLogger(logger).
		Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	return &testServer{
		handler: newServer(engine, logger, &Settings{}).routes(),
		mailer:  mailer,
		redis:   mr,
	}
}

func (ts *testServer) post(path string, form url.Values, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) get(path string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == "goaccess_session" {
			return c
		}
	}
	t.Fatalf("no session cookie in response")
	return nil
}

var alice = url.Values{
	"username": {"alice"},
	"email":    {"alice@example.com"},
	"password": {"correct horse"},
}

func TestServerAccountLifecycle(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.post("/register", alice)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = ts.get("/activate/" + ts.mailer.lastToken(t))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Your account is now active. You can sign in.", decodeBody(t, rec)["message"])

	rec = ts.get("/me")
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login?next=%2Fme", rec.Header().Get("Location"))

	rec = ts.post("/login", url.Values{"username": {"alice"}, "password": {"wrong"}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, rec.Result().Cookies())

	rec = ts.post("/login", url.Values{"username": {"alice"}, "password": {"correct horse"}, "next": {"/me"}})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/me", rec.Header().Get("Location"))
	cookie := sessionCookie(t, rec)
	assert.True(t, cookie.HttpOnly)

	rec = ts.get("/me", cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "alice", body["username"])
	assert.Equal(t, "alice@example.com", body["email"])
	assert.Equal(t, true, body["fresh"])

	rec = ts.post("/logout", nil, cookie)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))

	rec = ts.get("/me", cookie)
	assert.Equal(t, http.StatusSeeOther, rec.Code, "logged out session must not resolve")
}

func TestServerLoginIgnoresForeignRedirect(t *testing.T) {
	ts := newTestServer(t)
	require.Equal(t, http.StatusCreated, ts.post("/register", alice).Code)

	rec := ts.post("/login", url.Values{"username": {"alice"}, "password": {"correct horse"}, "next": {"https://evil.example/"}})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
}

func TestServerRegisterErrors(t *testing.T) {
	ts := newTestServer(t)
	require.Equal(t, http.StatusCreated, ts.post("/register", alice).Code)

	rec := ts.post("/register", alice)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.post("/register", url.Values{"username": {"b"}, "email": {"not-an-email"}, "password": {"x"}})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	fields, ok := decodeBody(t, rec)["fields"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, fields, "username")
	assert.Contains(t, fields, "email")
	assert.Contains(t, fields, "password")
}

func TestServerActivationFailuresShareMessage(t *testing.T) {
	ts := newTestServer(t)
	require.Equal(t, http.StatusCreated, ts.post("/register", alice).Code)
	tok := ts.mailer.lastToken(t)

	rec := ts.get("/activate/not-a-token")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	invalid := decodeBody(t, rec)["message"]

	require.Equal(t, http.StatusOK, ts.get("/activate/"+tok).Code)
	rec = ts.get("/activate/" + tok)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, invalid, decodeBody(t, rec)["message"])
}

func TestServerResendIsSilent(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.post("/activate/resend", url.Values{"email": {"nobody@example.com"}})
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestServerChangePasswordAndRevoke(t *testing.T) {
	ts := newTestServer(t)
	require.Equal(t, http.StatusCreated, ts.post("/register", alice).Code)

	rec := ts.post("/login", url.Values{"username": {"alice"}, "password": {"correct horse"}})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	cookie := sessionCookie(t, rec)

	rec = ts.post("/me/password", url.Values{"current": {"wrong"}, "new": {"battery staple"}}, cookie)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.post("/me/password", url.Values{"current": {"correct horse"}, "new": {"battery staple"}}, cookie)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.get("/me", cookie)
	assert.Equal(t, http.StatusSeeOther, rec.Code, "strong protection drops sessions after a password change")

	rec = ts.post("/login", url.Values{"username": {"alice"}, "password": {"battery staple"}})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	cookie = sessionCookie(t, rec)

	rec = ts.post("/me/sessions/revoke", nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decodeBody(t, rec)["revoked"])
	assert.Equal(t, http.StatusSeeOther, ts.get("/me", cookie).Code)
}

func TestServerHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.get("/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["status"])

	require.Equal(t, http.StatusCreated, ts.post("/register", alice).Code)
	ts.post("/login", url.Values{"username": {"alice"}, "password": {"correct horse"}})

	rec = ts.get("/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "goaccess_login_success_total 1")
	assert.Contains(t, rec.Body.String(), "goaccess_registration_success_total 1")

	ts.redis.Close()
	rec = ts.get("/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
