package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-api-accounts/internal/application/activation"
	"github.com/go-api-accounts/internal/application/notification"
	"github.com/go-api-accounts/internal/config"
	"github.com/go-api-accounts/internal/infrastructure/memory"
	"github.com/go-api-accounts/internal/transport/http/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type capturedMail struct {
	mu    sync.Mutex
	links map[string]string
}

func (c *capturedMail) Enqueue(msg notification.ActivationEmail) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.links[msg.To] = msg.Link
	return true
}

func (c *capturedMail) path(t *testing.T, to string) string {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.links[to]
	require.True(t, ok, "no activation email for %s", to)
	i := strings.Index(l, "/v1/")
	require.GreaterOrEqual(t, i, 0)
	return l[i:]
}

func newTestServer(t *testing.T) (*httptest.Server, *capturedMail) {
	t.Helper()
	tokens, err := activation.NewService([]byte("router-test-secret"), time.Hour)
	require.NoError(t, err)
	mail := &capturedMail{links: map[string]string{}}
	limiter := middleware.NewRateLimiter(SensitiveRate, SensitiveBurst)
	t.Cleanup(limiter.Stop)
	cfg := &config.Config{
		SiteURL:        "http://localhost:3000",
		SessionTTL:     time.Hour,
		AllowedOrigins: []string{"*"},
	}
	srv := httptest.NewServer(NewRouter(cfg, &Deps{
		UserRepo:    memory.NewUserStore(),
		SessionRepo: memory.NewSessionStore(),
		Tokens:      tokens,
		Notifier:    mail,
		RateLimiter: limiter,
		BcryptCost:  bcrypt.MinCost,
	}))
	t.Cleanup(srv.Close)
	return srv, mail
}

func do(t *testing.T, method, url, session string, body interface{}) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if session != "" {
		req.Header.Set("Authorization", "Bearer "+session)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestRouter_AccountLifecycle(t *testing.T) {
	srv, mail := newTestServer(t)

	reg := map[string]string{
		"email": "Seller@Example.com", "name": "Sam", "password": "pass-1234",
		"confirm_password": "pass-1234", "role": "seller",
	}
	resp := do(t, http.MethodPost, srv.URL+"/v1/users", "", reg)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = do(t, http.MethodPost, srv.URL+"/v1/users", "", reg)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	login := map[string]string{"email": "seller@example.com", "password": "pass-1234"}
	resp = do(t, http.MethodPost, srv.URL+"/v1/sessions/login", "", login)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	activatePath := mail.path(t, "seller@example.com")
	resp = do(t, http.MethodGet, srv.URL+activatePath, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var act struct{ Status string }
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&act))
	assert.Equal(t, "activated", act.Status)

	resp = do(t, http.MethodGet, srv.URL+activatePath, "", nil)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&act))
	assert.Equal(t, "already_active", act.Status)

	resp = do(t, http.MethodPost, srv.URL+"/v1/sessions/login", "", map[string]string{"email": "seller@example.com", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = do(t, http.MethodPost, srv.URL+"/v1/sessions/login", "", login)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var lg struct {
		Destination string
		Session     struct {
			ID string `json:"id"`
		}
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&lg))
	assert.Equal(t, "seller", lg.Destination)
	require.NotEmpty(t, lg.Session.ID)
	sid := lg.Session.ID

	assert.Equal(t, http.StatusOK, do(t, http.MethodGet, srv.URL+"/v1/sessions", sid, nil).StatusCode)
	assert.Equal(t, http.StatusOK, do(t, http.MethodGet, srv.URL+"/v1/dashboard/seller", sid, nil).StatusCode)
	assert.Equal(t, http.StatusForbidden, do(t, http.MethodGet, srv.URL+"/v1/dashboard/customer", sid, nil).StatusCode)

	assert.Equal(t, http.StatusOK, do(t, http.MethodPost, srv.URL+"/v1/sessions/logout", sid, nil).StatusCode)
	assert.Equal(t, http.StatusUnauthorized, do(t, http.MethodGet, srv.URL+"/v1/sessions", sid, nil).StatusCode)
	assert.Equal(t, http.StatusOK, do(t, http.MethodPost, srv.URL+"/v1/sessions/logout", sid, nil).StatusCode)
}

func TestRouter_MalformedActivationLink(t *testing.T) {
	srv, _ := newTestServer(t)
	resp := do(t, http.MethodGet, srv.URL+"/v1/activate/!!!/token", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRouter_ResendForUnknownEmailIsAccepted(t *testing.T) {
	srv, _ := newTestServer(t)
	resp := do(t, http.MethodPost, srv.URL+"/v1/activation/resend", "", map[string]string{"email": "ghost@example.com"})
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
}

func TestRouter_ProtectedRoutesNeedSession(t *testing.T) {
	srv, _ := newTestServer(t)
	assert.Equal(t, http.StatusUnauthorized, do(t, http.MethodGet, srv.URL+"/v1/sessions", "", nil).StatusCode)
	assert.Equal(t, http.StatusUnauthorized, do(t, http.MethodGet, srv.URL+"/v1/dashboard/seller", "bogus", nil).StatusCode)
}

func TestRouter_HealthCheck(t *testing.T) {
	srv, _ := newTestServer(t)
	assert.Equal(t, http.StatusOK, do(t, http.MethodGet, srv.URL+"/v1/health-check/ping", "", nil).StatusCode)
}

func TestRouter_LoginIsRateLimited(t *testing.T) {
	srv, _ := newTestServer(t)
	limited := false
	for i := 0; i < 20 && !limited; i++ {
		resp := do(t, http.MethodPost, srv.URL+"/v1/sessions/login", "", map[string]string{"email": "x@example.com", "password": "nope-nope"})
		limited = resp.StatusCode == http.StatusTooManyRequests
	}
	assert.True(t, limited)
}
