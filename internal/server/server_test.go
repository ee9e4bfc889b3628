package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebronway/domain-manager/internal/certs"
	"github.com/thebronway/domain-manager/internal/config"
	"github.com/thebronway/domain-manager/internal/ddns"
	"github.com/thebronway/domain-manager/internal/dnsprovider"
	"github.com/thebronway/domain-manager/internal/domain"
	"github.com/thebronway/domain-manager/internal/notify"
	"github.com/thebronway/domain-manager/internal/scheduler"
	"github.com/thebronway/domain-manager/internal/state"
)

type stubIssuer struct{}

func (stubIssuer) Issue(context.Context, string, bool) (string, error) { return "", nil }
func (stubIssuer) Renew(context.Context, string, bool) (string, error) {
	return "not yet due", nil
}

type stubReader struct{}

func (stubReader) ExpirationOf(string) (time.Time, error) {
	return time.Time{}, domain.ErrCertificateMissing
}

func newTestServer(t *testing.T, secret string) (*Server, *state.Store) {
	t.Helper()

	cfg := &config.Config{
		Timezone: "UTC",
		Server:   config.ServerConfig{Port: 0, AuthSecret: secret},
		Domains: []config.DomainSpec{
			{Name: "a.example.com", DDNS: true},
		},
	}

	store := state.NewStore(filepath.Join(t.TempDir(), "app_state.json"))
	notifier := notify.NewFanout(config.Notifications{})
	provider := dnsprovider.NewMemory(map[string]string{"a.example.com": "198.51.100.4"})
	reconciler := ddns.NewReconciler(cfg, store, provider, nil, notifier)
	certMgr := certs.NewManager(cfg, store, stubIssuer{}, stubReader{}, notifier)
	sched := scheduler.New()
	sched.RegisterIPCheck("60m", time.UTC, func(ctx context.Context) {})

	return New(cfg, store, sched, reconciler, certMgr, notifier, nil), store
}

func do(s *Server, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

func mintToken(t *testing.T, secret string) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   "api",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestHealthIsUnauthenticated(t *testing.T) {
	s, _ := newTestServer(t, "testsecret")
	rec := do(s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPIRejectsMissingOrInvalidToken(t *testing.T) {
	s, _ := newTestServer(t, "testsecret")

	rec := do(s, http.MethodGet, "/api/v1/status", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(s, http.MethodGet, "/api/v1/status", "not-a-jwt")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(s, http.MethodGet, "/api/v1/status", mintToken(t, "wrong-secret"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPIAcceptsValidToken(t *testing.T) {
	s, _ := newTestServer(t, "testsecret")
	rec := do(s, http.MethodGet, "/api/v1/status", mintToken(t, "testsecret"))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPIIsOpenWithoutSecret(t *testing.T) {
	s, _ := newTestServer(t, "")
	rec := do(s, http.MethodGet, "/api/v1/status", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStatusPayload(t *testing.T) {
	s, store := newTestServer(t, "")
	store.SetPublicIP("203.0.113.7")
	recorded := "203.0.113.7"
	store.SetRecordedIP("a.example.com", &recorded)

	rec := do(s, http.MethodGet, "/api/v1/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	require.NotNil(t, resp.PublicIP)
	assert.Equal(t, "203.0.113.7", *resp.PublicIP)
	assert.False(t, resp.SSLBatchRunning)

	st, ok := resp.Domains["a.example.com"]
	require.True(t, ok)
	require.NotNil(t, st.RecordedIP)
	assert.Equal(t, "203.0.113.7", *st.RecordedIP)
	assert.True(t, st.DDNS)

	_, ok = resp.NextRuns[string(scheduler.KindIPCheck)]
	assert.True(t, ok)
}

func TestForceUpdateErrors(t *testing.T) {
	s, store := newTestServer(t, "")

	rec := do(s, http.MethodPost, "/api/v1/domains/nope.example.com/force-update", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Known domain but no public IP resolved yet.
	rec = do(s, http.MethodPost, "/api/v1/domains/a.example.com/force-update", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	store.SetPublicIP("203.0.113.7")
	rec = do(s, http.MethodPost, "/api/v1/domains/a.example.com/force-update", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRefreshIP(t *testing.T) {
	s, _ := newTestServer(t, "")
	rec := do(s, http.MethodPost, "/api/v1/domains/a.example.com/refresh-ip", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "198.51.100.4", resp["recorded_ip"])
}

func TestTriggerSSLAccepted(t *testing.T) {
	s, _ := newTestServer(t, "")
	rec := do(s, http.MethodPost, "/api/v1/trigger/ssl", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestEventsWithoutHistoryStore(t *testing.T) {
	s, _ := newTestServer(t, "")
	rec := do(s, http.MethodGet, "/api/v1/events", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}
