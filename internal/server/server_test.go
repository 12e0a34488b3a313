package server

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/basalthq/basalt/internal/config"
	"github.com/basalthq/basalt/internal/database"
	"github.com/basalthq/basalt/internal/engine"
)

const testSecret = "test-secret"

func testRouter(t *testing.T) http.Handler {
	t.Helper()
	root := t.TempDir()

	cfg := config.Default()
	cfg.Database.Path = filepath.Join(root, "test.db")
	cfg.Functions.Dir = filepath.Join(root, "functions")
	cfg.Functions.Watch = false
	cfg.Scheduler.Enabled = false
	cfg.Auth.JWTSecret = testSecret

	db, err := database.Open(&cfg.Database)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	e, err := engine.New(cfg, db, zerolog.Nop())
	require.NoError(t, err)

	return newRouter(cfg, e, db, zerolog.Nop())
}

func signToken(t *testing.T, role string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":  "u1",
		"role": role,
		"exp":  time.Now().Add(time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

func doRequest(router http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	router := testRouter(t)
	rec := doRequest(router, http.MethodGet, "/api/health", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestListFunctionsEmpty(t *testing.T) {
	router := testRouter(t)
	rec := doRequest(router, http.MethodGet, "/api/functions", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"functions":[]}`, rec.Body.String())
}

func TestCallUnknownFunctionIs404(t *testing.T) {
	router := testRouter(t)
	rec := doRequest(router, http.MethodPost, "/api/functions/missing", "", `{"x":1}`)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Body.String(), "FUNCTION_NOT_FOUND")
}

func TestInvalidTokenIsRejected(t *testing.T) {
	router := testRouter(t)
	rec := doRequest(router, http.MethodGet, "/api/functions", "not-a-token", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLedgerIsAdminOnly(t *testing.T) {
	router := testRouter(t)

	rec := doRequest(router, http.MethodGet, "/api/calls", "", "")
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = doRequest(router, http.MethodGet, "/api/calls", signToken(t, "user"), "")
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = doRequest(router, http.MethodGet, "/api/calls", signToken(t, "admin"), "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"calls":[]}`, rec.Body.String())
}

func TestSchedulesAdminOnly(t *testing.T) {
	router := testRouter(t)
	body := `{"function_name":"greet","kind":"interval","spec":"5m"}`

	rec := doRequest(router, http.MethodPost, "/api/schedules", signToken(t, "user"), body)
	require.Equal(t, http.StatusForbidden, rec.Code)

	// Admin passes the gate but the function does not exist.
	rec = doRequest(router, http.MethodPost, "/api/schedules", signToken(t, "admin"), body)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUnknownScheduleIs404(t *testing.T) {
	router := testRouter(t)

	rec := doRequest(router, http.MethodGet, "/api/schedules/nope", signToken(t, "admin"), "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(router, http.MethodPatch, "/api/schedules/nope", signToken(t, "admin"), `{"spec":"bad"}`)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	router := testRouter(t)
	rec := doRequest(router, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "go_goroutines")
}
