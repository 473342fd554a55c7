package server

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLiveness(t *testing.T) {
	env := newTestEnv(t)

	rec := env.request(t, http.MethodGet, "/health/live", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeJSON[map[string]any](t, rec)
	assert.Equal(t, "ok", body["status"])
}

func TestReadiness(t *testing.T) {
	env := newTestEnv(t)

	rec := env.request(t, http.MethodGet, "/health/ready", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeJSON[map[string]string](t, rec)
	assert.Equal(t, "ready", body["status"])
}

func TestReadiness_FailingDependency(t *testing.T) {
	env := newTestEnv(t)
	env.server.deps.Postgres = okPinger{err: fmt.Errorf("connection refused")}

	rec := env.request(t, http.MethodGet, "/health/ready", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	body := decodeJSON[map[string]any](t, rec)
	assert.Equal(t, "unhealthy", body["status"])
	assert.Equal(t, "postgres", body["failed_check"])
}

func TestVersion(t *testing.T) {
	env := newTestEnv(t)

	rec := env.request(t, http.MethodGet, "/version", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeJSON[map[string]any](t, rec)
	assert.NotEmpty(t, body["go_version"])
}

func TestMetricsExposed(t *testing.T) {
	env := newTestEnv(t)

	rec := env.request(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
