package ops

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthAllPassing(t *testing.T) {
	router := NewRouter(zerolog.Nop(),
		HealthCheck{Name: "stream", Probe: func(context.Context) error { return nil }},
		HealthCheck{Name: "cache", Probe: func(context.Context) error { return nil }},
	)
	srv := httptest.NewServer(router)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, "pass", body.Checks["stream"].Status)
	assert.Equal(t, "pass", body.Checks["cache"].Status)
}

func TestHealthDegraded(t *testing.T) {
	router := NewRouter(zerolog.Nop(),
		HealthCheck{Name: "stream", Probe: func(context.Context) error { return errors.New("disconnected") }},
	)
	srv := httptest.NewServer(router)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	var body HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, "disconnected", body.Checks["stream"].Message)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := httptest.NewServer(NewRouter(zerolog.Nop()))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
