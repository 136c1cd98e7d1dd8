package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCheckAllHealthy(t *testing.T) {
	m := NewManager(zap.NewNop())
	m.Register(NewCheck("redis", true, func(context.Context) error { return nil }))
	m.Register(NewCheck("qdrant", true, func(context.Context) error { return nil }))

	report := m.Check(context.Background())
	require.Equal(t, StatusHealthy, report.Status)
	require.True(t, report.Ready)
	require.Len(t, report.Components, 2)
}

func TestCriticalFailureBlocksReadiness(t *testing.T) {
	m := NewManager(zap.NewNop())
	m.Register(NewCheck("redis", true, func(context.Context) error { return errors.New("down") }))

	report := m.Check(context.Background())
	require.Equal(t, StatusUnhealthy, report.Status)
	require.False(t, report.Ready)
	require.Equal(t, "down", report.Components["redis"].Error)
}

func TestNonCriticalFailureDegrades(t *testing.T) {
	m := NewManager(zap.NewNop())
	m.Register(NewCheck("redis", true, func(context.Context) error { return nil }))
	m.Register(NewCheck("embeddings", false, func(context.Context) error { return errors.New("down") }))

	report := m.Check(context.Background())
	require.Equal(t, StatusDegraded, report.Status)
	require.True(t, report.Ready)
}

func TestHTTPEndpoints(t *testing.T) {
	m := NewManager(zap.NewNop())
	m.Register(NewCheck("redis", true, func(context.Context) error { return errors.New("down") }))
	mux := http.NewServeMux()
	m.RegisterRoutes(mux)

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)

	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
