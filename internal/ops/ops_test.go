package ops

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestServer_Healthz(t *testing.T) {
	t.Parallel()

	server := NewServer(":0", nil, zap.NewNop())
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestServer_Readyz_AllDependenciesHealthy(t *testing.T) {
	t.Parallel()

	var checked []string
	deps := []Dependency{
		{Name: "redis", Check: func(context.Context) error {
			checked = append(checked, "redis")
			return nil
		}},
		{Name: "rabbitmq", Check: func(context.Context) error {
			checked = append(checked, "rabbitmq")
			return nil
		}},
	}
	server := NewServer(":0", deps, zap.NewNop())
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ready"}`, rec.Body.String())
	require.Equal(t, []string{"redis", "rabbitmq"}, checked)
}

func TestServer_Readyz_NamesFailingDependency(t *testing.T) {
	t.Parallel()

	deps := []Dependency{
		{Name: "redis", Check: func(context.Context) error { return nil }},
		{Name: "rabbitmq", Check: func(context.Context) error {
			return errors.New("connection closed")
		}},
	}
	server := NewServer(":0", deps, zap.NewNop())
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Contains(t, rec.Body.String(), "rabbitmq")
	require.Contains(t, rec.Body.String(), "connection closed")
}

func TestServer_Readyz_ChecksRunUnderTimeout(t *testing.T) {
	t.Parallel()

	deps := []Dependency{
		{Name: "redis", Check: func(ctx context.Context) error {
			deadline, ok := ctx.Deadline()
			if !ok {
				return errors.New("no deadline set")
			}
			if time.Until(deadline) > checkTimeout {
				return errors.New("deadline too far out")
			}
			return nil
		}},
	}
	server := NewServer(":0", deps, zap.NewNop())
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_Metrics(t *testing.T) {
	t.Parallel()

	server := NewServer(":0", nil, zap.NewNop())
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_ShutdownWithoutStart(t *testing.T) {
	t.Parallel()

	server := NewServer(":0", nil, zap.NewNop())
	require.NoError(t, server.Shutdown(context.Background()))
}
