package app

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/tabchat/internal/client/session"
	"github.com/aussiebroadwan/tabchat/pkg/authapi/authapitest"
)

func testConfig(t *testing.T, apiURL string) Config {
	t.Helper()

	cfg, err := LoadConfigFrom(map[string]string{
		"TABCHAT_API_URL":         apiURL,
		"TABCHAT_DATABASE_FILE":   ":memory:",
		"TABCHAT_MASTER_KEY_PATH": filepath.Join(t.TempDir(), "master.key"),
		"TABCHAT_RATE_LIMIT":      "100",
	})
	require.NoError(t, err)
	cfg.LogOutput = io.Discard
	return cfg
}

func TestApplicationLoginFlow(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	srv := authapitest.NewServer(t)
	srv.AddUser("alice", "correct-horse")

	application, err := New(testConfig(t, srv.URL))
	require.NoError(t, err)
	t.Cleanup(func() { _ = application.Close() })

	require.NotNil(t, application.Gateway.Limiter)

	p, err := application.Session.Login(ctx, "alice", "correct-horse")
	require.NoError(t, err)
	require.Equal(t, p, application.Credentials.Load(ctx))
	require.Equal(t, session.PhaseSuccess, application.Session.State().Phase)

	_, err = application.Friends.Add(ctx, "bob", "pk-b")
	require.NoError(t, err)
	_, err = application.Messages.Send(ctx, p.Username, "bob", "hi")
	require.NoError(t, err)
	require.Equal(t, "hi", application.Friends.Current()[0].LastMessage)

	rec := httptest.NewRecorder()
	application.MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `tabchat_session_transitions_total{phase="success"} 1`)
}

func TestApplicationCreatesMasterKeyFile(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, "http://localhost:1")
	application, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, application.Close())

	info, err := os.Stat(cfg.MasterKeyPath)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestApplicationPersistsAcrossRestarts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	srv := authapitest.NewServer(t)
	srv.AddUser("alice", "correct-horse")

	cfg := testConfig(t, srv.URL)
	cfg.DatabaseFile = filepath.Join(t.TempDir(), "tabchat.db")

	first, err := New(cfg)
	require.NoError(t, err)
	_, err = first.Session.Login(ctx, "alice", "correct-horse")
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = second.Close() })

	cached := second.Session.GetCachedUser(ctx)
	require.NotNil(t, cached)
	require.Equal(t, "alice", cached.Username)
}

func TestServeMetricsStopsWithContext(t *testing.T) {
	t.Parallel()

	application, err := New(testConfig(t, "http://localhost:1"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = application.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	require.NoError(t, application.ServeMetrics(ctx, "127.0.0.1:0"))
}
