package main

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/racedqn/autopilot/internal/api"
	"github.com/racedqn/autopilot/internal/config"
	"github.com/racedqn/autopilot/internal/handlers"
	gormstorage "github.com/racedqn/autopilot/internal/storage/gorm"
	"github.com/racedqn/autopilot/internal/storage/memory"
	"github.com/racedqn/autopilot/internal/storage/remote"
	"github.com/racedqn/autopilot/pkg/core"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOpenBackend(t *testing.T) {
	b, closeDB, err := openBackend(config.ServerConfig{Storage: "memory"}, zerolog.Nop(), quietLogger())
	require.NoError(t, err)
	assert.IsType(t, &memory.Backend{}, b)
	assert.NoError(t, closeDB())

	_, _, err = openBackend(config.ServerConfig{Storage: "tape"}, zerolog.Nop(), quietLogger())
	assert.Error(t, err)
}

func TestSqliteServerRoundTrip(t *testing.T) {
	gin.SetMode(gin.TestMode)
	path := filepath.Join(t.TempDir(), "db", "replay.db")

	b, closeDB, err := openBackend(config.ServerConfig{Storage: "sqlite", SqlitePath: path}, zerolog.Nop(), quietLogger())
	require.NoError(t, err)
	defer closeDB()
	require.NoError(t, b.Init())
	require.IsType(t, &gormstorage.Backend{}, b)

	srv := httptest.NewServer(handlers.NewService(handlers.Dependencies{Backend: b, APIKey: "k"}).Router())
	defer srv.Close()

	client := remote.New(config.RemoteConfig{ServerURL: srv.URL, APIKey: "k"})
	require.NoError(t, client.Init())
	require.NoError(t, client.StartSession(&core.Session{ID: "s1", SceneName: "oval"}))
	require.NoError(t, client.StoreTransitions([]core.ReplayRecord{{
		Seq:       0,
		State:     make([]float32, core.StateSize),
		NextState: make([]float32, core.StateSize),
	}}))

	n, err := b.(*gormstorage.Backend).CountTransitions("s1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	resp, err := http.Get(srv.URL + api.SessionsPath + "/s1")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
