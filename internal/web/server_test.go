package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igrelay/pkg/config"
	"igrelay/pkg/logger"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	cfg := &config.WebConfig{Enabled: true, ListenAddr: ":0"}
	return New(cfg, logger.NewTestLogger())
}

func TestHandleStatus(t *testing.T) {
	server := testServer(t)
	server.SetBotName("igrelay_bot")

	rec := httptest.NewRecorder()
	server.handleStatus(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "@igrelay_bot")
	assert.Contains(t, rec.Body.String(), "Bot is running")
	assert.Contains(t, rec.Body.String(), "never", "no self-ping yet")
}

func TestHandleStatusUnknownPath(t *testing.T) {
	server := testServer(t)

	rec := httptest.NewRecorder()
	server.handleStatus(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlePing(t *testing.T) {
	server := testServer(t)

	rec := httptest.NewRecorder()
	server.handlePing(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, body["uptime"])
}

func TestHandleHealthz(t *testing.T) {
	server := testServer(t)

	rec := httptest.NewRecorder()
	server.handleHealthz(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}
