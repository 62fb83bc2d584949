package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/MolForge/internal/testutil"
)

func statusHandler(code int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(code)
		_, _ = w.Write([]byte("body"))
	})
}

func TestRequestLogging_Levels(t *testing.T) {
	tests := []struct {
		status int
		level  string
		msg    string
	}{
		{http.StatusOK, "info", "HTTP request completed"},
		{http.StatusBadRequest, "warn", "client error"},
		{http.StatusBadGateway, "error", "server error"},
	}
	for _, tt := range tests {
		log := testutil.NewMockLogger()
		h := RequestLogging(log, DefaultLoggingConfig())(statusHandler(tt.status))

		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/session?x=1", nil))

		m, ok := log.Find(tt.level, tt.msg)
		require.True(t, ok, "status %d", tt.status)
		status, _ := m.Field("status")
		path, _ := m.Field("path")
		bytes, _ := m.Field("bytes")
		assert.Equal(t, tt.status, status)
		assert.Equal(t, "/api/v1/session?x=1", path)
		assert.Equal(t, int64(4), bytes)
	}
}

func TestRequestLogging_SkipPaths(t *testing.T) {
	log := testutil.NewMockLogger()
	h := RequestLogging(log, DefaultLoggingConfig())(statusHandler(http.StatusOK))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Empty(t, log.GetMessages())
}

func TestRequestLogging_Slow(t *testing.T) {
	log := testutil.NewMockLogger()
	cfg := LoggingConfig{SlowThreshold: time.Millisecond}
	h := RequestLogging(log, cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(5 * time.Millisecond)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.True(t, log.HasMessage("warn", "slow"))
}
