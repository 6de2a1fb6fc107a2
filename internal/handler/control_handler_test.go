// internal/handler/control_handler_test.go
package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tascam-bridge/internal/config"
	"tascam-bridge/internal/tascam"
)

func newControlRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.DeviceConfig{
		Host:             "127.0.0.1",
		Port:             9030,
		ConnectTimeout:   time.Second,
		ReconnectInitial: time.Second,
		ReconnectMax:     time.Second,
		OfflineThreshold: 3,
		WatchTimeout:     time.Second,
	}
	controller := tascam.NewController(cfg, zap.NewNop(), nil)
	h := NewControlHandler(controller, zap.NewNop())

	router := gin.New()
	h.RegisterRoutes(router.Group("/api/v1"))
	return router
}

func TestWatchRejectsOversizedDuration(t *testing.T) {
	router := newControlRouter(t)

	// A wait longer than the response window can never be answered.
	body := `{"match": "!7SSTPL", "duration": 3600}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/watch", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestWatchRejectsNegativeDuration(t *testing.T) {
	router := newControlRouter(t)

	body := `{"match": "!7SSTPL", "duration": -5}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/watch", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestSendCommandRejectedWhileDisconnected(t *testing.T) {
	router := newControlRouter(t)

	// The controller is not started, so the session is down.
	body := `{"command": "play"}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/commands", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want %d", w.Code, http.StatusConflict)
	}
}
