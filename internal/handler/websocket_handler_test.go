// internal/handler/websocket_handler_test.go
package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tascam-bridge/internal/config"
	"tascam-bridge/internal/tascam"
)

func TestWebSocketStatsRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cfg := &config.DeviceConfig{
		Host:             "127.0.0.1",
		Port:             9030,
		ConnectTimeout:   time.Second,
		ReconnectInitial: time.Second,
		ReconnectMax:     time.Second,
		OfflineThreshold: 3,
	}
	controller := tascam.NewController(cfg, zap.NewNop(), nil)
	bus := NewEventBus(zap.NewNop())
	h := NewWebSocketHandler(controller, bus, zap.NewNop())

	router := gin.New()
	h.RegisterRoutes(router.Group("/ws"))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ws/stats", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var response struct {
		Data ConnectionStats `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if response.Data.TotalConnections != 0 {
		t.Errorf("total_connections = %d, want 0", response.Data.TotalConnections)
	}
}
