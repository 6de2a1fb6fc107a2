// internal/handler/control_handler.go
package handler

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tascam-bridge/internal/model"
	"tascam-bridge/internal/protocol"
	"tascam-bridge/internal/tascam"
	"tascam-bridge/internal/utils"
)

// ControlHandler exposes the engine over HTTP: state snapshots, command
// dispatch, power control, and blocking watches.
type ControlHandler struct {
	controller *tascam.Controller
	logger     *utils.ServiceLogger
}

// NewControlHandler creates a new control handler
func NewControlHandler(controller *tascam.Controller, logger *zap.Logger) *ControlHandler {
	return &ControlHandler{
		controller: controller,
		logger:     utils.NewServiceLogger(logger, "control-handler"),
	}
}

// RegisterRoutes registers control routes
func (h *ControlHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/status", h.GetStatus)
	router.POST("/commands", h.SendCommand)
	router.POST("/power/on", h.PowerOn)
	router.POST("/power/off", h.PowerOff)
	router.POST("/watch", h.Watch)
}

// CommandRequest is the POST /commands payload
type CommandRequest struct {
	Command string `json:"command" binding:"required"`
}

// WatchRequest is the POST /watch payload
type WatchRequest struct {
	Match    string `json:"match" binding:"required"`
	Duration int    `json:"duration,omitempty"` // seconds; engine default when 0
}

// maxWatchSeconds keeps a blocking watch inside the server's write timeout;
// a longer wait would resolve against an already-dead connection.
const maxWatchSeconds = 25

// StatusResponse is the GET /status payload: the raw cache snapshot plus
// readable derivations for the common keys.
type StatusResponse struct {
	Connection string            `json:"connection"`
	Power      model.PowerState  `json:"power"`
	Transport  string            `json:"transport"`
	Disc       string            `json:"disc"`
	TrayOpen   bool              `json:"tray_open"`
	Muted      bool              `json:"muted"`
	Elapsed    int               `json:"elapsed_seconds"`
	Remaining  int               `json:"remaining_seconds"`
	Total      int               `json:"total_seconds"`
	Title      string            `json:"title"`
	Titles     string            `json:"total_titles"`
	Chapter    string            `json:"chapter"`
	Chapters   string            `json:"total_chapters"`
	Raw        map[string]string `json:"raw"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// GetStatus returns the current device state snapshot
func (h *ControlHandler) GetStatus(c *gin.Context) {
	snap := h.controller.Snapshot()

	elapsed := protocol.ClockSeconds(snap.Get(model.KeyElapsedTime))
	remaining := protocol.ClockSeconds(snap.Get(model.KeyRemainingTime))
	total := 0
	if elapsed > 0 && remaining > 0 {
		total = elapsed + remaining
	}

	raw := make(map[string]string, len(snap.Values))
	for k, v := range snap.Values {
		raw[string(k)] = v
	}

	status := StatusResponse{
		Connection: h.controller.ConnState().String(),
		Power:      snap.Power,
		Transport:  protocol.TransportStateName(snap.Get(model.KeyTransport)),
		Disc:       protocol.DiscStateName(snap.Get(model.KeyDiscStatus)),
		TrayOpen:   protocol.TrayOpen(snap.Get(model.KeyDiscStatus)),
		Muted:      protocol.Muted(snap.Get(model.KeyMute)),
		Elapsed:    elapsed,
		Remaining:  remaining,
		Total:      total,
		Title:      protocol.CounterValue(snap.Get(model.KeyTitle)),
		Titles:     protocol.CounterValue(snap.Get(model.KeyTotalTitles)),
		Chapter:    protocol.CounterValue(snap.Get(model.KeyChapter)),
		Chapters:   protocol.CounterValue(snap.Get(model.KeyTotalChapters)),
		Raw:        raw,
		UpdatedAt:  snap.UpdatedAt,
	}

	utils.SuccessResponse(c, http.StatusOK, "Device status", status)
}

// SendCommand dispatches a friendly alias or raw protocol command
func (h *ControlHandler) SendCommand(c *gin.Context) {
	var req CommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid command request", err)
		return
	}

	if err := h.controller.Send(req.Command); err != nil {
		switch {
		case errors.Is(err, tascam.ErrNotConnected):
			utils.ErrorResponse(c, http.StatusConflict, "Device is not connected", err)
		case errors.Is(err, tascam.ErrShuttingDown):
			utils.ErrorResponse(c, http.StatusConflict, "Device is shutting down", err)
		default:
			utils.ErrorResponse(c, http.StatusServiceUnavailable, "Command delivery failed", err)
		}
		return
	}

	utils.SuccessResponse(c, http.StatusAccepted, "Command dispatched", gin.H{
		"command": req.Command,
	})
}

// PowerOn wakes the unit, via the protocol when connected or a network
// wake signal otherwise. Fire-and-forget either way.
func (h *ControlHandler) PowerOn(c *gin.Context) {
	if err := h.controller.PowerOn(); err != nil {
		utils.ErrorResponse(c, http.StatusServiceUnavailable, "Power on failed", err)
		return
	}
	utils.SuccessResponse(c, http.StatusAccepted, "Power on requested", nil)
}

// PowerOff puts the unit into standby; a no-op when disconnected
func (h *ControlHandler) PowerOff(c *gin.Context) {
	if err := h.controller.PowerOff(); err != nil {
		utils.ErrorResponse(c, http.StatusServiceUnavailable, "Power off failed", err)
		return
	}
	utils.SuccessResponse(c, http.StatusAccepted, "Power off requested", nil)
}

// Watch blocks until an exact protocol string arrives or the deadline
// passes. A timeout is a normal outcome, reported as such, not an error.
func (h *ControlHandler) Watch(c *gin.Context) {
	var req WatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid watch request", err)
		return
	}
	if req.Duration < 0 || req.Duration > maxWatchSeconds {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid watch request",
			fmt.Errorf("duration must be between 0 and %d seconds", maxWatchSeconds))
		return
	}

	outcome := <-h.controller.Watch(req.Match, time.Duration(req.Duration)*time.Second)
	if outcome.TimedOut {
		utils.SuccessResponse(c, http.StatusOK, "Watch timed out", gin.H{
			"match":     req.Match,
			"timed_out": true,
		})
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Watch matched", gin.H{
		"match":     req.Match,
		"timed_out": false,
		"matched":   outcome.Matched,
	})
}
