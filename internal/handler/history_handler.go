// internal/handler/history_handler.go
package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tascam-bridge/internal/repository"
	"tascam-bridge/internal/utils"
)

// historyDefaultLimit and historyMaxLimit bound the listing endpoints.
const (
	historyDefaultLimit = 50
	historyMaxLimit     = 500
)

// HistoryHandler exposes the recorded event and command history, the
// bridge's audit trail for automation debugging.
type HistoryHandler struct {
	repo   repository.HistoryRepository
	logger *utils.ServiceLogger
}

// NewHistoryHandler creates a new history handler
func NewHistoryHandler(repo repository.HistoryRepository, logger *zap.Logger) *HistoryHandler {
	return &HistoryHandler{
		repo:   repo,
		logger: utils.NewServiceLogger(logger, "history-handler"),
	}
}

// RegisterRoutes registers history routes
func (h *HistoryHandler) RegisterRoutes(router *gin.RouterGroup) {
	history := router.Group("/history")
	{
		history.GET("/events", h.ListEvents)
		history.GET("/commands", h.ListCommands)
	}
}

// ListEvents returns the most recent recorded player events, newest first
func (h *HistoryHandler) ListEvents(c *gin.Context) {
	limit, err := parseLimit(c)
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid limit", err)
		return
	}

	records, err := h.repo.ListEvents(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to list events", zap.Error(err))
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to list events", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Event history", gin.H{
		"events": records,
		"count":  len(records),
	})
}

// ListCommands returns the most recent dispatched commands, newest first
func (h *HistoryHandler) ListCommands(c *gin.Context) {
	limit, err := parseLimit(c)
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid limit", err)
		return
	}

	records, err := h.repo.ListCommands(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to list commands", zap.Error(err))
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to list commands", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Command history", gin.H{
		"commands": records,
		"count":    len(records),
	})
}

// parseLimit reads the optional limit query parameter
func parseLimit(c *gin.Context) (int, error) {
	raw := c.DefaultQuery("limit", strconv.Itoa(historyDefaultLimit))
	limit, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("limit must be an integer: %w", err)
	}
	if limit < 1 || limit > historyMaxLimit {
		return 0, fmt.Errorf("limit must be between 1 and %d", historyMaxLimit)
	}
	return limit, nil
}
