// internal/service/history_service.go
package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"tascam-bridge/internal/config"
	"tascam-bridge/internal/handler"
	"tascam-bridge/internal/model"
	"tascam-bridge/internal/repository"
	"tascam-bridge/internal/utils"
)

// pruneInterval is how often old history records are swept.
const pruneInterval = 1 * time.Hour

// HistoryService records every player event and dispatched command to
// the history store and prunes records past the retention window. It
// consumes the same bus the WebSocket clients do, so persistence never
// sits on the engine's hot path.
type HistoryService struct {
	repo      repository.HistoryRepository
	eventBus  *handler.EventBus
	logger    *utils.ServiceLogger
	retention time.Duration
	commands  chan model.CommandRequest
	done      chan struct{}
}

// NewHistoryService creates a new history service
func NewHistoryService(repo repository.HistoryRepository, eventBus *handler.EventBus, cfg *config.DatabaseConfig, logger *zap.Logger) *HistoryService {
	return &HistoryService{
		repo:      repo,
		eventBus:  eventBus,
		logger:    utils.NewServiceLogger(logger, "history-service"),
		retention: cfg.Retention,
		commands:  make(chan model.CommandRequest, 64),
		done:      make(chan struct{}),
	}
}

// Start begins recording events and commands and sweeping old records
func (s *HistoryService) Start() {
	subID, events := s.eventBus.Subscribe()
	go s.recordEvents(subID, events)
	go s.recordCommands()
	go s.pruneLoop()
	s.logger.Info("History recording started",
		zap.Duration("retention", s.retention),
	)
}

// Stop ends recording
func (s *HistoryService) Stop() {
	close(s.done)
}

// RecordCommand queues a dispatched command for persistence. Non-blocking;
// a full queue drops the record rather than stalling the dispatcher.
func (s *HistoryService) RecordCommand(req model.CommandRequest) {
	select {
	case s.commands <- req:
	default:
		s.logger.Warn("Command history queue full, dropping record",
			zap.String("command", req.Command),
		)
	}
}

// recordEvents drains the bus subscription into the store
func (s *HistoryService) recordEvents(subID string, events <-chan handler.Event) {
	defer s.eventBus.Unsubscribe(subID)

	for {
		select {
		case <-s.done:
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			record := repository.NewEventRecord(model.Message{
				Key:       event.Key,
				Value:     event.Value,
				Raw:       event.Message,
				Timestamp: event.Timestamp,
			})
			s.save(func(ctx context.Context) error {
				return s.repo.SaveEvent(ctx, record)
			})
		}
	}
}

// recordCommands drains the command queue into the store
func (s *HistoryService) recordCommands() {
	for {
		select {
		case <-s.done:
			return
		case req := <-s.commands:
			record := repository.NewCommandRecord(req)
			s.save(func(ctx context.Context) error {
				return s.repo.SaveCommand(ctx, record)
			})
		}
	}
}

// pruneLoop sweeps records past the retention window. Retention zero or
// negative disables pruning.
func (s *HistoryService) pruneLoop() {
	if s.retention <= 0 {
		return
	}
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.pruneOnce()
		}
	}
}

// pruneOnce deletes events and commands older than the retention window
func (s *HistoryService) pruneOnce() {
	cutoff := time.Now().Add(-s.retention)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := s.repo.DeleteOldEvents(ctx, cutoff); err != nil {
		s.logger.Error("Event history prune failed", zap.Error(err))
	}
	if _, err := s.repo.DeleteOldCommands(ctx, cutoff); err != nil {
		s.logger.Error("Command history prune failed", zap.Error(err))
	}
}

// save runs a store write with a bounded deadline
func (s *HistoryService) save(fn func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := fn(ctx); err != nil {
		s.logger.Error("History write failed", zap.Error(err))
	}
}
