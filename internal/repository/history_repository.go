// internal/repository/history_repository.go
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tascam-bridge/internal/database"
	"tascam-bridge/internal/model"
)

// HistoryRepository defines data access for the message and command history
type HistoryRepository interface {
	SaveEvent(ctx context.Context, record *model.EventRecord) error
	SaveCommand(ctx context.Context, record *model.CommandRecord) error
	ListEvents(ctx context.Context, limit int) ([]*model.EventRecord, error)
	ListCommands(ctx context.Context, limit int) ([]*model.CommandRecord, error)
	DeleteOldEvents(ctx context.Context, olderThan time.Time) (int64, error)
	DeleteOldCommands(ctx context.Context, olderThan time.Time) (int64, error)
}

// historyRepository implements HistoryRepository interface
type historyRepository struct {
	db     *database.DB
	logger *zap.Logger
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(db *database.DB, logger *zap.Logger) HistoryRepository {
	return &historyRepository{
		db:     db,
		logger: logger,
	}
}

// SaveEvent persists a received protocol message
func (r *historyRepository) SaveEvent(ctx context.Context, record *model.EventRecord) error {
	query := `
		INSERT INTO player_events (id, raw, key, value, received_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.db.ExecContext(ctx, query,
		record.ID, record.Raw, record.Key, record.Value, record.ReceivedAt,
	)
	if err != nil {
		r.logger.Error("Failed to save event", zap.Error(err), zap.String("raw", record.Raw))
		return fmt.Errorf("failed to save event: %w", err)
	}

	return nil
}

// SaveCommand persists a dispatched command
func (r *historyRepository) SaveCommand(ctx context.Context, record *model.CommandRecord) error {
	query := `
		INSERT INTO player_commands (id, command, frame, issued_at)
		VALUES ($1, $2, $3, $4)
	`

	_, err := r.db.ExecContext(ctx, query,
		record.ID, record.Command, record.Frame, record.IssuedAt,
	)
	if err != nil {
		r.logger.Error("Failed to save command", zap.Error(err), zap.String("command", record.Command))
		return fmt.Errorf("failed to save command: %w", err)
	}

	return nil
}

// ListEvents returns the most recent events, newest first
func (r *historyRepository) ListEvents(ctx context.Context, limit int) ([]*model.EventRecord, error) {
	query := `
		SELECT id, raw, key, value, received_at
		FROM player_events
		ORDER BY received_at DESC
		LIMIT $1
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		r.logger.Error("Failed to list events", zap.Error(err))
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var records []*model.EventRecord
	for rows.Next() {
		record := &model.EventRecord{}
		if err := rows.Scan(&record.ID, &record.Raw, &record.Key, &record.Value, &record.ReceivedAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		records = append(records, record)
	}

	return records, rows.Err()
}

// ListCommands returns the most recent commands, newest first
func (r *historyRepository) ListCommands(ctx context.Context, limit int) ([]*model.CommandRecord, error) {
	query := `
		SELECT id, command, frame, issued_at
		FROM player_commands
		ORDER BY issued_at DESC
		LIMIT $1
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		r.logger.Error("Failed to list commands", zap.Error(err))
		return nil, fmt.Errorf("failed to list commands: %w", err)
	}
	defer rows.Close()

	var records []*model.CommandRecord
	for rows.Next() {
		record := &model.CommandRecord{}
		if err := rows.Scan(&record.ID, &record.Command, &record.Frame, &record.IssuedAt); err != nil {
			return nil, fmt.Errorf("failed to scan command: %w", err)
		}
		records = append(records, record)
	}

	return records, rows.Err()
}

// DeleteOldEvents removes events older than the given time
func (r *historyRepository) DeleteOldEvents(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM player_events WHERE received_at < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old events: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted events: %w", err)
	}

	if deleted > 0 {
		r.logger.Info("Deleted old events",
			zap.Int64("count", deleted),
			zap.Time("older_than", olderThan),
		)
	}

	return deleted, nil
}

// DeleteOldCommands removes commands older than the given time
func (r *historyRepository) DeleteOldCommands(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM player_commands WHERE issued_at < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old commands: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted commands: %w", err)
	}

	if deleted > 0 {
		r.logger.Info("Deleted old commands",
			zap.Int64("count", deleted),
			zap.Time("older_than", olderThan),
		)
	}

	return deleted, nil
}

// NewEventRecord builds a record from a decoded message
func NewEventRecord(msg model.Message) *model.EventRecord {
	return &model.EventRecord{
		ID:         uuid.New(),
		Raw:        msg.Raw,
		Key:        msg.Key,
		Value:      msg.Value,
		ReceivedAt: msg.Timestamp,
	}
}

// NewCommandRecord builds a record from a dispatched command
func NewCommandRecord(req model.CommandRequest) *model.CommandRecord {
	return &model.CommandRecord{
		ID:       uuid.New(),
		Command:  req.Command,
		Frame:    req.Frame,
		IssuedAt: req.IssuedAt,
	}
}
