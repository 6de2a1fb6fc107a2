// internal/service/history_service_test.go
package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"tascam-bridge/internal/config"
	"tascam-bridge/internal/handler"
	"tascam-bridge/internal/model"
)

// recordingRepo captures every store call for assertions.
type recordingRepo struct {
	mu             sync.Mutex
	savedEvents    []*model.EventRecord
	savedCommands  []*model.CommandRecord
	eventCutoffs   []time.Time
	commandCutoffs []time.Time
}

func (r *recordingRepo) SaveEvent(ctx context.Context, record *model.EventRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.savedEvents = append(r.savedEvents, record)
	return nil
}

func (r *recordingRepo) SaveCommand(ctx context.Context, record *model.CommandRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.savedCommands = append(r.savedCommands, record)
	return nil
}

func (r *recordingRepo) ListEvents(ctx context.Context, limit int) ([]*model.EventRecord, error) {
	return nil, nil
}

func (r *recordingRepo) ListCommands(ctx context.Context, limit int) ([]*model.CommandRecord, error) {
	return nil, nil
}

func (r *recordingRepo) DeleteOldEvents(ctx context.Context, olderThan time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.eventCutoffs = append(r.eventCutoffs, olderThan)
	return 0, nil
}

func (r *recordingRepo) DeleteOldCommands(ctx context.Context, olderThan time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commandCutoffs = append(r.commandCutoffs, olderThan)
	return 0, nil
}

func TestHistoryServiceRecordsEvents(t *testing.T) {
	repo := &recordingRepo{}
	bus := handler.NewEventBus(zap.NewNop())
	go bus.Start()
	defer bus.Close()

	s := NewHistoryService(repo, bus, &config.DatabaseConfig{Retention: time.Hour}, zap.NewNop())
	s.Start()
	defer s.Stop()

	bus.Publish(model.Message{Key: model.KeyTransport, Value: "PL", Raw: "!7SSTPL", Timestamp: time.Now()})

	deadline := time.Now().Add(2 * time.Second)
	for {
		repo.mu.Lock()
		n := len(repo.savedEvents)
		repo.mu.Unlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("event never reached the store")
		}
		time.Sleep(5 * time.Millisecond)
	}

	repo.mu.Lock()
	defer repo.mu.Unlock()
	if repo.savedEvents[0].Raw != "!7SSTPL" || repo.savedEvents[0].Key != model.KeyTransport {
		t.Errorf("saved event = %+v", repo.savedEvents[0])
	}
}

func TestHistoryServiceRecordsCommands(t *testing.T) {
	repo := &recordingRepo{}
	bus := handler.NewEventBus(zap.NewNop())
	go bus.Start()
	defer bus.Close()

	s := NewHistoryService(repo, bus, &config.DatabaseConfig{Retention: time.Hour}, zap.NewNop())
	s.Start()
	defer s.Stop()

	s.RecordCommand(model.CommandRequest{Command: "play", Frame: "!7PLY\r", IssuedAt: time.Now()})

	deadline := time.Now().Add(2 * time.Second)
	for {
		repo.mu.Lock()
		n := len(repo.savedCommands)
		repo.mu.Unlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("command never reached the store")
		}
		time.Sleep(5 * time.Millisecond)
	}

	repo.mu.Lock()
	defer repo.mu.Unlock()
	if repo.savedCommands[0].Command != "play" {
		t.Errorf("saved command = %+v", repo.savedCommands[0])
	}
}

func TestHistoryServicePruneCutoff(t *testing.T) {
	repo := &recordingRepo{}
	bus := handler.NewEventBus(zap.NewNop())
	go bus.Start()
	defer bus.Close()

	retention := 24 * time.Hour
	s := NewHistoryService(repo, bus, &config.DatabaseConfig{Retention: retention}, zap.NewNop())

	before := time.Now().Add(-retention)
	s.pruneOnce()
	after := time.Now().Add(-retention)

	repo.mu.Lock()
	defer repo.mu.Unlock()
	if len(repo.eventCutoffs) != 1 || len(repo.commandCutoffs) != 1 {
		t.Fatalf("prune calls: events=%d commands=%d, want 1 each",
			len(repo.eventCutoffs), len(repo.commandCutoffs))
	}
	for _, cutoff := range []time.Time{repo.eventCutoffs[0], repo.commandCutoffs[0]} {
		if cutoff.Before(before) || cutoff.After(after) {
			t.Errorf("cutoff %v outside retention window [%v, %v]", cutoff, before, after)
		}
	}
}
