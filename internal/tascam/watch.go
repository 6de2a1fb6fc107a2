// internal/tascam/watch.go
package tascam

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tascam-bridge/internal/model"
)

// sweepInterval bounds how long a timed-out watch entry may linger past its
// deadline before the sweeper resolves and reclaims it.
const sweepInterval = 250 * time.Millisecond

// WatchOutcome is the single resolution of a watch: either the matched
// message or a timeout. Exactly one of the two is set.
type WatchOutcome struct {
	Matched  *model.Message `json:"matched,omitempty"`
	TimedOut bool           `json:"timed_out"`
}

// watchEntry is one registered waiter. resolved guards the resolve-once
// invariant: a message match and a deadline sweep can race, but only the
// first wins.
type watchEntry struct {
	id       uuid.UUID
	match    string
	deadline time.Time
	result   chan WatchOutcome // buffered, capacity 1
	resolved bool
}

// WatchRegistry tracks short-lived waiters for exact protocol strings.
// Entries resolve exactly once, on first match or at deadline, and are
// removed immediately after; nothing is retained past resolution.
type WatchRegistry struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*watchEntry
	logger  *zap.Logger
	done    chan struct{}
	once    sync.Once
}

// NewWatchRegistry creates a registry and starts its deadline sweeper.
func NewWatchRegistry(logger *zap.Logger) *WatchRegistry {
	wr := &WatchRegistry{
		entries: make(map[uuid.UUID]*watchEntry),
		logger:  logger.With(zap.String("component", "watch-registry")),
		done:    make(chan struct{}),
	}
	go wr.sweep()
	return wr
}

// Watch registers a waiter for an exact raw protocol string and returns a
// channel that yields exactly one WatchOutcome: the matched message, or a
// timeout at the deadline. The caller may abandon the channel at any time;
// the entry is reclaimed by match or by the sweeper regardless.
func (wr *WatchRegistry) Watch(match string, timeout time.Duration) <-chan WatchOutcome {
	entry := &watchEntry{
		id:       uuid.New(),
		match:    match,
		deadline: time.Now().Add(timeout),
		result:   make(chan WatchOutcome, 1),
	}

	wr.mu.Lock()
	wr.entries[entry.id] = entry
	wr.mu.Unlock()

	wr.logger.Debug("Watch registered",
		zap.String("watch_id", entry.id.String()),
		zap.String("match", match),
		zap.Duration("timeout", timeout),
	)
	return entry.result
}

// Notify checks every active entry against a decoded message. Matching is an
// exact comparison against the frame's raw representation. Each matching
// entry resolves once and is removed; resolving one entry never affects
// others, including other entries with the same match string.
func (wr *WatchRegistry) Notify(msg model.Message) {
	wr.mu.Lock()
	defer wr.mu.Unlock()

	for id, entry := range wr.entries {
		if entry.resolved || entry.match != msg.Raw {
			continue
		}
		entry.resolved = true
		entry.result <- WatchOutcome{Matched: &msg}
		delete(wr.entries, id)

		wr.logger.Debug("Watch matched",
			zap.String("watch_id", id.String()),
			zap.String("raw", msg.Raw),
		)
	}
}

// Active returns the number of unresolved entries.
func (wr *WatchRegistry) Active() int {
	wr.mu.Lock()
	defer wr.mu.Unlock()
	return len(wr.entries)
}

// Close stops the sweeper and times out every remaining entry.
func (wr *WatchRegistry) Close() {
	wr.once.Do(func() {
		close(wr.done)
		wr.expire(time.Time{})
	})
}

// sweep resolves expired entries independently of message arrival, so a
// watch on a string that never arrives still resolves promptly at its
// deadline rather than on the next unrelated message.
func (wr *WatchRegistry) sweep() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-wr.done:
			return
		case now := <-ticker.C:
			wr.expire(now)
		}
	}
}

// expire times out entries whose deadline has passed. A zero time expires
// everything (shutdown path).
func (wr *WatchRegistry) expire(now time.Time) {
	wr.mu.Lock()
	defer wr.mu.Unlock()

	for id, entry := range wr.entries {
		if !now.IsZero() && now.Before(entry.deadline) {
			continue
		}
		if entry.resolved {
			continue
		}
		entry.resolved = true
		entry.result <- WatchOutcome{TimedOut: true}
		delete(wr.entries, id)

		wr.logger.Debug("Watch timed out",
			zap.String("watch_id", id.String()),
			zap.String("match", entry.match),
		)
	}
}
