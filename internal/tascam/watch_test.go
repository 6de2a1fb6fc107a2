// internal/tascam/watch_test.go
package tascam

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"tascam-bridge/internal/model"
)

func rawMsg(raw string) model.Message {
	return model.Message{Key: model.KeyRaw, Value: raw, Raw: raw, Timestamp: time.Now()}
}

func TestWatchResolvesOnMatch(t *testing.T) {
	wr := NewWatchRegistry(zap.NewNop())
	defer wr.Close()

	ch := wr.Watch("!7SSTPL", 10*time.Second)

	go func() {
		time.Sleep(50 * time.Millisecond)
		wr.Notify(rawMsg("!7SSTPL"))
	}()

	select {
	case outcome := <-ch:
		if outcome.TimedOut {
			t.Fatal("watch timed out despite a matching message")
		}
		if outcome.Matched == nil || outcome.Matched.Raw != "!7SSTPL" {
			t.Fatalf("matched = %+v, want raw !7SSTPL", outcome.Matched)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watch never resolved")
	}

	if wr.Active() != 0 {
		t.Errorf("entry not removed after match: %d active", wr.Active())
	}

	// A second identical message must not re-resolve the entry.
	wr.Notify(rawMsg("!7SSTPL"))
	select {
	case outcome := <-ch:
		t.Fatalf("resolved twice: %+v", outcome)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestWatchTimesOut(t *testing.T) {
	wr := NewWatchRegistry(zap.NewNop())
	defer wr.Close()

	start := time.Now()
	ch := wr.Watch("!7XYZ", 300*time.Millisecond)

	select {
	case outcome := <-ch:
		if !outcome.TimedOut {
			t.Fatalf("outcome = %+v, want timeout", outcome)
		}
		if elapsed := time.Since(start); elapsed < 300*time.Millisecond {
			t.Errorf("timed out early after %s", elapsed)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watch never timed out")
	}

	if wr.Active() != 0 {
		t.Errorf("expired entry not removed: %d active", wr.Active())
	}
}

func TestWatchExactMatchOnly(t *testing.T) {
	wr := NewWatchRegistry(zap.NewNop())
	defer wr.Close()

	ch := wr.Watch("!7SSTPL", 400*time.Millisecond)

	// Substrings and supersets must not match.
	wr.Notify(rawMsg("!7SST"))
	wr.Notify(rawMsg("!7SSTPLX"))

	outcome := <-ch
	if !outcome.TimedOut {
		t.Fatalf("non-exact raw matched: %+v", outcome.Matched)
	}
}

func TestWatchesAreIndependent(t *testing.T) {
	wr := NewWatchRegistry(zap.NewNop())
	defer wr.Close()

	first := wr.Watch("!7MSTTO", 5*time.Second)
	second := wr.Watch("!7MSTTO", 5*time.Second)
	other := wr.Watch("!7MUT00", 300*time.Millisecond)

	wr.Notify(rawMsg("!7MSTTO"))

	for i, ch := range []<-chan WatchOutcome{first, second} {
		select {
		case outcome := <-ch:
			if outcome.TimedOut {
				t.Errorf("watch %d timed out, want match", i)
			}
		case <-time.After(time.Second):
			t.Fatalf("watch %d never resolved", i)
		}
	}

	// The unrelated watch still runs to its own deadline.
	if outcome := <-other; !outcome.TimedOut {
		t.Errorf("unrelated watch resolved by a foreign message: %+v", outcome.Matched)
	}
}

func TestWatchCloseExpiresEverything(t *testing.T) {
	wr := NewWatchRegistry(zap.NewNop())

	ch := wr.Watch("!7NEVER", time.Hour)
	wr.Close()

	select {
	case outcome := <-ch:
		if !outcome.TimedOut {
			t.Fatalf("outcome = %+v, want timeout on close", outcome)
		}
	case <-time.After(time.Second):
		t.Fatal("close did not resolve pending watch")
	}
}
