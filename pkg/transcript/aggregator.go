// Package transcript accumulates streaming transcription deltas into an
// ordered conversation history.
package transcript

import (
	"log/slog"
	"sync"
	"time"

	"github.com/centavohq/voicecore/pkg/logging"
)

// Role identifies the speaker of a transcript entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Entry is one utterance. Text keeps growing while Final is false; once
// Final it never changes again.
type Entry struct {
	Role       Role
	Generation string
	Text       string
	Final      bool
	StartedAt  time.Time
	UpdatedAt  time.Time
}

type key struct {
	role       Role
	generation string
}

// Aggregator builds the conversation transcript. Each (role, generation)
// pair owns at most one in-progress entry; entries appear in the order
// their first delta arrived.
type Aggregator struct {
	mu      sync.Mutex
	entries []Entry
	open    map[key]int // index into entries
	done    map[key]struct{}
	log     *slog.Logger
	now     func() time.Time

	onUpdate func(Entry)
}

func NewAggregator(log *slog.Logger) *Aggregator {
	return &Aggregator{
		open: make(map[key]int),
		done: make(map[key]struct{}),
		log:  logging.NewComponentLogger(log, "transcript"),
		now:  time.Now,
	}
}

// OnUpdate registers a callback invoked with a copy of the entry after
// every delta or commit. Must be set before the first Delta.
func (a *Aggregator) OnUpdate(fn func(Entry)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onUpdate = fn
}

// Delta appends text to the in-progress entry for (role, generation),
// creating it on first use. Deltas arriving after the entry was committed
// are dropped.
func (a *Aggregator) Delta(role Role, generation, text string) {
	if text == "" {
		return
	}
	a.mu.Lock()
	k := key{role: role, generation: generation}
	if _, final := a.done[k]; final {
		a.mu.Unlock()
		a.log.Warn("transcript_delta_after_final", "role", string(role), "generation", generation)
		return
	}
	idx, ok := a.open[k]
	if !ok {
		idx = len(a.entries)
		a.entries = append(a.entries, Entry{
			Role:       role,
			Generation: generation,
			StartedAt:  a.now(),
		})
		a.open[k] = idx
	}
	a.entries[idx].Text += text
	a.entries[idx].UpdatedAt = a.now()
	snapshot := a.entries[idx]
	fn := a.onUpdate
	a.mu.Unlock()

	if fn != nil {
		fn(snapshot)
	}
}

// Commit finalizes the entry for (role, generation). text, when non-empty,
// replaces the accumulated deltas; backends send the authoritative full
// transcript with the done event. Committing an unseen pair creates a
// complete entry directly.
func (a *Aggregator) Commit(role Role, generation, text string) {
	a.mu.Lock()
	k := key{role: role, generation: generation}
	if _, final := a.done[k]; final {
		a.mu.Unlock()
		a.log.Warn("transcript_double_commit", "role", string(role), "generation", generation)
		return
	}
	idx, ok := a.open[k]
	if !ok {
		if text == "" {
			a.mu.Unlock()
			return
		}
		idx = len(a.entries)
		a.entries = append(a.entries, Entry{
			Role:       role,
			Generation: generation,
			StartedAt:  a.now(),
		})
	}
	if text != "" {
		a.entries[idx].Text = text
	}
	a.entries[idx].Final = true
	a.entries[idx].UpdatedAt = a.now()
	delete(a.open, k)
	a.done[k] = struct{}{}
	snapshot := a.entries[idx]
	fn := a.onUpdate
	a.mu.Unlock()

	if fn != nil {
		fn(snapshot)
	}
}

// Entries returns a copy of the transcript in utterance order.
func (a *Aggregator) Entries() []Entry {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Entry, len(a.entries))
	copy(out, a.entries)
	return out
}

// Reset clears the transcript, typically between sessions.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = nil
	a.open = make(map[key]int)
	a.done = make(map[key]struct{})
}
