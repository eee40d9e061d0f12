package session

import (
	"sync"
	"time"

	"github.com/cleanslate/cleanslate/internal/table"
)

// Session tracks one uploaded dataset: the original table plus a bounded,
// never-empty history of snapshots whose tail is the working table. All
// methods must run inside Store.WithSession, which holds mu.
type Session struct {
	mu         sync.Mutex
	id         string
	filename   string
	original   *table.Table
	history    []*table.Table
	maxHistory int
	lastUsed   time.Time
	archive    func(string, *table.Table)
}

func (s *Session) ID() string { return s.id }

func (s *Session) Filename() string { return s.filename }

// Current returns the working table, the tail of history. Callers that
// intend to mutate must Clone first; the snapshot itself is owned by the
// store.
func (s *Session) Current() *table.Table {
	return s.history[len(s.history)-1]
}

func (s *Session) HistoryLen() int { return len(s.history) }

// Original returns the table as first decoded.
func (s *Session) Original() *table.Table { return s.original }

// Commit appends a new working snapshot. When the bound is exceeded the
// entry at index 1 is dropped: the original at index 0 and the newest tail
// survive, the oldest intermediate change goes.
func (s *Session) Commit(t *table.Table) {
	s.history = append(s.history, t.Clone())
	if len(s.history) > s.maxHistory {
		s.history = append(s.history[:1], s.history[2:]...)
	}
	s.archived()
}

// Undo drops the latest snapshot and returns the new working table. Once
// only the original remains it is a no-op, not an error.
func (s *Session) Undo() *table.Table {
	if len(s.history) > 1 {
		s.history[len(s.history)-1] = nil
		s.history = s.history[:len(s.history)-1]
		s.archived()
	}
	return s.Current()
}

// Reset truncates history back to a fresh copy of the original.
func (s *Session) Reset() *table.Table {
	s.history = []*table.Table{s.original.Clone()}
	s.archived()
	return s.Current()
}

func (s *Session) archived() {
	if s.archive != nil {
		s.archive(s.id, s.Current())
	}
}
