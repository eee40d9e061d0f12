// Package session owns every uploaded dataset's lifetime: the immutable
// original table, the bounded history of working snapshots, and the locking
// that keeps concurrent commands against one session from interleaving.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cleanslate/cleanslate/internal/observability"
	"github.com/cleanslate/cleanslate/internal/table"
)

// ErrNotFound means the session id is unknown or already evicted.
var ErrNotFound = errors.New("session not found")

const defaultMaxHistory = 4

// Archiver persists a snapshot of a session's current table outside process
// memory. Archiving is best effort: failures are logged, never surfaced.
type Archiver interface {
	SaveSnapshot(ctx context.Context, sessionID string, t *table.Table) error
}

type Options struct {
	// MaxHistory bounds the snapshot history per session, original included.
	// Zero means the default of 4.
	MaxHistory int
	// TTL evicts sessions idle for longer than this when the janitor runs.
	// Zero disables eviction.
	TTL      time.Duration
	Archiver Archiver
	Logger   *slog.Logger
}

// Store is the process-wide session map. It is handed to the transport and
// pipeline by reference; there is no package-level singleton.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	opts     Options
}

func NewStore(opts Options) *Store {
	if opts.MaxHistory <= 0 {
		opts.MaxHistory = defaultMaxHistory
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return &Store{sessions: make(map[string]*Session), opts: opts}
}

// Create registers a new session for a decoded table and returns it. The
// table is deep-copied twice so neither the caller, the original, nor the
// first history entry alias cell storage.
func (s *Store) Create(t *table.Table, filename string) *Session {
	sess := &Session{
		id:         uuid.NewString(),
		filename:   filename,
		original:   t.Clone(),
		history:    []*table.Table{t.Clone()},
		maxHistory: s.opts.MaxHistory,
		lastUsed:   time.Now(),
		archive:    s.archiveFunc(),
	}

	s.mu.Lock()
	s.sessions[sess.id] = sess
	count := len(s.sessions)
	s.mu.Unlock()

	observability.SetActiveSessions(count)
	return sess
}

// WithSession runs fn while holding the session's lock, serializing whole
// commands (read, execute, commit) against the same session id. Session
// methods must only be called inside fn.
func (s *Store) WithSession(id string, fn func(*Session) error) error {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.lastUsed = time.Now()
	return fn(sess)
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// StartJanitor evicts idle sessions on an interval until ctx is done. It is
// a no-op when no TTL is configured.
func (s *Store) StartJanitor(ctx context.Context, interval time.Duration) {
	if s.opts.TTL <= 0 {
		return
	}
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.evictIdle()
			}
		}
	}()
}

func (s *Store) evictIdle() {
	cutoff := time.Now().Add(-s.opts.TTL)

	s.mu.Lock()
	evicted := 0
	for id, sess := range s.sessions {
		if sess.lastUsed.Before(cutoff) {
			delete(s.sessions, id)
			evicted++
		}
	}
	count := len(s.sessions)
	s.mu.Unlock()

	if evicted > 0 {
		observability.SetActiveSessions(count)
		s.opts.Logger.Info("evicted idle sessions",
			slog.Int("evicted", evicted),
			slog.Int("remaining", count),
		)
	}
}

func (s *Store) archiveFunc() func(string, *table.Table) {
	if s.opts.Archiver == nil {
		return nil
	}
	archiver := s.opts.Archiver
	logger := s.opts.Logger
	return func(sessionID string, t *table.Table) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := archiver.SaveSnapshot(ctx, sessionID, t); err != nil {
			logger.Warn("snapshot archive failed",
				slog.String("session_id", sessionID),
				slog.Any("error", err),
			)
		}
	}
}
