package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spherical/doc-assistant/internal/observability"
)

// ErrNotFound indicates an unknown or expired session ID.
var ErrNotFound = errors.New("session not found")

// Store keeps sessions in process memory.
type Store struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
	idleTTL  time.Duration
	logger   *observability.Logger
}

// NewStore creates an empty store. An idleTTL of 0 disables sweeping.
func NewStore(idleTTL time.Duration, logger *observability.Logger) *Store {
	if logger == nil {
		logger = observability.Nop()
	}
	return &Store{
		sessions: make(map[uuid.UUID]*Session),
		idleTTL:  idleTTL,
		logger:   logger.WithComponent("session_store"),
	}
}

// Create registers a new empty session.
func (st *Store) Create() *Session {
	s := New()

	st.mu.Lock()
	st.sessions[s.ID] = s
	st.mu.Unlock()

	st.logger.Debug().Str("session_id", s.ID.String()).Msg("Session created")
	return s
}

// Get looks up a session by its string ID.
func (st *Store) Get(id string) (*Session, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrNotFound
	}

	st.mu.RLock()
	s, ok := st.sessions[uid]
	st.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}
	s.Touch()
	return s, nil
}

// Delete drops a session. It reports whether the session existed.
func (st *Store) Delete(id string) bool {
	uid, err := uuid.Parse(id)
	if err != nil {
		return false
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if _, ok := st.sessions[uid]; !ok {
		return false
	}
	delete(st.sessions, uid)
	return true
}

// Len returns the number of live sessions.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// Sweep removes sessions idle since before now minus the TTL. Busy sessions
// are kept.
func (st *Store) Sweep(now time.Time) int {
	if st.idleTTL <= 0 {
		return 0
	}
	cutoff := now.Add(-st.idleTTL)

	st.mu.Lock()
	defer st.mu.Unlock()

	removed := 0
	for id, s := range st.sessions {
		if s.Busy() || !s.LastActive().Before(cutoff) {
			continue
		}
		delete(st.sessions, id)
		removed++
	}
	return removed
}

// RunJanitor sweeps idle sessions every interval until ctx is done.
func (st *Store) RunJanitor(ctx context.Context, interval time.Duration) {
	if st.idleTTL <= 0 || interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			st.logger.Info().Msg("Stopping session janitor")
			return
		case now := <-ticker.C:
			if n := st.Sweep(now); n > 0 {
				st.logger.Info().Int("removed", n).Int("remaining", st.Len()).Msg("Swept idle sessions")
			}
		}
	}
}
