// Package session holds the per-conversation state of the document assistant.
package session

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/spherical/doc-assistant/internal/domain"
)

// Turn is one entry in the conversation history.
type Turn struct {
	Role    domain.Role `json:"role"`
	Content string      `json:"content"`
}

// Session is the mutable state of one conversation: the loaded document,
// the analysis text that grounds every chat turn, and the history.
//
// History is non-empty only while an analysis is present. All mutation goes
// through the methods below.
type Session struct {
	ID        uuid.UUID
	CreatedAt time.Time

	mu         sync.RWMutex
	document   *domain.Document
	analysis   *string
	history    []Turn
	updatedAt  time.Time
	lastActive time.Time

	busy atomic.Bool
}

// New creates an empty session.
func New() *Session {
	now := time.Now()
	return &Session{
		ID:         uuid.New(),
		CreatedAt:  now,
		updatedAt:  now,
		lastActive: now,
	}
}

// TryAcquire marks the session busy for one action. It returns false when
// another action already holds it.
func (s *Session) TryAcquire() bool {
	if !s.busy.CompareAndSwap(false, true) {
		return false
	}
	s.Touch()
	return true
}

// Release ends the action started by a successful TryAcquire.
func (s *Session) Release() {
	s.Touch()
	s.busy.Store(false)
}

// Busy reports whether an action is in flight.
func (s *Session) Busy() bool {
	return s.busy.Load()
}

// Touch records activity for idle sweeping.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActive = time.Now()
	s.mu.Unlock()
}

// LastActive returns the time of the last recorded activity.
func (s *Session) LastActive() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActive
}

// Document returns the loaded document, or nil.
func (s *Session) Document() *domain.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.document
}

// Analysis returns the analysis text and whether one is present.
func (s *Session) Analysis() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.analysis == nil {
		return "", false
	}
	return *s.analysis, true
}

// History returns a copy of the conversation history.
func (s *Session) History() []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Turn, len(s.history))
	copy(out, s.history)
	return out
}

// Grounded reports whether follow-up questions can be answered.
func (s *Session) Grounded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.analysis != nil && len(s.history) > 0
}

// LoadDocument stores doc and drops the previous analysis and history.
// Loading the document already held is a no-op and returns false.
func (s *Session) LoadDocument(doc *domain.Document) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if doc != nil && doc == s.document {
		return false
	}

	s.document = doc
	s.analysis = nil
	s.history = nil
	s.updatedAt = time.Now()
	return true
}

// CommitAnalysis records a completed analysis cycle. The summary becomes the
// only history entry. Nothing is committed if doc is no longer the loaded
// document.
func (s *Session) CommitAnalysis(doc *domain.Document, analysis, summary string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if doc != s.document {
		return false
	}

	s.analysis = &analysis
	s.history = []Turn{{Role: domain.RoleAssistant, Content: summary}}
	s.updatedAt = time.Now()
	return true
}

// AppendExchange adds a completed follow-up question and answer.
func (s *Session) AppendExchange(question, answer string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = append(s.history,
		Turn{Role: domain.RoleUser, Content: question},
		Turn{Role: domain.RoleAssistant, Content: answer},
	)
	s.updatedAt = time.Now()
}

// Clear resets the document, analysis and history.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.document = nil
	s.analysis = nil
	s.history = nil
	s.updatedAt = time.Now()
}

// DocumentInfo describes the loaded document without its bytes.
type DocumentInfo struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	MediaType  string    `json:"media_type"`
	Size       int       `json:"size"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// Snapshot is a read-only view of a session.
type Snapshot struct {
	ID          uuid.UUID     `json:"id"`
	Document    *DocumentInfo `json:"document,omitempty"`
	HasAnalysis bool          `json:"has_analysis"`
	Messages    []Turn        `json:"messages"`
	Busy        bool          `json:"busy"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// Snapshot returns a consistent copy of the session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		ID:          s.ID,
		HasAnalysis: s.analysis != nil,
		Messages:    make([]Turn, len(s.history)),
		Busy:        s.busy.Load(),
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.updatedAt,
	}
	copy(snap.Messages, s.history)

	if d := s.document; d != nil {
		snap.Document = &DocumentInfo{
			ID:         d.ID,
			Name:       d.Name,
			MediaType:  string(d.MediaType),
			Size:       d.Size(),
			UploadedAt: d.UploadedAt,
		}
	}

	return snap
}
