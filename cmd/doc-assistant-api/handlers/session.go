package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/spherical/doc-assistant/internal/observability"
	"github.com/spherical/doc-assistant/internal/session"
	"github.com/spherical/doc-assistant/pkg/docassist"
)

// maxMessageBytes bounds the JSON body of a follow-up question.
const maxMessageBytes = 64 << 10

// SessionHandler serves the session lifecycle, document upload and the
// streamed analysis and chat endpoints.
type SessionHandler struct {
	logger         *observability.Logger
	store          *session.Store
	assistant      *docassist.Assistant
	maxUploadBytes int64
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(logger *observability.Logger, store *session.Store, assistant *docassist.Assistant, maxUploadBytes int64) *SessionHandler {
	return &SessionHandler{
		logger:         logger.WithComponent("api"),
		store:          store,
		assistant:      assistant,
		maxUploadBytes: maxUploadBytes,
	}
}

// CreateSessionResponse is returned by POST /sessions.
type CreateSessionResponse struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

// UploadResponse is returned by PUT /sessions/{id}/document.
type UploadResponse struct {
	Document *session.DocumentInfo `json:"document"`
	Reset    bool                  `json:"reset"`
}

// MessageRequest is the body of POST /sessions/{id}/messages.
type MessageRequest struct {
	Question string `json:"question"`
}

// Create handles POST /sessions.
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	s := h.store.Create()
	writeJSON(w, http.StatusCreated, CreateSessionResponse{ID: s.ID.String(), CreatedAt: s.CreatedAt})
}

// Get handles GET /sessions/{id}.
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(s.Snapshot()))
}

// Delete handles DELETE /sessions/{id}.
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if s.Busy() {
		writeError(w, http.StatusConflict, "session is busy", "an analysis or answer is in progress")
		return
	}

	h.store.Delete(s.ID.String())
	w.WriteHeader(http.StatusNoContent)
}

// UploadDocument handles PUT /sessions/{id}/document.
func (h *SessionHandler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "file too large", err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form", err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field is required", err.Error())
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read upload", err.Error())
		return
	}

	if !h.acquire(w, s) {
		return
	}
	defer s.Release()

	doc, reset, err := h.assistant.LoadDocument(s, header.Filename, header.Header.Get("Content-Type"), data)
	if err != nil {
		writeDomainError(w, "document rejected", err)
		return
	}

	writeJSON(w, http.StatusOK, UploadResponse{
		Document: s.Snapshot().Document,
		Reset:    reset,
	})

	h.logger.WithContext(r.Context()).Info().
		Str("session_id", s.ID.String()).
		Str("document", doc.Name).
		Str("media_type", string(doc.MediaType)).
		Bool("reset", reset).
		Msg("Document uploaded")
}

// Analyze handles POST /sessions/{id}/analyze, streaming events as SSE.
func (h *SessionHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if s.Document() == nil {
		writeError(w, http.StatusBadRequest, "no document loaded", "upload a document first")
		return
	}

	if !h.acquire(w, s) {
		return
	}
	defer s.Release()

	h.stream(w, r, func() *docassist.Stream {
		return h.assistant.Analyze(r.Context(), s)
	})
}

// PostMessage handles POST /sessions/{id}/messages, streaming the answer as SSE.
func (h *SessionHandler) PostMessage(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxMessageBytes)
	var req MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large", err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, "question is required", "")
		return
	}
	if !s.Grounded() {
		writeError(w, http.StatusBadRequest, "no analysis available", "analyze a document first")
		return
	}

	if !h.acquire(w, s) {
		return
	}
	defer s.Release()

	h.stream(w, r, func() *docassist.Stream {
		return h.assistant.Ask(r.Context(), s, req.Question)
	})
}

// GetAnalysis handles GET /sessions/{id}/analysis.
func (h *SessionHandler) GetAnalysis(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}

	analysis, has := s.Analysis()
	if !has {
		writeError(w, http.StatusNotFound, "no analysis available", "")
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, analysis)
}

// Clear handles POST /sessions/{id}/clear.
func (h *SessionHandler) Clear(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}

	if !h.acquire(w, s) {
		return
	}
	defer s.Release()

	h.assistant.Clear(s)
	w.WriteHeader(http.StatusNoContent)
}

// stream starts an operation and forwards its events to the client. A
// disconnected client cancels the request context, which stops the operation.
func (h *SessionHandler) stream(w http.ResponseWriter, r *http.Request, start func() *docassist.Stream) {
	log := h.logger.WithContext(r.Context())

	sse, ok := newSSEWriter(w)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported", "")
		return
	}

	st := start()
	writeFailed := false
	for ev := range st.Events {
		if writeFailed {
			continue
		}
		if err := sse.Send(ev); err != nil {
			log.Warn().Err(err).Msg("Failed to write event, client gone")
			writeFailed = true
		}
	}

	if _, err := st.Wait(); err != nil {
		log.Warn().Err(err).Msg("Streamed operation failed")
	}
}

func (h *SessionHandler) lookup(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	s, err := h.store.Get(chi.URLParam(r, "sessionId"))
	if err != nil {
		writeDomainError(w, "session not found", err)
		return nil, false
	}
	return s, true
}

func (h *SessionHandler) acquire(w http.ResponseWriter, s *session.Session) bool {
	if !s.TryAcquire() {
		writeError(w, http.StatusConflict, "session is busy", "an analysis or answer is in progress")
		return false
	}
	return true
}
