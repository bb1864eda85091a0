package domain

import (
	"image"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MediaType is the declared type of an uploaded document.
type MediaType string

const (
	MediaTypePDF  MediaType = "application/pdf"
	MediaTypePNG  MediaType = "image/png"
	MediaTypeJPEG MediaType = "image/jpeg"
)

// SupportedMediaTypes lists the upload types the assistant accepts.
var SupportedMediaTypes = []MediaType{MediaTypePDF, MediaTypePNG, MediaTypeJPEG}

// IsSupported reports whether m is one of SupportedMediaTypes.
func (m MediaType) IsSupported() bool {
	for _, s := range SupportedMediaTypes {
		if m == s {
			return true
		}
	}
	return false
}

// IsPDF reports whether the document must be rasterized before analysis.
func (m MediaType) IsPDF() bool {
	return m == MediaTypePDF
}

// Label returns the short upper-case form shown to users, e.g. "PDF".
func (m MediaType) Label() string {
	s := string(m)
	if i := strings.LastIndex(s, "/"); i >= 0 {
		s = s[i+1:]
	}
	return strings.ToUpper(s)
}

// Document represents an uploaded file awaiting analysis. Identity is the
// pointer: the same *Document loaded twice is not a new upload.
type Document struct {
	ID         uuid.UUID
	Name       string
	MediaType  MediaType
	Data       []byte
	UploadedAt time.Time
}

// NewDocument wraps uploaded bytes in a Document with a fresh ID.
func NewDocument(name string, mediaType MediaType, data []byte) *Document {
	return &Document{
		ID:         uuid.New(),
		Name:       name,
		MediaType:  mediaType,
		Data:       data,
		UploadedAt: time.Now(),
	}
}

// Size returns the document size in bytes.
func (d *Document) Size() int {
	return len(d.Data)
}

// PageImage represents a single rasterized page or an uploaded image
type PageImage struct {
	PageNumber int // 1-based, in original document order
	Image      image.Image
}

// EventType represents the type of stream event
type EventType string

const (
	EventStart            EventType = "start"
	EventRendering        EventType = "rendering"
	EventPageProcessing   EventType = "page_processing"
	EventPageComplete     EventType = "page_complete"
	EventPageError        EventType = "page_error"
	EventAnalysisComplete EventType = "analysis_complete"
	EventSummaryStart     EventType = "summary_start"
	EventSummaryDelta     EventType = "summary_delta" // Chunk of text
	EventSummaryComplete  EventType = "summary_complete"
	EventAnswerDelta      EventType = "answer_delta" // Chunk of text
	EventAnswerComplete   EventType = "answer_complete"
	EventError            EventType = "error"
	EventComplete         EventType = "complete"
)

// StreamEvent represents an event emitted during an orchestration action
type StreamEvent struct {
	Type       EventType   `json:"type"`
	PageNumber int         `json:"page_number,omitempty"`
	TotalPages int         `json:"total_pages,omitempty"`
	Payload    interface{} `json:"payload,omitempty"` // Text chunk or status message
	Timestamp  time.Time   `json:"timestamp"`
}

// AnalysisStats contains metadata about one analysis pass
type AnalysisStats struct {
	TotalPages      int           `json:"total_pages"`
	SuccessfulPages int           `json:"successful_pages"`
	FailedPages     []int         `json:"failed_pages,omitempty"`
	Duration        time.Duration `json:"duration_ns"`
}
