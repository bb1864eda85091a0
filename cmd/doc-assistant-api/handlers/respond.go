// Package handlers provides HTTP handlers for the document assistant API.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/spherical/doc-assistant/internal/domain"
	"github.com/spherical/doc-assistant/internal/pdf"
	"github.com/spherical/doc-assistant/internal/session"
)

// ErrorResponse is the JSON body of every non-2xx reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message, details string) {
	writeJSON(w, status, ErrorResponse{Error: message, Details: details})
}

// writeDomainError maps err onto an HTTP status
func writeDomainError(w http.ResponseWriter, message string, err error) {
	writeError(w, statusFor(err), message, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, pdf.ErrUnsupportedMediaType):
		return http.StatusUnsupportedMediaType
	}

	switch domain.TypeOf(err) {
	case domain.ErrorTypeValidation:
		return http.StatusBadRequest
	case domain.ErrorTypeRender, domain.ErrorTypeExtraction:
		return http.StatusUnprocessableEntity
	case domain.ErrorTypePageAnalysis, domain.ErrorTypeSummarization, domain.ErrorTypeFollowUp, domain.ErrorTypeAPI:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
