package domain

import (
	"errors"
	"fmt"
)

// Error types for domain-specific errors
type ErrorType string

const (
	ErrorTypeValidation    ErrorType = "validation"
	ErrorTypeRender        ErrorType = "render"
	ErrorTypePageAnalysis  ErrorType = "page_analysis"
	ErrorTypeExtraction    ErrorType = "extraction"
	ErrorTypeSummarization ErrorType = "summarization"
	ErrorTypeFollowUp      ErrorType = "follow_up"
	ErrorTypeAPI           ErrorType = "api"
	ErrorTypeConfig        ErrorType = "config"
	ErrorTypeIO            ErrorType = "io"
)

// DomainError represents a domain-specific error with context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewError creates a new domain error
func NewError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
	}
}

// TypeOf returns the type of the outermost DomainError in the chain, or ""
// when err carries none.
func TypeOf(err error) ErrorType {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Type
	}
	return ""
}

// IsType reports whether any DomainError in the chain has the given type.
func IsType(err error, errType ErrorType) bool {
	for err != nil {
		var de *DomainError
		if !errors.As(err, &de) {
			return false
		}
		if de.Type == errType {
			return true
		}
		err = de.Err
	}
	return false
}

// Common error constructors
func ValidationError(message string, err error) *DomainError {
	return NewError(ErrorTypeValidation, message, err)
}

func RenderError(message string, err error) *DomainError {
	return NewError(ErrorTypeRender, message, err)
}

func PageAnalysisError(message string, err error) *DomainError {
	return NewError(ErrorTypePageAnalysis, message, err)
}

func ExtractionError(message string, err error) *DomainError {
	return NewError(ErrorTypeExtraction, message, err)
}

func SummarizationError(message string, err error) *DomainError {
	return NewError(ErrorTypeSummarization, message, err)
}

func FollowUpError(message string, err error) *DomainError {
	return NewError(ErrorTypeFollowUp, message, err)
}

func APIError(message string, err error) *DomainError {
	return NewError(ErrorTypeAPI, message, err)
}

func ConfigError(message string, err error) *DomainError {
	return NewError(ErrorTypeConfig, message, err)
}

func IOError(message string, err error) *DomainError {
	return NewError(ErrorTypeIO, message, err)
}
