package source

import (
	"errors"
	"fmt"
	"net/http"
)

// Common errors returned by the client.
var (
	// ErrRequestBlocked is returned when the upstream budget is exhausted.
	ErrRequestBlocked = errors.New("request blocked: upstream rate limit critical")

	// ErrInvalidPage is returned for page indices below 1. Callers sanitize
	// addresses first, so this indicates a programming error.
	ErrInvalidPage = errors.New("invalid page index")
)

// ErrorClass represents a classification of page fetch failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx responses other than 429.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx responses.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 responses.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents transport failures and timeouts.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassDecode represents bodies that are not a valid page.
	ErrorClassDecode ErrorClass = "decode"
)

// SourceError describes a failed page fetch.
type SourceError struct {
	Page       int
	StatusCode int
	ErrorClass ErrorClass
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *SourceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("page %d: %s error (status %d): %s: %v",
			e.Page, e.ErrorClass, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("page %d: %s error (status %d): %s",
		e.Page, e.ErrorClass, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *SourceError) Unwrap() error {
	return e.Err
}

// ClassOf returns the class of err, or "" when err is not a SourceError.
func ClassOf(err error) ErrorClass {
	var se *SourceError
	if errors.As(err, &se) {
		return se.ErrorClass
	}
	return ""
}

// classifyStatus maps an HTTP status to an error class. Successful
// statuses yield "".
func classifyStatus(status int) ErrorClass {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case status >= 400 && status < 500:
		return ErrorClassClient
	case status >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}
