package margin

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure modes.
var (
	// ErrValidation indicates a request or message failed validation.
	ErrValidation = errors.New("validation error")

	// ErrNotConfigured indicates no API credential is set. No call is
	// attempted.
	ErrNotConfigured = errors.New("api credential not configured")

	// ErrTransport indicates the completion call failed: network failure or
	// a non-success status.
	ErrTransport = errors.New("completion transport error")

	// ErrEmptyResponse indicates the completion call succeeded but returned
	// no usable content.
	ErrEmptyResponse = errors.New("empty completion response")

	// ErrSummarization indicates the summarizer could not produce a
	// summary. It never fails a chat turn.
	ErrSummarization = errors.New("summarization failed")

	// ErrPersistence indicates the session registry could not be read from
	// or written to durable storage. It is logged, never returned by
	// store operations.
	ErrPersistence = errors.New("session persistence failed")

	// ErrSessionNotFound indicates the (document, session) pair is unknown.
	ErrSessionNotFound = errors.New("session not found")

	// ErrLastSession indicates an attempt to delete the only session of a
	// document.
	ErrLastSession = errors.New("cannot delete the only session of a document")

	// ErrSessionBusy indicates a message is already in flight for the
	// session.
	ErrSessionBusy = errors.New("session has a message in flight")
)

// HTTPError is a non-success response from a completion endpoint.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// Unwrap makes every HTTPError match ErrTransport.
func (e *HTTPError) Unwrap() error { return ErrTransport }
