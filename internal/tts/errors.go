package tts

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrEmptyText is returned when there is nothing to synthesize.
	ErrEmptyText = errors.New("text cannot be empty")
	// ErrTextTooLong is returned when the input exceeds MaxCharsPerRequest.
	ErrTextTooLong = errors.New("text exceeds provider request limit")
	// ErrEmptyAudio is returned when a backend answers without audio.
	ErrEmptyAudio = errors.New("provider returned no audio")
)

// SynthesisError describes a failed backend call. Retryable marks transient
// failures (rate limiting, server side errors, transport errors) that an
// outer scheduler may try again.
type SynthesisError struct {
	Provider   Name
	StatusCode int
	Message    string
	Cause      error
	Retryable  bool
}

func (e *SynthesisError) Error() string {
	msg := string(e.Provider) + ": " + e.Message
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s: %s (status %d)", e.Provider, e.Message, e.StatusCode)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *SynthesisError) Unwrap() error { return e.Cause }

// NewSynthesisError builds a SynthesisError.
func NewSynthesisError(provider Name, status int, message string, cause error, retryable bool) *SynthesisError {
	return &SynthesisError{
		Provider:   provider,
		StatusCode: status,
		Message:    message,
		Cause:      cause,
		Retryable:  retryable,
	}
}

// StatusError classifies a non-2xx HTTP response: 408, 429 and 5xx are
// retryable, every other status is fatal.
func StatusError(provider Name, status int, body string) *SynthesisError {
	retryable := status == http.StatusRequestTimeout ||
		status == http.StatusTooManyRequests ||
		status >= http.StatusInternalServerError
	message := body
	if message == "" {
		message = http.StatusText(status)
	}
	return NewSynthesisError(provider, status, message, nil, retryable)
}

// TransportError wraps a failure to reach the backend at all.
func TransportError(provider Name, err error) *SynthesisError {
	return NewSynthesisError(provider, 0, "request failed", err, true)
}

// IsRetryable reports whether err carries a retryable classification. Error
// types exposing `Retryable() bool` take precedence over the SynthesisError
// they may wrap.
func IsRetryable(err error) bool {
	var r interface{ Retryable() bool }
	if errors.As(err, &r) {
		return r.Retryable()
	}
	var se *SynthesisError
	if errors.As(err, &se) {
		return se.Retryable
	}
	return false
}
