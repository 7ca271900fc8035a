// Package errors defines the error taxonomy of a summary run. Per-scope errors
// carry a kind that is recorded in the run report; configuration errors abort
// the whole run.
package errors

import (
	"errors"
	"fmt"
)

// Error kinds recorded in run reports.
const (
	KindUnknown             = "unknown"
	KindSourceUnavailable   = "source_unavailable"
	KindSummarizationFailed = "summarization_failed"
	KindPublishFailed       = "publish_failed"
	KindConfiguration       = "configuration"
)

// Sentinels matched with errors.Is.
var (
	ErrSourceUnavailable   = errors.New("source unavailable")
	ErrSummarizationFailed = errors.New("summarization failed")
	ErrPublishFailed       = errors.New("publish failed")
	ErrConfiguration       = errors.New("configuration error")
	ErrRunInProgress       = errors.New("run already in progress")
)

var sentinels = map[string]error{
	KindSourceUnavailable:   ErrSourceUnavailable,
	KindSummarizationFailed: ErrSummarizationFailed,
	KindPublishFailed:       ErrPublishFailed,
	KindConfiguration:       ErrConfiguration,
}

// Error is a classified pipeline error.
type Error struct {
	kind    string
	message string
	err     error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.message, e.err)
	}

	return e.message
}

// Kind returns the error kind.
func (e *Error) Kind() string {
	return e.kind
}

func (e *Error) Unwrap() error {
	return e.err
}

// Is matches the sentinel of the error's kind.
func (e *Error) Is(target error) bool {
	sentinel, ok := sentinels[e.kind]
	return ok && target == sentinel
}

// New creates an error of the given kind.
func New(kind, message string, cause error) error {
	return &Error{kind: kind, message: message, err: cause}
}

func NewSourceUnavailable(message string, cause error) error {
	return New(KindSourceUnavailable, message, cause)
}

func NewSummarizationFailed(message string, cause error) error {
	return New(KindSummarizationFailed, message, cause)
}

func NewPublishFailed(message string, cause error) error {
	return New(KindPublishFailed, message, cause)
}

func NewConfiguration(message string, cause error) error {
	return New(KindConfiguration, message, cause)
}

// KindOf returns the kind of err, or KindUnknown if it is not classified.
func KindOf(err error) string {
	if err == nil {
		return ""
	}

	var e *Error
	if errors.As(err, &e) {
		return e.Kind()
	}
	for kind, sentinel := range sentinels {
		if errors.Is(err, sentinel) {
			return kind
		}
	}

	return KindUnknown
}
