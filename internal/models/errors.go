package models

import (
	"errors"
	"fmt"
	"time"
)

type ErrorKind int

const (
	KindValidation ErrorKind = iota + 1
	KindRateLimit
	KindExtraction
	KindProvider
	KindNotFound
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindRateLimit:
		return "rate limit"
	case KindExtraction:
		return "extraction"
	case KindProvider:
		return "provider"
	case KindNotFound:
		return "not found"
	default:
		return "unknown"
	}
}

// Error is the typed error shared by every docchat component.
// RetryAfter is only meaningful for KindRateLimit.
type Error struct {
	Kind       ErrorKind
	Op         string
	Msg        string
	RetryAfter time.Duration
	Err        error
}

// Sentinels for errors.Is; they match any *Error of the same kind.
var (
	ErrValidation  = &Error{Kind: KindValidation}
	ErrRateLimited = &Error{Kind: KindRateLimit}
	ErrExtraction  = &Error{Kind: KindExtraction}
	ErrProvider    = &Error{Kind: KindProvider}
	ErrNotFound    = &Error{Kind: KindNotFound}
)

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Msg == "" && t.Err == nil && t.Kind == e.Kind
}

func NewValidationError(op, msg string) error {
	return &Error{Kind: KindValidation, Op: op, Msg: msg}
}

func NewNotFoundError(op, msg string) error {
	return &Error{Kind: KindNotFound, Op: op, Msg: msg}
}

func NewExtractionError(op, msg string, err error) error {
	return &Error{Kind: KindExtraction, Op: op, Msg: msg, Err: err}
}

func NewProviderError(op string, err error) error {
	return &Error{Kind: KindProvider, Op: op, Err: err}
}

func NewRateLimitError(op, msg string, retryAfter time.Duration, err error) error {
	return &Error{Kind: KindRateLimit, Op: op, Msg: msg, RetryAfter: retryAfter, Err: err}
}

// RetryAfter extracts the retry hint of a rate limit error, or 0.
func RetryAfter(err error) time.Duration {
	var e *Error
	if errors.As(err, &e) && e.Kind == KindRateLimit {
		return e.RetryAfter
	}
	return 0
}
