package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorKind partitions transport failures by how the caller should react.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	// KindConnection covers dial failures, resets and closed connections.
	KindConnection
	// KindTimeout covers deadline and response-wait expirations.
	KindTimeout
	// KindRateLimited covers 429 responses.
	KindRateLimited
	// KindProtocol covers session-state violations on the stream channel,
	// such as an active-response conflict or an uninitialized session.
	KindProtocol
	// KindModelUnavailable covers 5xx and model-not-found responses.
	KindModelUnavailable
)

func (k ErrorKind) String() string {
	switch k {
	case KindConnection:
		return "connection"
	case KindTimeout:
		return "timeout"
	case KindRateLimited:
		return "rate_limited"
	case KindProtocol:
		return "protocol"
	case KindModelUnavailable:
		return "model_unavailable"
	}
	return "unknown"
}

// Error wraps a transport failure with its kind and the operation that
// produced it.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError wraps err with an explicit kind.
func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Classify wraps err with a kind inferred from its text. API SDK errors do
// not expose stable typed sentinels for every failure mode, so this matches
// on the strings the services actually return.
func Classify(op string, err error) *Error {
	if err == nil {
		return nil
	}
	var te *Error
	if errors.As(err, &te) {
		return &Error{Kind: te.Kind, Op: op, Err: err}
	}
	return &Error{Kind: kindFromText(err), Op: op, Err: err}
}

func kindFromText(err error) ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	text := strings.ToLower(err.Error())
	switch {
	case strings.Contains(text, "429"),
		strings.Contains(text, "rate limit"),
		strings.Contains(text, "too many requests"):
		return KindRateLimited
	case strings.Contains(text, "timeout"),
		strings.Contains(text, "timed out"),
		strings.Contains(text, "deadline exceeded"):
		return KindTimeout
	case strings.Contains(text, "active response"),
		strings.Contains(text, "session not initialized"),
		strings.Contains(text, "invalid session state"):
		return KindProtocol
	case strings.Contains(text, "connection closed"),
		strings.Contains(text, "connection refused"),
		strings.Contains(text, "connection reset"),
		strings.Contains(text, "broken pipe"),
		strings.Contains(text, "unexpected eof"),
		strings.Contains(text, "use of closed network connection"):
		return KindConnection
	case strings.Contains(text, "500"),
		strings.Contains(text, "502"),
		strings.Contains(text, "503"),
		strings.Contains(text, "internal server error"),
		strings.Contains(text, "server_error"),
		strings.Contains(text, "bad gateway"),
		strings.Contains(text, "model_not_found"):
		return KindModelUnavailable
	}
	return KindUnknown
}

// KindOf returns the kind of err, or KindUnknown when err carries none.
func KindOf(err error) ErrorKind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return KindUnknown
}

// FallbackEligible reports whether a stream-channel failure should trigger
// a retry on the batch channel. Connection loss, response timeouts and
// stream protocol violations are recoverable that way; everything else
// would fail identically on either channel.
func FallbackEligible(err error) bool {
	switch KindOf(err) {
	case KindConnection, KindTimeout, KindProtocol:
		return true
	}
	return false
}
