package miniredis

import "github.com/pkg/errors"

// Sentinel errors checked with errors.Is throughout the package.
var (
	// ErrIncomplete means a frame cursor ran off the end of the buffered
	// bytes before finishing a frame; the caller should read more and retry.
	ErrIncomplete = errors.New("miniredis: incomplete frame")

	// ErrEndOfStream means Parse.next was called with no remaining frames.
	ErrEndOfStream = errors.New("miniredis: end of command stream")

	// ErrConnectionReset means the peer went away in the middle of a frame,
	// or a response was expected but the socket was already closed.
	ErrConnectionReset = errors.New("miniredis: connection reset by peer")
)

// ProtocolError reports malformed bytes on the wire: a bad type byte, a
// non-UTF-8 string, an unparsable length, or a command that doesn't match
// its declared shape.
type ProtocolError struct {
	msg string
}

func (e *ProtocolError) Error() string { return "miniredis: protocol error: " + e.msg }

func newProtocolError(format string, args ...interface{}) error {
	return &ProtocolError{msg: errors.Errorf(format, args...).Error()}
}
