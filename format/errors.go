package format

import (
	"io"

	"github.com/pkg/errors"
)

// Entry level decode failures. Callers distinguish ErrShortBuffer, which only
// means more input is required, from the remaining malformed-input errors.
var (
	ErrShortBuffer      = errors.New("format: short buffer")
	ErrUnknownEntryType = errors.New("format: unknown entry type")
	ErrInvalidText      = errors.New("format: text payload is not valid utf-8")
	ErrInvalidMessage   = errors.New("format: payload is not a single mavlink message")
	ErrSizeMismatch     = errors.New("format: message length does not match entry size")
	ErrTypeNotAllowed   = errors.New("format: entry type not allowed by file flags")
	ErrPayloadTooLarge  = errors.New("format: payload exceeds entry size field")
	ErrNoDecoder        = errors.New("format: message decoder required")
)

// FormatError reports a malformed file header or definitions block.
// A file that fails with a FormatError cannot be streamed.
type FormatError struct {
	Section string // "header" or "definitions"
	Err     error
}

func (e *FormatError) Error() string {
	return "format: invalid " + e.Section + ": " + e.Err.Error()
}

func (e *FormatError) Unwrap() error { return e.Err }

func formatErrorf(section string, cause error, format string, args ...any) error {
	return &FormatError{Section: section, Err: errors.WithMessagef(cause, format, args...)}
}

// isShort reports whether a decoder error means the input ended inside a message.
func isShort(err error) bool {
	return errors.Is(err, ErrShortBuffer) || errors.Is(err, io.ErrUnexpectedEOF)
}
