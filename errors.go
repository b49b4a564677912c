package mavlog

import (
	"errors"
	"fmt"

	"github.com/lixenwraith/mavlog/format"
)

var (
	ErrClosed          = errors.New("mavlog: logger closed")
	ErrMavlinkOnly     = errors.New("mavlog: logger accepts only mavlink messages")
	ErrDiskFull        = errors.New("mavlog: free disk space below minimum")
	ErrPayloadTooLarge = format.ErrPayloadTooLarge
	ErrInvalidMessage  = format.ErrInvalidMessage
	ErrInvalidText     = format.ErrInvalidText
)

// ConfigError reports an invalid configuration value. It is returned before
// any file is touched.
type ConfigError struct {
	Key string
	Msg string
}

func (e *ConfigError) Error() string {
	if e.Key == "" {
		return "mavlog: invalid configuration: " + e.Msg
	}
	return fmt.Sprintf("mavlog: invalid configuration %s: %s", e.Key, e.Msg)
}

func configErrorf(key, format string, args ...any) error {
	return &ConfigError{Key: key, Msg: fmt.Sprintf(format, args...)}
}

// IOError wraps a file system failure. StateUnknown is set when the failure
// happened after bytes of the current record may have reached the active
// file; that record's durability is unknown and the caller may close and
// start a fresh logger.
type IOError struct {
	Op           string
	Path         string
	Err          error
	StateUnknown bool
}

func (e *IOError) Error() string {
	return fmt.Sprintf("mavlog: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// EntryError is one undecodable byte yielded under the lenient policy. The
// byte is surfaced as a raw fragment of unknown boundary and the reader moves
// on to the next byte.
type EntryError struct {
	Path   string
	Offset int64
	Raw    []byte
	Err    error
}

func (e *EntryError) Error() string {
	return fmt.Sprintf("mavlog: corrupt entry at %s:%d: %v", e.Path, e.Offset, e.Err)
}

func (e *EntryError) Unwrap() error { return e.Err }

// CorruptionError ends a stream read under the strict policy. Offset is the
// first byte that could not be decoded.
type CorruptionError struct {
	Path   string
	Offset int64
	Err    error
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("mavlog: stream corrupt from %s:%d: %v", e.Path, e.Offset, e.Err)
}

func (e *CorruptionError) Unwrap() error { return e.Err }

// FileError reports a session file that could not be opened or whose header
// was unusable.
type FileError struct {
	Path string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("mavlog: unusable file %s: %v", e.Path, e.Err)
}

func (e *FileError) Unwrap() error { return e.Err }

// TruncatedTail describes trailing bytes too short to form an entry, the
// expected result of a crash during a write. It is not an error.
type TruncatedTail struct {
	Path   string
	Offset int64
	Length int
}

// IsRecoverable reports whether a stream can continue after err.
func IsRecoverable(err error) bool {
	var ee *EntryError
	var fe *FileError
	return errors.As(err, &ee) || errors.As(err, &fe)
}
