package format

import (
	"encoding/binary"
	"math"
	"unicode/utf8"

	"github.com/pkg/errors"
)

// MaxMessageSize bounds one MAVLink frame: v2 header, 255 byte payload,
// checksum and signature.
const MaxMessageSize = 280

// MessageDecoder measures one embedded MAVLink message. Decode returns the
// number of bytes the message at the start of b occupies. When b holds only a
// prefix of a message it must return an error matching io.ErrUnexpectedEOF or
// ErrShortBuffer; any other error marks b as not starting with a message.
type MessageDecoder interface {
	Decode(b []byte) (int, error)
}

// EntryType is the type byte of an entry.
type EntryType uint8

const (
	EntryRaw     EntryType = 0
	EntryMavlink EntryType = 1
	EntryText    EntryType = 2
)

func (t EntryType) Valid() bool { return t <= EntryText }

func (t EntryType) String() string {
	switch t {
	case EntryRaw:
		return "raw"
	case EntryMavlink:
		return "mavlink"
	case EntryText:
		return "text"
	default:
		return "unknown"
	}
}

// Entry is one logged record. Fields not carried by a file's shape decode as zero.
type Entry struct {
	Type        EntryType
	TimestampUs uint64
	Payload     []byte
}

// Layout is an entry encoding: the flag-selected .mav shape or the tlog layout.
type Layout interface {
	// Append encodes e onto dst.
	Append(dst []byte, e Entry) ([]byte, error)
	// Decode decodes the entry at the start of b. The returned payload aliases b.
	Decode(b []byte) (Entry, int, error)
	// Normalize returns e as it would read back after encoding.
	Normalize(e Entry) Entry
	// MaxEntrySize bounds the encoded size of a single entry.
	MaxEntrySize() int
}

// Shape is the entry layout selected by a file's flags. It is computed once
// per file and used for every entry in it.
type Shape struct {
	flags       Flags
	typed       bool
	timestamped bool
	sized       bool
	headerSize  int
	dec         MessageDecoder
}

// NewShape derives the entry shape for flags. dec measures embedded messages;
// it is required to decode MAVLINK_ONLY files and, when set, validates the
// payload of MAVLINK entries in sized files.
func NewShape(flags Flags, dec MessageDecoder) Shape {
	s := Shape{
		flags:       flags,
		typed:       !flags.MavlinkOnly(),
		timestamped: !flags.NotTimestamped(),
		sized:       !flags.MavlinkOnly(),
		dec:         dec,
	}
	if s.typed {
		s.headerSize++
	}
	if s.timestamped {
		s.headerSize += 8
	}
	if s.sized {
		s.headerSize += 2
	}
	return s
}

func (s Shape) Flags() Flags { return s.flags }

// HeaderSize is the number of bytes preceding each payload.
func (s Shape) HeaderSize() int { return s.headerSize }

func (s Shape) MaxEntrySize() int {
	if s.sized {
		return s.headerSize + math.MaxUint16
	}
	return s.headerSize + MaxMessageSize
}

// Normalize drops the fields the shape does not store.
func (s Shape) Normalize(e Entry) Entry {
	if !s.typed {
		e.Type = EntryMavlink
	}
	if !s.timestamped {
		e.TimestampUs = 0
	}
	return e
}

// EncodedSize is the on-disk size of e.
func (s Shape) EncodedSize(e Entry) int { return s.headerSize + len(e.Payload) }

func (s Shape) Append(dst []byte, e Entry) ([]byte, error) {
	if !s.typed && e.Type != EntryMavlink {
		return dst, errors.WithMessagef(ErrTypeNotAllowed, "%s entry in %s file", e.Type, s.flags)
	}
	if !e.Type.Valid() {
		return dst, errors.WithMessagef(ErrUnknownEntryType, "%d", e.Type)
	}
	if s.sized && len(e.Payload) > math.MaxUint16 {
		return dst, errors.WithMessagef(ErrPayloadTooLarge, "%d bytes", len(e.Payload))
	}

	if s.typed {
		dst = append(dst, byte(e.Type))
	}
	if s.timestamped {
		dst = binary.LittleEndian.AppendUint64(dst, e.TimestampUs)
	}
	if s.sized {
		dst = binary.LittleEndian.AppendUint16(dst, uint16(len(e.Payload)))
	}
	return append(dst, e.Payload...), nil
}

func (s Shape) Decode(b []byte) (Entry, int, error) {
	var e Entry
	off := 0

	if s.typed {
		if len(b) < 1 {
			return e, 0, ErrShortBuffer
		}
		e.Type = EntryType(b[0])
		if !e.Type.Valid() {
			return e, 0, errors.WithMessagef(ErrUnknownEntryType, "%d", b[0])
		}
		off++
	} else {
		e.Type = EntryMavlink
	}

	if s.timestamped {
		if len(b) < off+8 {
			return e, 0, ErrShortBuffer
		}
		e.TimestampUs = binary.LittleEndian.Uint64(b[off:])
		off += 8
	}

	if !s.sized {
		if s.dec == nil {
			return e, 0, ErrNoDecoder
		}
		n, err := s.dec.Decode(b[off:])
		if err != nil {
			if isShort(err) {
				return e, 0, ErrShortBuffer
			}
			return e, 0, errors.WithMessage(ErrInvalidMessage, err.Error())
		}
		e.Payload = b[off : off+n]
		return e, off + n, nil
	}

	if len(b) < off+2 {
		return e, 0, ErrShortBuffer
	}
	size := int(binary.LittleEndian.Uint16(b[off:]))
	off += 2
	if len(b) < off+size {
		return e, 0, ErrShortBuffer
	}
	e.Payload = b[off : off+size]

	if err := s.checkPayload(e); err != nil {
		return e, 0, err
	}
	return e, off + size, nil
}

// checkPayload validates a sized payload against its declared type
func (s Shape) checkPayload(e Entry) error {
	switch e.Type {
	case EntryText:
		if !utf8.Valid(e.Payload) {
			return ErrInvalidText
		}
	case EntryMavlink:
		if s.dec == nil {
			return nil
		}
		n, err := s.dec.Decode(e.Payload)
		if err != nil {
			return errors.WithMessage(ErrInvalidMessage, err.Error())
		}
		if n != len(e.Payload) {
			return errors.WithMessagef(ErrSizeMismatch, "message %d bytes, entry %d bytes", n, len(e.Payload))
		}
	}
	return nil
}

// EncodeEntry encodes e with the shape selected by flags.
func EncodeEntry(flags Flags, e Entry) ([]byte, error) {
	s := NewShape(flags, nil)
	return s.Append(make([]byte, 0, s.EncodedSize(e)), e)
}

// DecodeEntry decodes the entry at the start of b with the shape selected by flags.
func DecodeEntry(flags Flags, dec MessageDecoder, b []byte) (Entry, int, error) {
	return NewShape(flags, dec).Decode(b)
}
