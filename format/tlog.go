package format

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// tlogTimestampSize is the size of the timestamp prefixing each tlog record
const tlogTimestampSize = 8

// TlogLayout is the legacy ground-station layout: repeated
// {timestamp_us u64, MAVLink message} records with no file header.
type TlogLayout struct {
	dec MessageDecoder
}

// NewTlogLayout returns the tlog layout. dec is required for decoding.
func NewTlogLayout(dec MessageDecoder) TlogLayout {
	return TlogLayout{dec: dec}
}

func (TlogLayout) MaxEntrySize() int { return tlogTimestampSize + MaxMessageSize }

func (TlogLayout) Normalize(e Entry) Entry {
	e.Type = EntryMavlink
	return e
}

func (TlogLayout) Append(dst []byte, e Entry) ([]byte, error) {
	if e.Type != EntryMavlink {
		return dst, errors.WithMessagef(ErrTypeNotAllowed, "%s entry in tlog file", e.Type)
	}
	dst = binary.LittleEndian.AppendUint64(dst, e.TimestampUs)
	return append(dst, e.Payload...), nil
}

func (l TlogLayout) Decode(b []byte) (Entry, int, error) {
	e := Entry{Type: EntryMavlink}
	if len(b) < tlogTimestampSize {
		return e, 0, ErrShortBuffer
	}
	if l.dec == nil {
		return e, 0, ErrNoDecoder
	}
	e.TimestampUs = binary.LittleEndian.Uint64(b)
	n, err := l.dec.Decode(b[tlogTimestampSize:])
	if err != nil {
		if isShort(err) {
			return e, 0, ErrShortBuffer
		}
		return e, 0, errors.WithMessage(ErrInvalidMessage, err.Error())
	}
	e.Payload = b[tlogTimestampSize : tlogTimestampSize+n]
	return e, tlogTimestampSize + n, nil
}
