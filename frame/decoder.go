package frame

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// Decoder measures MAVLink frames. Without a CRC extra table it checks only
// framing; with one it verifies the checksum of every message it knows.
// Messages missing from the table pass on framing alone unless
// WithUnknownRejected is set.
type Decoder struct {
	crcExtra      map[uint32]byte
	rejectUnknown bool
}

// Option configures a Decoder.
type Option func(*Decoder)

// WithCRCExtra enables checksum verification using the dialect's CRC extra
// bytes, keyed by message id.
func WithCRCExtra(table map[uint32]byte) Option {
	return func(d *Decoder) {
		d.crcExtra = table
	}
}

// WithUnknownRejected makes the decoder reject message ids absent from the
// CRC extra table instead of accepting them on framing alone.
func WithUnknownRejected() Option {
	return func(d *Decoder) {
		d.rejectUnknown = true
	}
}

// NewDecoder creates a Decoder.
func NewDecoder(opts ...Option) *Decoder {
	d := &Decoder{}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Decode returns the size of the frame at the start of b. It returns
// io.ErrUnexpectedEOF when b ends inside the frame.
func (d *Decoder) Decode(b []byte) (int, error) {
	n, err := frameLength(b)
	if err != nil {
		return 0, err
	}
	if d.crcExtra == nil {
		return n, nil
	}

	hdr := headerSizeV1
	msgID := uint32(b[5])
	if b[0] == MagicV2 {
		hdr = headerSizeV2
		msgID = uint32(b[7]) | uint32(b[8])<<8 | uint32(b[9])<<16
	}

	extra, ok := d.crcExtra[msgID]
	if !ok {
		if d.rejectUnknown {
			return 0, errors.WithMessagef(ErrUnknownMessage, "%d", msgID)
		}
		return n, nil
	}

	end := hdr + int(b[1])
	want := binary.LittleEndian.Uint16(b[end:])
	if got := Checksum(b[1:end], extra); got != want {
		return 0, errors.WithMessagef(ErrChecksum, "message %d: got 0x%04x, want 0x%04x", msgID, got, want)
	}
	return n, nil
}
