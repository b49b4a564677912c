// Package frame implements MAVLink v1 and v2 packet framing: measuring,
// checking and building frames without interpreting message payloads.
// Decoder satisfies format.MessageDecoder.
package frame

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// Start markers
const (
	MagicV1 byte = 0xfe
	MagicV2 byte = 0xfd
)

// Version is the MAVLink protocol version of a frame.
type Version uint8

const (
	V1 Version = 1
	V2 Version = 2
)

const (
	headerSizeV1   = 6
	headerSizeV2   = 10
	checksumSize   = 2
	signatureSize  = 13
	MaxPayloadSize = 255

	// IncompatSigned marks a v2 frame carrying a signature
	IncompatSigned byte = 0x01
)

var (
	ErrBadMagic       = errors.New("frame: bad start marker")
	ErrIncompatFlags  = errors.New("frame: unsupported incompatibility flags")
	ErrChecksum       = errors.New("frame: checksum mismatch")
	ErrUnknownMessage = errors.New("frame: no crc extra for message id")
	ErrPayloadSize    = errors.New("frame: payload exceeds 255 bytes")
	ErrMessageID      = errors.New("frame: message id out of range for version")
)

// Frame is one MAVLink packet. Signing is not produced by MarshalBinary;
// parsed signed frames keep their signature in Signature.
type Frame struct {
	Version       Version
	IncompatFlags byte
	CompatFlags   byte
	Sequence      byte
	SystemID      byte
	ComponentID   byte
	MessageID     uint32
	Payload       []byte
	Checksum      uint16
	Signature     []byte

	// CRCExtra seeds the checksum when marshaling
	CRCExtra byte
}

// MarshalBinary encodes f, computing its checksum. v2 payloads have trailing
// zero bytes truncated as the protocol requires.
func (f Frame) MarshalBinary() ([]byte, error) {
	if len(f.Payload) > MaxPayloadSize {
		return nil, errors.WithMessagef(ErrPayloadSize, "%d bytes", len(f.Payload))
	}

	var b []byte
	switch f.Version {
	case V1:
		if f.MessageID > 0xff {
			return nil, errors.WithMessagef(ErrMessageID, "%d", f.MessageID)
		}
		b = make([]byte, 0, headerSizeV1+len(f.Payload)+checksumSize)
		b = append(b, MagicV1, byte(len(f.Payload)), f.Sequence, f.SystemID, f.ComponentID, byte(f.MessageID))
		b = append(b, f.Payload...)
	case V2:
		if f.MessageID > 0xffffff {
			return nil, errors.WithMessagef(ErrMessageID, "%d", f.MessageID)
		}
		payload := truncateZeros(f.Payload)
		b = make([]byte, 0, headerSizeV2+len(payload)+checksumSize)
		b = append(b, MagicV2, byte(len(payload)), f.IncompatFlags&^IncompatSigned, f.CompatFlags,
			f.Sequence, f.SystemID, f.ComponentID,
			byte(f.MessageID), byte(f.MessageID>>8), byte(f.MessageID>>16))
		b = append(b, payload...)
	default:
		return nil, errors.Errorf("frame: unknown version %d", f.Version)
	}

	return binary.LittleEndian.AppendUint16(b, Checksum(b[1:], f.CRCExtra)), nil
}

// truncateZeros drops trailing zero bytes, keeping at least one byte
func truncateZeros(p []byte) []byte {
	n := len(p)
	for n > 1 && p[n-1] == 0 {
		n--
	}
	return p[:n]
}

// Parse splits the frame at the start of b into its fields without checking
// the checksum. Payload and Signature alias b.
func Parse(b []byte) (Frame, int, error) {
	var f Frame
	n, err := frameLength(b)
	if err != nil {
		return f, 0, err
	}

	var hdr int
	if b[0] == MagicV1 {
		hdr = headerSizeV1
		f.Version = V1
		f.Sequence, f.SystemID, f.ComponentID = b[2], b[3], b[4]
		f.MessageID = uint32(b[5])
	} else {
		hdr = headerSizeV2
		f.Version = V2
		f.IncompatFlags, f.CompatFlags = b[2], b[3]
		f.Sequence, f.SystemID, f.ComponentID = b[4], b[5], b[6]
		f.MessageID = uint32(b[7]) | uint32(b[8])<<8 | uint32(b[9])<<16
	}
	plen := int(b[1])
	f.Payload = b[hdr : hdr+plen]
	f.Checksum = binary.LittleEndian.Uint16(b[hdr+plen:])
	if f.IncompatFlags&IncompatSigned != 0 {
		f.Signature = b[hdr+plen+checksumSize : n]
	}
	return f, n, nil
}

// frameLength returns the length of the frame starting at b[0]
func frameLength(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, io.ErrUnexpectedEOF
	}
	switch b[0] {
	case MagicV1:
		if len(b) < 2 {
			return 0, io.ErrUnexpectedEOF
		}
		n := headerSizeV1 + int(b[1]) + checksumSize
		if len(b) < n {
			return 0, io.ErrUnexpectedEOF
		}
		return n, nil
	case MagicV2:
		if len(b) < 3 {
			return 0, io.ErrUnexpectedEOF
		}
		if b[2]&^IncompatSigned != 0 {
			return 0, errors.WithMessagef(ErrIncompatFlags, "0x%02x", b[2])
		}
		n := headerSizeV2 + int(b[1]) + checksumSize
		if b[2]&IncompatSigned != 0 {
			n += signatureSize
		}
		if len(b) < n {
			return 0, io.ErrUnexpectedEOF
		}
		return n, nil
	default:
		return 0, errors.WithMessagef(ErrBadMagic, "0x%02x", b[0])
	}
}
