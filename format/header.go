// Package format encodes and decodes the mavlog binary file layout: a fixed
// file header, a message definitions block and a sequence of entries whose
// shape is selected by the header's format flags. The legacy tlog layout is
// supported as a second, header-less entry layout.
//
// All functions are pure and operate on byte slices; multi-byte integers are
// little-endian, matching the MAVLink wire convention.
package format

import (
	"encoding/binary"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Layout sizes
const (
	HeaderSize     = 62
	TextFieldSize  = 32
	DefinitionSize = 46 // fixed part, payload follows
	PreambleSize   = HeaderSize + DefinitionSize
)

// Format versions
const (
	FormatVersionCustom  uint32 = 0
	FormatVersion1       uint32 = 1
	CurrentFormatVersion        = FormatVersion1
)

// Flags is the format_flags bitmask stored in the file header.
type Flags uint16

const (
	FlagMavlinkOnly    Flags = 1 << 0 // entries are bare MAVLink messages
	FlagNotTimestamped Flags = 1 << 1 // entries carry no timestamp
	knownFlags               = FlagMavlinkOnly | FlagNotTimestamped
)

func (f Flags) MavlinkOnly() bool    { return f&FlagMavlinkOnly != 0 }
func (f Flags) NotTimestamped() bool { return f&FlagNotTimestamped != 0 }

// Unknown returns flag bits this package does not interpret.
func (f Flags) Unknown() Flags { return f &^ knownFlags }

func (f Flags) String() string {
	if f == 0 {
		return "0"
	}
	var parts []string
	if f.MavlinkOnly() {
		parts = append(parts, "MAVLINK_ONLY")
	}
	if f.NotTimestamped() {
		parts = append(parts, "NOT_TIMESTAMPED")
	}
	if u := f.Unknown(); u != 0 {
		parts = append(parts, fmt.Sprintf("0x%04X", uint16(u)))
	}
	return strings.Join(parts, "|")
}

// FileHeader is the fixed 62 byte structure at offset 0 of every .mav/.bin file.
type FileHeader struct {
	UUID             uuid.UUID
	TimestampUs      uint64 // session start, unix microseconds
	SrcApplicationID string // at most 32 bytes on disk
	FormatVersion    uint32
	Flags            Flags
}

// KnownVersion reports whether the header's format version is one this package
// was written against. Version 0 marks custom payloads and is accepted.
func (h FileHeader) KnownVersion() bool {
	return h.FormatVersion == FormatVersionCustom || h.FormatVersion == FormatVersion1
}

// EncodeHeader packs h. SrcApplicationID is truncated to 32 bytes at a rune boundary.
func EncodeHeader(h FileHeader) [HeaderSize]byte {
	var b [HeaderSize]byte
	copy(b[0:16], h.UUID[:])
	binary.LittleEndian.PutUint64(b[16:24], h.TimestampUs)
	putText(b[24:56], h.SrcApplicationID)
	binary.LittleEndian.PutUint32(b[56:60], h.FormatVersion)
	binary.LittleEndian.PutUint16(b[60:62], uint16(h.Flags))
	return b
}

// DecodeHeader unpacks the first HeaderSize bytes of b.
func DecodeHeader(b []byte) (FileHeader, error) {
	var h FileHeader
	if len(b) < HeaderSize {
		return h, formatErrorf("header", ErrShortBuffer, "need %d bytes, have %d", HeaderSize, len(b))
	}
	copy(h.UUID[:], b[0:16])
	h.TimestampUs = binary.LittleEndian.Uint64(b[16:24])
	h.SrcApplicationID = readText(b[24:56])
	h.FormatVersion = binary.LittleEndian.Uint32(b[56:60])
	h.Flags = Flags(binary.LittleEndian.Uint16(b[60:62]))
	return h, nil
}

// TruncateText shortens s to at most TextFieldSize bytes without splitting a rune.
func TruncateText(s string) string {
	if len(s) <= TextFieldSize {
		return s
	}
	cut := TextFieldSize
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// putText writes s NUL padded into dst
func putText(dst []byte, s string) {
	copy(dst, TruncateText(s))
}

// readText returns the bytes of a NUL padded field up to the first NUL
func readText(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
