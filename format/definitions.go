package format

import (
	"encoding/binary"
	"math"
	"strings"

	"github.com/pkg/errors"
)

// PayloadType identifies how the definitions payload describes the message set.
type PayloadType uint16

const (
	PayloadNone PayloadType = 0 // default MAVLink XML for the dialect
	PayloadURLs PayloadType = 1 // comma delimited UTF-8 URLs of XML files
	PayloadXML  PayloadType = 2 // UTF-8 XML document
)

// Default message definition values
const (
	DefaultDialect      = "common"
	DefaultVersionMajor = 2
	DefaultVersionMinor = 0
)

var errPayloadType = errors.New("unknown payload type")

func (p PayloadType) Valid() bool { return p <= PayloadXML }

func (p PayloadType) String() string {
	switch p {
	case PayloadNone:
		return "none"
	case PayloadURLs:
		return "urls"
	case PayloadXML:
		return "xml"
	default:
		return "unknown"
	}
}

// ParsePayloadType maps a configuration string to a PayloadType.
func ParsePayloadType(s string) (PayloadType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return PayloadNone, nil
	case "urls", "comma_urls":
		return PayloadURLs, nil
	case "xml":
		return PayloadXML, nil
	default:
		return 0, errors.Errorf("format: unknown payload type %q (use none, urls or xml)", s)
	}
}

// Definitions is the block that follows the file header and records which
// MAVLink dialect and version the entries were written against.
type Definitions struct {
	VersionMajor uint32
	VersionMinor uint32
	Dialect      string
	PayloadType  PayloadType
	Payload      []byte
}

// DefaultDefinitions describes MAVLink 2 common with no payload.
func DefaultDefinitions() Definitions {
	return Definitions{
		VersionMajor: DefaultVersionMajor,
		VersionMinor: DefaultVersionMinor,
		Dialect:      DefaultDialect,
		PayloadType:  PayloadNone,
	}
}

// Validate checks the payload type against the payload length.
func (d Definitions) Validate() error {
	if !d.PayloadType.Valid() {
		return errors.WithMessagef(errPayloadType, "%d", d.PayloadType)
	}
	if d.PayloadType == PayloadNone && len(d.Payload) != 0 {
		return errors.Errorf("payload type none with %d payload bytes", len(d.Payload))
	}
	if uint64(len(d.Payload)) > math.MaxUint32 {
		return errors.Errorf("payload of %d bytes exceeds size field", len(d.Payload))
	}
	return nil
}

// EncodedSize is the on-disk size of the block including its payload.
func (d Definitions) EncodedSize() int { return DefinitionSize + len(d.Payload) }

// EncodeDefinitions packs d into a new slice.
func EncodeDefinitions(d Definitions) ([]byte, error) {
	if err := d.Validate(); err != nil {
		return nil, &FormatError{Section: "definitions", Err: err}
	}
	b := make([]byte, d.EncodedSize())
	binary.LittleEndian.PutUint32(b[0:4], d.VersionMajor)
	binary.LittleEndian.PutUint32(b[4:8], d.VersionMinor)
	putText(b[8:40], d.Dialect)
	binary.LittleEndian.PutUint16(b[40:42], uint16(d.PayloadType))
	binary.LittleEndian.PutUint32(b[42:46], uint32(len(d.Payload)))
	copy(b[DefinitionSize:], d.Payload)
	return b, nil
}

// DecodeDefinitionsFixed unpacks the fixed part of the block and returns the
// declared payload size, letting a streaming reader bound the payload read.
func DecodeDefinitionsFixed(b []byte) (Definitions, uint32, error) {
	var d Definitions
	if len(b) < DefinitionSize {
		return d, 0, formatErrorf("definitions", ErrShortBuffer, "need %d bytes, have %d", DefinitionSize, len(b))
	}
	d.VersionMajor = binary.LittleEndian.Uint32(b[0:4])
	d.VersionMinor = binary.LittleEndian.Uint32(b[4:8])
	d.Dialect = readText(b[8:40])
	d.PayloadType = PayloadType(binary.LittleEndian.Uint16(b[40:42]))
	size := binary.LittleEndian.Uint32(b[42:46])

	if !d.PayloadType.Valid() {
		return d, 0, formatErrorf("definitions", errPayloadType, "%d", d.PayloadType)
	}
	if d.PayloadType == PayloadNone && size != 0 {
		return d, 0, &FormatError{Section: "definitions", Err: errors.Errorf("payload type none with size %d", size)}
	}
	return d, size, nil
}

// DecodeDefinitions unpacks a complete block and reports the bytes consumed.
func DecodeDefinitions(b []byte) (Definitions, int, error) {
	d, size, err := DecodeDefinitionsFixed(b)
	if err != nil {
		return d, 0, err
	}
	end := uint64(DefinitionSize) + uint64(size)
	if uint64(len(b)) < end {
		return d, 0, formatErrorf("definitions", ErrShortBuffer, "payload needs %d bytes, have %d", size, len(b)-DefinitionSize)
	}
	if size > 0 {
		d.Payload = append([]byte(nil), b[DefinitionSize:end]...)
	}
	return d, int(end), nil
}
