package frame

import (
	"github.com/bluenviron/gomavlib/v3/pkg/x25"
)

// Checksum computes the frame checksum over the bytes following the start
// marker, finished with the message's CRC extra byte.
func Checksum(afterMagic []byte, crcExtra byte) uint16 {
	h := x25.New()
	h.Write(afterMagic)
	h.Write([]byte{crcExtra})
	return h.Sum16()
}
