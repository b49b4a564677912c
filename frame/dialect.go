package frame

import (
	"sort"
	"strings"
	"sync"

	"github.com/bluenviron/gomavlib/v3/pkg/dialect"
	"github.com/bluenviron/gomavlib/v3/pkg/dialects/ardupilotmega"
	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
	"github.com/bluenviron/gomavlib/v3/pkg/dialects/minimal"
	"github.com/bluenviron/gomavlib/v3/pkg/message"
	"github.com/pkg/errors"
)

// ErrUnknownDialect is returned for a dialect name without a message set
var ErrUnknownDialect = errors.New("frame: unknown dialect")

var dialects = map[string]*dialect.Dialect{
	"minimal":       minimal.Dialect,
	"common":        common.Dialect,
	"ardupilotmega": ardupilotmega.Dialect,
}

var (
	tablesMu sync.Mutex
	tables   = map[string]map[uint32]byte{}
)

// Dialects lists the dialect names with a CRC extra table
func Dialects() []string {
	names := make([]string, 0, len(dialects))
	for name := range dialects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CRCExtraTable returns the CRC extra byte of every message of the named
// dialect, keyed by message id. Tables are built once and shared; callers
// must not modify them.
func CRCExtraTable(name string) (map[uint32]byte, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	d, ok := dialects[name]
	if !ok {
		return nil, errors.WithMessagef(ErrUnknownDialect, "%q", name)
	}

	tablesMu.Lock()
	defer tablesMu.Unlock()
	if t, ok := tables[name]; ok {
		return t, nil
	}

	t := make(map[uint32]byte, len(d.Messages))
	for _, m := range d.Messages {
		rw := &message.ReadWriter{Message: m}
		if err := rw.Initialize(); err != nil {
			return nil, errors.Wrapf(err, "frame: dialect %s message %d", name, m.GetID())
		}
		t[m.GetID()] = rw.CRCExtra()
	}
	tables[name] = t
	return t, nil
}

// CommonCRCExtra returns the CRC extra table of the common dialect
func CommonCRCExtra() map[uint32]byte {
	t, err := CRCExtraTable("common")
	if err != nil {
		panic(err)
	}
	return t
}

// DialectDecoder returns a Decoder that verifies the checksum of every message
// of the named dialect. Unknown names fall back to the common dialect.
func DialectDecoder(name string) *Decoder {
	t, err := CRCExtraTable(name)
	if err != nil {
		t = CommonCRCExtra()
	}
	return NewDecoder(WithCRCExtra(t))
}
