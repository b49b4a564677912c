// FILE: lixenwraith/mavlog/render/render.go
// Package render turns decoded log entries, inline read errors and truncated
// tails into human or machine readable lines.
package render

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/davecgh/go-spew/spew"

	"github.com/lixenwraith/mavlog"
	"github.com/lixenwraith/mavlog/format"
	"github.com/lixenwraith/mavlog/frame"
)

// Format selects the output layout
type Format string

const (
	FormatTxt  Format = "txt"  // one key=value line per entry
	FormatJSON Format = "json" // one JSON object per line
	FormatHex  Format = "hex"  // summary line followed by a hex dump of the payload
	FormatDump Format = "dump" // spew dump of the decoded entry, for debugging
)

// ParseFormat validates a format name
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatTxt, FormatJSON, FormatHex, FormatDump:
		return f, nil
	case "":
		return FormatTxt, nil
	default:
		return "", fmt.Errorf("invalid format '%s' (use txt, json, hex or dump)", s)
	}
}

// Renderer formats entries into a reused buffer. It is not safe for
// concurrent use; the returned slice is valid until the next call.
type Renderer struct {
	format          Format
	timestampFormat string
	showPath        bool
	sanitizer       *Sanitizer
	dumper          *spew.ConfigState
	buf             []byte
}

// New creates a renderer for the given format with a txt sanitizer
func New(f Format) *Renderer {
	return &Renderer{
		format:          f,
		timestampFormat: "2006-01-02T15:04:05.000000Z07:00",
		sanitizer:       NewSanitizer().Policy(PolicyTxt),
		dumper: &spew.ConfigState{
			Indent:                  " ",
			MaxDepth:                10,
			DisablePointerAddresses: true,
			DisableCapacities:       true,
			SortKeys:                true,
		},
		buf: make([]byte, 0, 512),
	}
}

// TimestampFormat sets the layout for entry timestamps
func (r *Renderer) TimestampFormat(layout string) *Renderer {
	if layout != "" {
		r.timestampFormat = layout
	}
	return r
}

// ShowPath includes the source file of every entry, useful for sessions
func (r *Renderer) ShowPath(show bool) *Renderer {
	r.showPath = show
	return r
}

// Sanitizer replaces the sanitizer applied to TEXT payloads in txt output
func (r *Renderer) Sanitizer(s *Sanitizer) *Renderer {
	if s != nil {
		r.sanitizer = s
	}
	return r
}

// Message is the decoded view of a MAVLINK entry
type Message struct {
	Version     frame.Version
	Sequence    byte
	SystemID    byte
	ComponentID byte
	MessageID   uint32
	Length      int
	Signed      bool
}

// view is what the dump format prints for an entry
type view struct {
	Path        string
	Offset      int64
	Type        string
	TimestampUs uint64
	Time        string
	Message     *Message
	Text        string
	Payload     []byte
}

// parseMessage decodes the frame header of a logged message. Messages that do
// not parse are shown by their raw bytes only.
func parseMessage(payload []byte) (*Message, error) {
	f, _, err := frame.Parse(payload)
	if err != nil {
		return nil, err
	}
	return &Message{
		Version:     f.Version,
		Sequence:    f.Sequence,
		SystemID:    f.SystemID,
		ComponentID: f.ComponentID,
		MessageID:   f.MessageID,
		Length:      len(f.Payload),
		Signed:      len(f.Signature) > 0,
	}, nil
}

// timestamp formats an entry time; untimestamped entries carry 0
func (r *Renderer) timestamp(us uint64) string {
	if us == 0 {
		return "-"
	}
	return time.UnixMicro(int64(us)).UTC().Format(r.timestampFormat)
}

// Entry renders one decoded entry, newline terminated
func (r *Renderer) Entry(e mavlog.Entry) []byte {
	r.buf = r.buf[:0]

	switch r.format {
	case FormatJSON:
		r.entryJSON(e)
	case FormatHex:
		r.entryTxt(e)
		r.buf = append(r.buf, '\n')
		r.buf = append(r.buf, hex.Dump(e.Payload)...)
		return r.buf
	case FormatDump:
		r.entryDump(e)
	default:
		r.entryTxt(e)
	}

	return append(r.buf, '\n')
}

func (r *Renderer) entryTxt(e mavlog.Entry) {
	r.buf = append(r.buf, r.timestamp(e.TimestampUs)...)
	r.buf = append(r.buf, ' ')
	r.buf = append(r.buf, e.Type.String()...)
	if r.showPath {
		r.buf = append(r.buf, " file="...)
		r.buf = appendTxtString(r.buf, r.sanitizer, e.Path)
	}
	r.buf = append(r.buf, " offset="...)
	r.buf = strconv.AppendInt(r.buf, e.Offset, 10)

	switch e.Type {
	case format.EntryMavlink:
		m, err := parseMessage(e.Payload)
		if err != nil {
			r.buf = append(r.buf, " len="...)
			r.buf = strconv.AppendInt(r.buf, int64(len(e.Payload)), 10)
			r.buf = append(r.buf, " unparsed="...)
			r.buf = appendTxtString(r.buf, r.sanitizer, err.Error())
			return
		}
		r.buf = fmt.Appendf(r.buf, " v%d seq=%d sys=%d comp=%d msg=%d len=%d",
			m.Version, m.Sequence, m.SystemID, m.ComponentID, m.MessageID, m.Length)
		if m.Signed {
			r.buf = append(r.buf, " signed"...)
		}

	case format.EntryText:
		r.buf = append(r.buf, " text="...)
		r.buf = appendTxtString(r.buf, r.sanitizer, string(e.Payload))

	default:
		r.buf = append(r.buf, " len="...)
		r.buf = strconv.AppendInt(r.buf, int64(len(e.Payload)), 10)
		if r.format != FormatHex && len(e.Payload) > 0 {
			r.buf = append(r.buf, " data="...)
			r.buf = hex.AppendEncode(r.buf, e.Payload)
		}
	}
}

func (r *Renderer) entryJSON(e mavlog.Entry) {
	r.buf = append(r.buf, `{"type":`...)
	r.buf = appendJSONString(r.buf, e.Type.String())
	if r.showPath {
		r.buf = append(r.buf, `,"file":`...)
		r.buf = appendJSONString(r.buf, e.Path)
	}
	r.buf = append(r.buf, `,"offset":`...)
	r.buf = strconv.AppendInt(r.buf, e.Offset, 10)
	r.buf = append(r.buf, `,"timestamp_us":`...)
	r.buf = strconv.AppendUint(r.buf, e.TimestampUs, 10)
	if e.TimestampUs != 0 {
		r.buf = append(r.buf, `,"time":`...)
		r.buf = appendJSONString(r.buf, r.timestamp(e.TimestampUs))
	}

	switch e.Type {
	case format.EntryMavlink:
		if m, err := parseMessage(e.Payload); err == nil {
			r.buf = fmt.Appendf(r.buf, `,"message":{"version":%d,"seq":%d,"sys":%d,"comp":%d,"msgid":%d,"len":%d,"signed":%t}`,
				m.Version, m.Sequence, m.SystemID, m.ComponentID, m.MessageID, m.Length, m.Signed)
		}
		r.buf = append(r.buf, `,"data":"`...)
		r.buf = hex.AppendEncode(r.buf, e.Payload)
		r.buf = append(r.buf, '"')

	case format.EntryText:
		r.buf = append(r.buf, `,"text":`...)
		r.buf = appendJSONString(r.buf, string(e.Payload))

	default:
		r.buf = append(r.buf, `,"data":"`...)
		r.buf = hex.AppendEncode(r.buf, e.Payload)
		r.buf = append(r.buf, '"')
	}
	r.buf = append(r.buf, '}')
}

func (r *Renderer) entryDump(e mavlog.Entry) {
	v := view{
		Path:        e.Path,
		Offset:      e.Offset,
		Type:        e.Type.String(),
		TimestampUs: e.TimestampUs,
		Time:        r.timestamp(e.TimestampUs),
		Payload:     e.Payload,
	}
	switch e.Type {
	case format.EntryMavlink:
		v.Message, _ = parseMessage(e.Payload)
	case format.EntryText:
		v.Text = string(e.Payload)
	}

	var b bytes.Buffer
	r.dumper.Fdump(&b, v)
	r.buf = append(r.buf, bytes.TrimSpace(b.Bytes())...)
}

// Error renders an inline read error such as *mavlog.EntryError
func (r *Renderer) Error(err error) []byte {
	r.buf = r.buf[:0]

	kind, path, offset := "error", "", int64(-1)
	var raw []byte
	var ee *mavlog.EntryError
	var ce *mavlog.CorruptionError
	var fe *mavlog.FileError
	switch {
	case errors.As(err, &ee):
		kind, path, offset, raw = "corrupt", ee.Path, ee.Offset, ee.Raw
	case errors.As(err, &ce):
		kind, path, offset = "corruption", ce.Path, ce.Offset
	case errors.As(err, &fe):
		kind, path = "file_error", fe.Path
	}

	if r.format == FormatJSON {
		r.buf = append(r.buf, `{"error":`...)
		r.buf = appendJSONString(r.buf, kind)
		if path != "" {
			r.buf = append(r.buf, `,"file":`...)
			r.buf = appendJSONString(r.buf, path)
		}
		if offset >= 0 {
			r.buf = append(r.buf, `,"offset":`...)
			r.buf = strconv.AppendInt(r.buf, offset, 10)
		}
		if len(raw) > 0 {
			r.buf = append(r.buf, `,"data":"`...)
			r.buf = hex.AppendEncode(r.buf, raw)
			r.buf = append(r.buf, '"')
		}
		r.buf = append(r.buf, `,"message":`...)
		r.buf = appendJSONString(r.buf, err.Error())
		return append(r.buf, '}', '\n')
	}

	r.buf = append(r.buf, "! "...)
	r.buf = append(r.buf, kind...)
	if path != "" && (r.showPath || kind == "file_error") {
		r.buf = append(r.buf, " file="...)
		r.buf = appendTxtString(r.buf, r.sanitizer, path)
	}
	if offset >= 0 {
		r.buf = append(r.buf, " offset="...)
		r.buf = strconv.AppendInt(r.buf, offset, 10)
	}
	if len(raw) > 0 {
		r.buf = append(r.buf, " data="...)
		r.buf = hex.AppendEncode(r.buf, raw)
	}
	r.buf = append(r.buf, " err="...)
	r.buf = appendTxtString(r.buf, r.sanitizer, err.Error())
	return append(r.buf, '\n')
}

// Tail renders a truncated tail notice
func (r *Renderer) Tail(t mavlog.TruncatedTail) []byte {
	r.buf = r.buf[:0]
	if r.format == FormatJSON {
		r.buf = append(r.buf, `{"truncated_tail":{"file":`...)
		r.buf = appendJSONString(r.buf, t.Path)
		r.buf = fmt.Appendf(r.buf, `,"offset":%d,"length":%d}}`, t.Offset, t.Length)
		return append(r.buf, '\n')
	}
	r.buf = append(r.buf, "# truncated tail file="...)
	r.buf = appendTxtString(r.buf, r.sanitizer, t.Path)
	r.buf = fmt.Appendf(r.buf, " offset=%d length=%d", t.Offset, t.Length)
	return append(r.buf, '\n')
}
