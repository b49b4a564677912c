// FILE: lixenwraith/mavlog/reader.go
package mavlog

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/lixenwraith/mavlog/format"
)

// Policy selects how a Reader reacts to bytes it cannot decode
type Policy int

const (
	// PolicyLenient yields each undecodable byte as an EntryError and
	// continues one byte further on
	PolicyLenient Policy = iota
	// PolicyStrict ends the stream with a CorruptionError
	PolicyStrict
)

func (p Policy) String() string {
	if p == PolicyStrict {
		return PolicyNameStrict
	}
	return PolicyNameLenient
}

// ParsePolicy converts a policy name
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", PolicyNameLenient:
		return PolicyLenient, nil
	case PolicyNameStrict:
		return PolicyStrict, nil
	default:
		return PolicyLenient, fmt.Errorf("invalid policy '%s' (use lenient or strict)", s)
	}
}

// Kind is the on-disk layout of a log file
type Kind int

const (
	KindMav Kind = iota
	KindTlog
)

// KindOf derives the layout from a file name, ignoring a rotation suffix
func KindOf(path string) Kind {
	name := filepath.Base(path)
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		if _, ok := parseSuffix(name[i+1:]); ok {
			name = name[:i]
		}
	}
	if strings.EqualFold(filepath.Ext(name), "."+ExtTlog) {
		return KindTlog
	}
	return KindMav
}

// Entry is a decoded entry with its position in the stream
type Entry struct {
	format.Entry
	Path   string
	Offset int64
}

// Reader decodes the entries of one log file through a bounded window
type Reader struct {
	path    string
	src     io.Reader
	closer  io.Closer
	header  format.FileHeader
	defs    format.Definitions
	layout  format.Layout
	policy  Policy
	diag    *zap.Logger
	metrics *Metrics

	buf    []byte
	start  int   // first unread byte in buf
	end    int   // end of valid data in buf
	offset int64 // file offset of buf[start]
	eof    bool  // src exhausted
	done   bool

	// Largest offset from which entries decode back to back up to EOF with
	// at least one plausible entry among them, -1 when none. Valid once
	// tailScanned is set.
	resyncAt    int64
	tailScanned bool

	tail    *TruncatedTail
	entries uint64
	corrupt uint64
}

// OpenFile opens a log file for reading. Header and definitions failures are
// returned as *format.FormatError; the file is closed in that case.
func OpenFile(path string, opts ...Option) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &IOError{Op: "open", Path: path, Err: err}
	}

	o := newOptions(opts)
	if !o.kindSet {
		o.kind = KindOf(path)
	}

	r, err := newReader(path, f, o)
	if err != nil {
		f.Close()
		return nil, err
	}
	r.closer = f
	return r, nil
}

// NewReader reads a log stream of the given kind from src. name is only used
// in errors and diagnostics.
func NewReader(name string, src io.Reader, kind Kind, opts ...Option) (*Reader, error) {
	o := newOptions(append(opts, WithKind(kind)))
	return newReader(name, src, o)
}

func newReader(path string, src io.Reader, o options) (*Reader, error) {
	r := &Reader{
		path:     path,
		src:      src,
		policy:   o.policy,
		diag:     o.diag,
		metrics:  o.metrics,
		resyncAt: -1,
	}

	if o.kind == KindTlog {
		r.layout = format.NewTlogLayout(o.decoderFor(format.DefaultDialect))
	} else {
		if err := r.readPreamble(&o); err != nil {
			r.metrics.fileFailed()
			return nil, err
		}
	}

	r.buf = make([]byte, 2*r.layout.MaxEntrySize())
	return r, nil
}

// readPreamble consumes the header and the definitions block
func (r *Reader) readPreamble(o *options) error {
	var hb [format.HeaderSize]byte
	if err := r.readFull(hb[:], "header"); err != nil {
		return err
	}
	h, err := format.DecodeHeader(hb[:])
	if err != nil {
		return err
	}
	if !h.KnownVersion() {
		r.diag.Warn("unknown format version",
			zap.String("file", r.path),
			zap.Uint32("format_version", h.FormatVersion),
		)
	}
	if u := h.Flags.Unknown(); u != 0 {
		r.diag.Warn("unknown format flags ignored",
			zap.String("file", r.path),
			zap.Stringer("flags", u),
		)
	}

	var db [format.DefinitionSize]byte
	if err := r.readFull(db[:], "definitions"); err != nil {
		return err
	}
	d, size, err := format.DecodeDefinitionsFixed(db[:])
	if err != nil {
		return err
	}
	if size > maxDefinitionsPayload {
		return &format.FormatError{Section: "definitions", Err: fmt.Errorf("payload of %d bytes exceeds limit", size)}
	}
	if size > 0 {
		d.Payload = make([]byte, size)
		if err := r.readFull(d.Payload, "definitions"); err != nil {
			return err
		}
	}

	r.header = h
	r.defs = d
	r.layout = format.NewShape(h.Flags, o.decoderFor(d.Dialect))
	r.offset = int64(format.HeaderSize + format.DefinitionSize + int(size))
	return nil
}

func (r *Reader) readFull(b []byte, section string) error {
	if _, err := io.ReadFull(r.src, b); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return &format.FormatError{Section: section, Err: format.ErrShortBuffer}
		}
		return &IOError{Op: "read", Path: r.path, Err: err}
	}
	return nil
}

// Header returns the file header. It is zero for tlog files.
func (r *Reader) Header() format.FileHeader { return r.header }

// Definitions returns the message definitions block. It is zero for tlog files.
func (r *Reader) Definitions() format.Definitions { return r.defs }

// Path returns the name the reader was opened with
func (r *Reader) Path() string { return r.path }

// TruncatedTail reports trailing bytes that could not form an entry. It is
// nil until the stream has ended, and nil for files that end cleanly.
func (r *Reader) TruncatedTail() *TruncatedTail { return r.tail }

// Next returns the next entry. At the end of the stream it returns io.EOF.
// Under the lenient policy an undecodable byte is returned as *EntryError and
// the following call resumes one byte later. Under the strict policy the
// first undecodable byte returns *CorruptionError and ends the stream.
func (r *Reader) Next() (Entry, error) {
	if r.done {
		return Entry{}, io.EOF
	}
	if err := r.fill(); err != nil {
		r.done = true
		return Entry{}, err
	}

	data := r.buf[r.start:r.end]
	if len(data) == 0 {
		r.done = true
		return Entry{}, io.EOF
	}

	e, n, err := r.layout.Decode(data)
	if err == nil {
		out := Entry{Entry: e, Path: r.path, Offset: r.offset}
		out.Payload = append([]byte(nil), e.Payload...)
		r.advance(n)
		r.entries++
		r.metrics.read()
		return out, nil
	}

	// The window holds a full entry unless the file ends inside it
	if errors.Is(err, format.ErrShortBuffer) && r.eof && !r.resyncAhead(data) {
		r.tail = &TruncatedTail{Path: r.path, Offset: r.offset, Length: len(data)}
		r.done = true
		r.metrics.truncated()
		r.diag.Info("truncated tail",
			zap.String("file", r.path),
			zap.Int64("offset", r.offset),
			zap.Int("length", len(data)),
		)
		return Entry{}, io.EOF
	}

	off := r.offset
	if r.policy == PolicyStrict {
		r.done = true
		r.corrupt++
		r.metrics.corrupt(1)
		r.diag.Warn("stream corrupt", zap.String("file", r.path), zap.Int64("offset", off), zap.Error(err))
		return Entry{}, &CorruptionError{Path: r.path, Offset: off, Err: err}
	}

	raw := []byte{data[0]}
	r.advance(1)
	r.corrupt++
	r.metrics.corrupt(1)
	r.diag.Debug("corrupt byte", zap.String("file", r.path), zap.Int64("offset", off), zap.Error(err))
	return Entry{}, &EntryError{Path: r.path, Offset: off, Raw: raw, Err: err}
}

// resyncAhead reports whether the rest of the file, data, holds a chain of
// entries that starts after the current offset, decodes back to back up to
// EOF and contains at least one plausible entry. A short decode with such a
// chain behind it is corruption; otherwise it is a truncated tail.
func (r *Reader) resyncAhead(data []byte) bool {
	if !r.tailScanned {
		r.tailScanned = true
		r.resyncAt = -1

		// reach[i]: 0 no chain from i, 1 chain of implausible entries only,
		// 2 chain holding a plausible entry
		reach := make([]byte, len(data)+1)
		reach[len(data)] = 1
		for i := len(data) - 1; i >= 1; i-- {
			e, n, err := r.layout.Decode(data[i:])
			if err != nil || n <= 0 || reach[i+n] == 0 {
				continue
			}
			reach[i] = reach[i+n]
			if plausible(e) {
				reach[i] = 2
			}
			if reach[i] == 2 && r.resyncAt < 0 {
				r.resyncAt = r.offset + int64(i)
			}
		}
	}
	return r.resyncAt > r.offset
}

// plausible reports whether a decoded entry is unlikely to be an accident of
// stray bytes: a message accepted by the decoder or non-empty printable text.
// RAW entries and empty text decode from almost any byte run.
func plausible(e format.Entry) bool {
	switch e.Type {
	case format.EntryMavlink:
		return true
	case format.EntryText:
		if len(e.Payload) == 0 {
			return false
		}
		for _, c := range string(e.Payload) {
			if unicode.IsControl(c) && c != '\t' && c != '\n' && c != '\r' {
				return false
			}
		}
		return true
	}
	return false
}

// fill tops up the window so it holds at least one maximal entry or the
// rest of the file
func (r *Reader) fill() error {
	need := r.layout.MaxEntrySize()
	if r.eof || r.end-r.start >= need {
		return nil
	}

	if r.start > 0 {
		r.end = copy(r.buf, r.buf[r.start:r.end])
		r.start = 0
	}

	for r.end < len(r.buf) {
		n, err := r.src.Read(r.buf[r.end:])
		r.end += n
		if err == io.EOF {
			r.eof = true
			return nil
		}
		if err != nil {
			return &IOError{Op: "read", Path: r.path, Err: err}
		}
	}
	return nil
}

func (r *Reader) advance(n int) {
	r.start += n
	r.offset += int64(n)
}

// All iterates over the remaining stream. Iteration stops after io.EOF and
// after an error that ends the stream.
func (r *Reader) All() iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		for {
			e, err := r.Next()
			if err == io.EOF {
				return
			}
			if !yield(e, err) {
				return
			}
		}
	}
}

// ReadStats counts what a reader has produced so far
type ReadStats struct {
	Entries      uint64
	CorruptBytes uint64
	Truncated    *TruncatedTail
}

// Stats returns the reader counters
func (r *Reader) Stats() ReadStats {
	return ReadStats{Entries: r.entries, CorruptBytes: r.corrupt, Truncated: r.tail}
}

// Close releases the underlying file
func (r *Reader) Close() error {
	r.done = true
	if r.closer == nil {
		return nil
	}
	c := r.closer
	r.closer = nil
	if err := c.Close(); err != nil {
		return &IOError{Op: "close", Path: r.path, Err: err}
	}
	return nil
}
