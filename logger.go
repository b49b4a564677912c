// FILE: lixenwraith/mavlog/logger.go
package mavlog

import (
	"encoding"
	"fmt"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lixenwraith/mavlog/format"
)

// Logger writes entries to a rotating set of log files. Every call that
// returns nil has written and flushed its entry.
//
// A Logger holds no lock and runs no goroutine; callers with several
// producers must serialize calls themselves. Stats may be read concurrently.
type Logger struct {
	cfg     *Config
	opts    options
	layout  format.Layout
	header  format.FileHeader // template, UUID replaced per file
	defs    []byte            // encoded definitions block, nil for tlog
	file    *rotatingFile
	buf     []byte
	state   State
	diag    *zap.Logger
	metrics *Metrics
	closed  bool
}

// New validates cfg and returns a Logger. No file is touched until the first
// entry is logged.
func New(cfg *Config, opts ...Option) (*Logger, error) {
	if cfg == nil {
		return nil, &ConfigError{Msg: "configuration cannot be nil"}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.Clone()

	o := newOptions(opts)
	o.decoder = o.decoderFor(cfg.MavDialect)
	o.decoderSet = true
	l := &Logger{
		cfg:     cfg,
		opts:    o,
		diag:    o.diag,
		metrics: o.metrics,
	}

	// Explicit diagnostics option wins over the config key
	if !o.diagSet {
		diag, err := newDiagnostics(cfg.Diagnostics)
		if err != nil {
			return nil, configErrorf("diagnostics", "%v", err)
		}
		l.diag = diag
	}

	if cfg.isTlog() {
		l.layout = format.NewTlogLayout(o.decoder)
		return l, nil
	}

	flags := cfg.Flags()
	l.layout = format.NewShape(flags, o.decoder)
	l.header = format.FileHeader{
		SrcApplicationID: format.TruncateText(cfg.SrcApplicationID),
		FormatVersion:    format.CurrentFormatVersion,
		Flags:            flags,
	}

	defs, err := cfg.Definitions()
	if err != nil {
		return nil, err
	}
	l.defs, err = format.EncodeDefinitions(defs)
	if err != nil {
		return nil, configErrorf("definitions_payload", "%v", err)
	}

	return l, nil
}

// Log writes one MAVLink message. The payload must decode as exactly one
// message with the configured decoder.
func (l *Logger) Log(payload []byte, timestampUs uint64) error {
	if l.closed {
		return ErrClosed
	}
	if err := l.checkMessage(payload); err != nil {
		return l.reject(err)
	}
	return l.write(format.Entry{Type: format.EntryMavlink, TimestampUs: timestampUs, Payload: payload})
}

// LogMessage encodes msg with its own MarshalBinary and logs the result
func (l *Logger) LogMessage(msg encoding.BinaryMarshaler, timestampUs uint64) error {
	payload, err := msg.MarshalBinary()
	if err != nil {
		return l.reject(fmt.Errorf("%w: %v", ErrInvalidMessage, err))
	}
	return l.Log(payload, timestampUs)
}

// LogText writes a UTF-8 text entry
func (l *Logger) LogText(text string, timestampUs uint64) error {
	if l.closed {
		return ErrClosed
	}
	if !utf8.ValidString(text) {
		return l.reject(ErrInvalidText)
	}
	return l.write(format.Entry{Type: format.EntryText, TimestampUs: timestampUs, Payload: []byte(text)})
}

// LogRaw writes an opaque binary entry
func (l *Logger) LogRaw(b []byte, timestampUs uint64) error {
	return l.write(format.Entry{Type: format.EntryRaw, TimestampUs: timestampUs, Payload: b})
}

// LogEntry writes a prepared entry of any type
func (l *Logger) LogEntry(e format.Entry) error {
	switch e.Type {
	case format.EntryMavlink:
		return l.Log(e.Payload, e.TimestampUs)
	case format.EntryText:
		if !utf8.Valid(e.Payload) {
			return l.reject(ErrInvalidText)
		}
	}
	return l.write(e)
}

func (l *Logger) checkMessage(payload []byte) error {
	if l.opts.decoder == nil {
		if len(payload) == 0 {
			return fmt.Errorf("%w: empty payload", ErrInvalidMessage)
		}
		return nil
	}
	n, err := l.opts.decoder.Decode(payload)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if n != len(payload) {
		return fmt.Errorf("%w: %d trailing bytes after message", ErrInvalidMessage, len(payload)-n)
	}
	return nil
}

func (l *Logger) write(e format.Entry) error {
	if l.closed {
		return ErrClosed
	}
	if e.Type != format.EntryMavlink && (l.cfg.MavlinkOnly || l.cfg.isTlog()) {
		return l.reject(ErrMavlinkOnly)
	}

	buf, err := l.layout.Append(l.buf[:0], e)
	if err != nil {
		return l.reject(err)
	}
	l.buf = buf

	if l.file == nil {
		if err := l.open(); err != nil {
			return err
		}
	}

	if err := l.file.write(buf); err != nil {
		l.diag.Error("write failed", zap.Error(err))
		return err
	}

	l.state.TotalEntries.Add(1)
	l.state.TotalBytes.Add(uint64(len(buf)))
	l.metrics.wrote(len(buf))
	return nil
}

func (l *Logger) reject(err error) error {
	l.state.TotalRejected.Add(1)
	l.diag.Debug("entry rejected", zap.Error(err))
	return err
}

// open starts the session: the base name is fixed here so every file of
// the session shares it
func (l *Logger) open() error {
	start := l.opts.now()
	l.header.TimestampUs = uint64(start.UnixMicro())

	rf := &rotatingFile{
		policy: rotationPolicy{
			dir:       l.cfg.Directory,
			base:      sessionFileName(l.cfg.Name, l.cfg.Extension, l.cfg.TimestampNames, start),
			maxSize:   l.cfg.MaxFileSizeBytes,
			maxCount:  int(l.cfg.MaxFileCount),
			minFreeKB: l.cfg.MinDiskFreeKB,
			sync:      l.cfg.SyncOnWrite,
		},
		preamble: l.preamble,
		state:    &l.state,
		metrics:  l.metrics,
		diag:     l.diag,
	}
	if err := rf.open(); err != nil {
		l.diag.Error("failed to open log file", zap.String("dir", l.cfg.Directory), zap.Error(err))
		return err
	}

	l.file = rf
	l.state.StartTime.Store(start)
	l.diag.Info("session opened",
		zap.String("file", rf.activePath()),
		zap.Stringer("flags", l.cfg.Flags()),
	)
	return nil
}

// preamble returns the header and definitions block for a new file. Each
// file gets its own UUID.
func (l *Logger) preamble() ([]byte, error) {
	if l.cfg.isTlog() {
		return nil, nil
	}
	id, err := uuid.NewRandom()
	if err != nil {
		return nil, fmtErrorf("failed to generate file uuid: %w", err)
	}
	h := l.header
	h.UUID = id
	hb := format.EncodeHeader(h)

	b := make([]byte, 0, len(hb)+len(l.defs))
	b = append(b, hb[:]...)
	return append(b, l.defs...), nil
}

// Close flushes and releases the active file. It is safe to call more than once.
func (l *Logger) Close() error {
	if l.closed {
		return nil
	}
	l.closed = true

	if l.file == nil {
		return nil
	}
	err := l.file.close()
	l.Stats().logSummary(l.diag, "session closed")
	return err
}

// Stats returns a snapshot of the logger counters
func (l *Logger) Stats() Stats {
	return l.state.snapshot()
}

// Config returns a copy of the logger's configuration
func (l *Logger) Config() *Config {
	return l.cfg.Clone()
}

// Files lists the session's files oldest first. It is empty before the
// first entry is logged.
func (l *Logger) Files() ([]string, error) {
	if l.file == nil {
		return nil, nil
	}
	return SessionFiles(l.file.policy.dir, l.file.policy.base)
}

// IsClosed reports whether Close has been called
func (l *Logger) IsClosed() bool {
	return l.closed
}
