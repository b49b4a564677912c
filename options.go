package mavlog

import (
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/lixenwraith/mavlog/format"
	"github.com/lixenwraith/mavlog/frame"
)

// Option customizes a Logger, Reader or Session
type Option func(*options)

type options struct {
	decoder    format.MessageDecoder
	decoderSet bool
	diag       *zap.Logger
	diagSet    bool
	metrics    *Metrics
	policy     Policy
	policySet  bool
	kind       Kind
	kindSet    bool
	now        func() time.Time
}

// WithDecoder sets the MAVLink decoder used to validate logged messages and
// to delimit entries on read. By default a Logger verifies checksums against
// the dialect named by the mav_dialect key, and a Reader against the dialect
// recorded in the file's definitions block. A nil decoder disables message
// validation, and files with the MAVLINK_ONLY flag then cannot be read.
func WithDecoder(dec format.MessageDecoder) Option {
	return func(o *options) {
		o.decoder = dec
		o.decoderSet = true
	}
}

// WithDiagnostics routes internal diagnostics to l instead of the logger
// built from the diagnostics config key.
func WithDiagnostics(l *zap.Logger) Option {
	return func(o *options) {
		o.diag = l
		o.diagSet = l != nil
	}
}

// WithMetrics records counters into m
func WithMetrics(m *Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithPolicy sets the corruption policy of a Reader or Session
func WithPolicy(p Policy) Option {
	return func(o *options) {
		o.policy = p
		o.policySet = true
	}
}

// WithKind forces the file layout instead of deriving it from the extension
func WithKind(k Kind) Option {
	return func(o *options) {
		o.kind = k
		o.kindSet = true
	}
}

// WithClock replaces the time source used for file names and header timestamps
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func newOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.diag == nil {
		o.diag = zap.NewNop()
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o
}

// decoderFor returns the explicit decoder, or one that verifies checksums of
// the named dialect
func (o *options) decoderFor(dialect string) format.MessageDecoder {
	if o.decoderSet {
		return o.decoder
	}
	return frame.DialectDecoder(dialect)
}

// ReaderOptions returns the options a Reader needs to honour cfg: its
// corruption policy and diagnostics level
func (c *Config) ReaderOptions() []Option {
	opts := []Option{WithPolicy(c.Policy())}
	if diag, err := newDiagnostics(c.Diagnostics); err == nil {
		opts = append(opts, WithDiagnostics(diag))
	}
	return opts
}

// newDiagnostics builds the internal diagnostics logger for a level name
func newDiagnostics(level string) (*zap.Logger, error) {
	lvl, err := parseDiagnosticsLevel(level)
	if err != nil {
		return nil, err
	}
	if lvl == zapcore.InvalidLevel {
		return zap.NewNop(), nil
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	zc.Sampling = nil
	zc.OutputPaths = []string{"stderr"}
	l, err := zc.Build()
	if err != nil {
		return nil, fmtErrorf("failed to build diagnostics logger: %w", err)
	}
	return l.Named("mavlog"), nil
}
