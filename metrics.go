package mavlog

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes writer and reader counters to Prometheus. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	EntriesWritten prometheus.Counter
	BytesWritten   prometheus.Counter
	Rotations      prometheus.Counter
	Deletions      prometheus.Counter
	WriteErrors    *prometheus.CounterVec // by operation
	EntriesRead    prometheus.Counter
	CorruptBytes   prometheus.Counter
	TruncatedTails prometheus.Counter
	FileErrors     prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg. A nil
// registerer leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mavlog",
			Name:      name,
			Help:      help,
		})
	}

	m := &Metrics{
		EntriesWritten: counter("entries_written_total", "Entries written to log files"),
		BytesWritten:   counter("bytes_written_total", "Encoded entry bytes written to log files"),
		Rotations:      counter("rotations_total", "Completed file rotations"),
		Deletions:      counter("deletions_total", "Files removed by rotation eviction"),
		WriteErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mavlog",
			Name:      "write_errors_total",
			Help:      "Failed file operations on the write path",
		}, []string{"op"}),
		EntriesRead:    counter("entries_read_total", "Entries decoded by readers"),
		CorruptBytes:   counter("corrupt_bytes_total", "Undecodable bytes skipped by readers"),
		TruncatedTails: counter("truncated_tails_total", "Files ending in a partial entry"),
		FileErrors:     counter("file_errors_total", "Files skipped for an unusable header"),
	}

	if reg == nil {
		return m, nil
	}
	for _, c := range m.collectors() {
		if err := reg.Register(c); err != nil {
			return nil, fmtErrorf("failed to register metrics: %w", err)
		}
	}
	return m, nil
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.EntriesWritten, m.BytesWritten, m.Rotations, m.Deletions, m.WriteErrors,
		m.EntriesRead, m.CorruptBytes, m.TruncatedTails, m.FileErrors,
	}
}

func (m *Metrics) wrote(n int) {
	if m == nil {
		return
	}
	m.EntriesWritten.Inc()
	m.BytesWritten.Add(float64(n))
}

func (m *Metrics) rotated(deleted int) {
	if m == nil {
		return
	}
	m.Rotations.Inc()
	m.Deletions.Add(float64(deleted))
}

func (m *Metrics) writeFailed(op string) {
	if m == nil {
		return
	}
	m.WriteErrors.WithLabelValues(op).Inc()
}

func (m *Metrics) read() {
	if m == nil {
		return
	}
	m.EntriesRead.Inc()
}

func (m *Metrics) corrupt(n int) {
	if m == nil {
		return
	}
	m.CorruptBytes.Add(float64(n))
}

func (m *Metrics) truncated() {
	if m == nil {
		return
	}
	m.TruncatedTails.Inc()
}

func (m *Metrics) fileFailed() {
	if m == nil {
		return
	}
	m.FileErrors.Inc()
}
