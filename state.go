// FILE: lixenwraith/mavlog/state.go
package mavlog

import (
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// State encapsulates the runtime counters of a logger. Counters are atomic so
// Stats may be called from any goroutine while the owner writes.
type State struct {
	CurrentFile atomic.Value // stores string, path of the active file
	CurrentSize atomic.Int64 // Size of the active file including its preamble

	StartTime      atomic.Value  // stores time.Time of the first successful open
	TotalEntries   atomic.Uint64 // Entries accepted and written
	TotalBytes     atomic.Uint64 // Encoded entry bytes written, preambles excluded
	TotalFiles     atomic.Uint64 // Files created, including the first
	TotalRotations atomic.Uint64 // Completed rotations
	TotalDeletions atomic.Uint64 // Files removed by eviction
	TotalRejected  atomic.Uint64 // Entries refused before any I/O
	TotalIOErrors  atomic.Uint64 // Failed file operations
}

// Stats is a point-in-time copy of the logger counters
type Stats struct {
	CurrentFile string
	CurrentSize int64
	StartTime   time.Time
	Entries     uint64
	Bytes       uint64
	Files       uint64
	Rotations   uint64
	Deletions   uint64
	Rejected    uint64
	IOErrors    uint64
}

func (s *State) snapshot() Stats {
	st := Stats{
		CurrentSize: s.CurrentSize.Load(),
		Entries:     s.TotalEntries.Load(),
		Bytes:       s.TotalBytes.Load(),
		Files:       s.TotalFiles.Load(),
		Rotations:   s.TotalRotations.Load(),
		Deletions:   s.TotalDeletions.Load(),
		Rejected:    s.TotalRejected.Load(),
		IOErrors:    s.TotalIOErrors.Load(),
	}
	if v, ok := s.CurrentFile.Load().(string); ok {
		st.CurrentFile = v
	}
	if v, ok := s.StartTime.Load().(time.Time); ok {
		st.StartTime = v
	}
	return st
}

// logSummary writes the lifetime counters to the diagnostics logger
func (s Stats) logSummary(diag *zap.Logger, msg string) {
	var uptimeHours float64
	if !s.StartTime.IsZero() {
		uptimeHours = time.Since(s.StartTime).Hours()
	}
	diag.Info(msg,
		zap.String("file", s.CurrentFile),
		zap.Float64("uptime_hours", uptimeHours),
		zap.Uint64("entries", s.Entries),
		zap.Uint64("bytes", s.Bytes),
		zap.Uint64("files", s.Files),
		zap.Uint64("rotations", s.Rotations),
		zap.Uint64("deletions", s.Deletions),
		zap.Uint64("rejected", s.Rejected),
		zap.Uint64("io_errors", s.IOErrors),
	)
}
