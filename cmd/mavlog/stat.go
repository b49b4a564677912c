// FILE: lixenwraith/mavlog/cmd/mavlog/stat.go
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/lixenwraith/mavlog"
	"github.com/lixenwraith/mavlog/format"
	"github.com/lixenwraith/mavlog/frame"
)

func newStatCommand(gf *globalFlags) *cobra.Command {
	var session bool

	cmd := &cobra.Command{
		Use:   "stat FILE...",
		Short: "Summarize log files",
		Long:  "Print the header, definitions and entry counts of each file, including corrupt bytes and truncated tails.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := gf.loadConfig()
			if err != nil {
				return err
			}
			paths, err := expandPaths(args, session)
			if err != nil {
				return err
			}

			var failed error
			for i, path := range paths {
				if i > 0 {
					fmt.Fprintln(cmd.OutOrStdout())
				}
				st, err := statFile(path, cfg.ReaderOptions()...)
				if err != nil {
					warnf(cmd, "%v", err)
					failed = err
					continue
				}
				st.print(cmd.OutOrStdout())
			}
			return failed
		},
	}
	cmd.Flags().BoolVar(&session, "session", false, "expand each FILE to its rotated session")
	return cmd
}

// fileStat is the summary of one file
type fileStat struct {
	path     string
	size     int64
	kind     mavlog.Kind
	header   format.FileHeader
	defs     format.Definitions
	byType   map[format.EntryType]uint64
	messages map[uint32]uint64
	systems  map[byte]bool
	first    uint64
	last     uint64
	read     mavlog.ReadStats
	stopped  error
}

func statFile(path string, opts ...mavlog.Option) (*fileStat, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	r, err := mavlog.OpenFile(path, opts...)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	st := &fileStat{
		path:     path,
		size:     info.Size(),
		kind:     mavlog.KindOf(path),
		header:   r.Header(),
		defs:     r.Definitions(),
		byType:   make(map[format.EntryType]uint64),
		messages: make(map[uint32]uint64),
		systems:  make(map[byte]bool),
	}

	for {
		e, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			var ee *mavlog.EntryError
			if !errors.As(err, &ee) {
				st.stopped = err
			}
			continue
		}
		st.byType[e.Type]++
		if e.TimestampUs != 0 {
			if st.first == 0 {
				st.first = e.TimestampUs
			}
			st.last = e.TimestampUs
		}
		if e.Type == format.EntryMavlink {
			if f, _, err := frame.Parse(e.Payload); err == nil {
				st.messages[f.MessageID]++
				st.systems[f.SystemID] = true
			}
		}
	}
	st.read = r.Stats()
	return st, nil
}

func (st *fileStat) print(w io.Writer) {
	fmt.Fprintf(w, "file:        %s\n", st.path)
	fmt.Fprintf(w, "size:        %s (%d bytes)\n", humanize.Bytes(uint64(st.size)), st.size)

	if st.kind == mavlog.KindTlog {
		fmt.Fprintf(w, "layout:      tlog\n")
	} else {
		h := st.header
		fmt.Fprintf(w, "uuid:        %s\n", h.UUID)
		if h.TimestampUs != 0 {
			fmt.Fprintf(w, "started:     %s\n", time.UnixMicro(int64(h.TimestampUs)).UTC().Format(time.RFC3339Nano))
		}
		fmt.Fprintf(w, "application: %s\n", h.SrcApplicationID)
		fmt.Fprintf(w, "version:     %d", h.FormatVersion)
		if !h.KnownVersion() {
			fmt.Fprint(w, " (unknown)")
		}
		fmt.Fprintln(w)
		fmt.Fprintf(w, "flags:       %s\n", h.Flags)
		fmt.Fprintf(w, "definitions: mavlink %d.%d %s, payload %s (%s)\n",
			st.defs.VersionMajor, st.defs.VersionMinor, st.defs.Dialect,
			st.defs.PayloadType, humanize.Bytes(uint64(len(st.defs.Payload))))
	}

	fmt.Fprintf(w, "entries:     %s (mavlink %s, text %s, raw %s)\n",
		humanize.Comma(int64(st.read.Entries)),
		humanize.Comma(int64(st.byType[format.EntryMavlink])),
		humanize.Comma(int64(st.byType[format.EntryText])),
		humanize.Comma(int64(st.byType[format.EntryRaw])))
	if len(st.messages) > 0 {
		fmt.Fprintf(w, "messages:    %d distinct ids from %d systems\n", len(st.messages), len(st.systems))
	}
	if st.first != 0 {
		span := time.Duration(st.last-st.first) * time.Microsecond
		fmt.Fprintf(w, "span:        %s\n", span)
	}
	fmt.Fprintf(w, "corrupt:     %s bytes\n", humanize.Comma(int64(st.read.CorruptBytes)))
	if t := st.read.Truncated; t != nil {
		fmt.Fprintf(w, "truncated:   %d bytes at offset %d\n", t.Length, t.Offset)
	}
	if st.stopped != nil {
		fmt.Fprintf(w, "stopped:     %v\n", st.stopped)
	}
}
