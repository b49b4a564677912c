// FILE: lixenwraith/mavlog/cmd/mavlog/dump.go
package main

import (
	"bufio"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/lixenwraith/mavlog"
	"github.com/lixenwraith/mavlog/render"
)

type dumpFlags struct {
	format   string
	session  bool
	showPath bool
	tsFormat string
	quiet    bool
}

func newDumpCommand(gf *globalFlags) *cobra.Command {
	df := &dumpFlags{}

	cmd := &cobra.Command{
		Use:   "dump FILE...",
		Short: "Print the entries of log files",
		Long: "Print every entry of the given files in order. With --session each FILE names the active file\n" +
			"of a session and its rotated backups are read first, oldest to newest.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDump(cmd, gf, df, args)
		},
	}
	cmd.Flags().StringVarP(&df.format, "format", "f", "txt", "output format: txt, json, hex or dump")
	cmd.Flags().BoolVar(&df.session, "session", false, "expand each FILE to its rotated session")
	cmd.Flags().BoolVar(&df.showPath, "show-path", false, "print the source file of every entry")
	cmd.Flags().StringVar(&df.tsFormat, "time-format", "", "Go time layout for entry timestamps")
	cmd.Flags().BoolVarP(&df.quiet, "quiet", "q", false, "omit corrupt byte and truncated tail lines")
	return cmd
}

// expandPaths turns active file names into their full rotated sessions
func expandPaths(args []string, session bool) ([]string, error) {
	if !session {
		return args, nil
	}
	var paths []string
	for _, arg := range args {
		files, err := mavlog.SessionFiles(filepath.Dir(arg), filepath.Base(arg))
		if err != nil {
			return nil, err
		}
		if len(files) == 0 {
			return nil, fmt.Errorf("no files for session %s", arg)
		}
		paths = append(paths, files...)
	}
	return paths, nil
}

func runDump(cmd *cobra.Command, gf *globalFlags, df *dumpFlags, args []string) error {
	cfg, err := gf.loadConfig()
	if err != nil {
		return err
	}
	f, err := render.ParseFormat(df.format)
	if err != nil {
		return err
	}
	paths, err := expandPaths(args, df.session)
	if err != nil {
		return err
	}

	r := render.New(f).ShowPath(df.showPath || len(paths) > 1).TimestampFormat(df.tsFormat)
	out := bufio.NewWriter(cmd.OutOrStdout())
	defer out.Flush()

	s := mavlog.NewSession(paths, cfg.ReaderOptions()...)
	defer s.Close()

	var failed error
	for e, err := range s.All() {
		if err != nil {
			if !mavlog.IsRecoverable(err) {
				failed = err
			}
			if !df.quiet || failed != nil {
				out.Write(r.Error(err))
			}
			continue
		}
		out.Write(r.Entry(e))
	}

	if !df.quiet {
		for _, t := range s.TruncatedTails() {
			out.Write(r.Tail(t))
		}
	}
	return failed
}
