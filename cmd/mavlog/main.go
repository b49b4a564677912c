// FILE: lixenwraith/mavlog/cmd/mavlog/main.go
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lixenwraith/mavlog"
)

// globalFlags are shared by every subcommand
type globalFlags struct {
	configPath string
	overrides  []string
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	gf := &globalFlags{}

	root := &cobra.Command{
		Use:           "mavlog",
		Short:         "MAVLink telemetry log tool",
		Long:          "mavlog inspects, summarizes and generates MAVLink telemetry logs (.mav, .bin and .tlog).",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVarP(&gf.configPath, "config", "c", "", "TOML configuration file with a [mavlog] table")
	root.PersistentFlags().StringArrayVarP(&gf.overrides, "set", "s", nil, "configuration override as key=value, repeatable")

	root.AddCommand(
		newDumpCommand(gf),
		newStatCommand(gf),
		newGenCommand(gf),
		newConfigCommand(gf),
	)
	return root
}

// loadConfig resolves the file, then the overrides, into a validated Config
func (gf *globalFlags) loadConfig() (*mavlog.Config, error) {
	cfg := mavlog.DefaultConfig()
	if gf.configPath != "" {
		loaded, err := mavlog.NewConfigFromFile(gf.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if len(gf.overrides) > 0 {
		if err := cfg.ApplyOverride(gf.overrides...); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func warnf(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.ErrOrStderr(), "mavlog: "+format+"\n", args...)
}
