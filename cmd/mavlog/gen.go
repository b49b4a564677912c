// FILE: lixenwraith/mavlog/cmd/mavlog/gen.go
package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/lixenwraith/mavlog"
	"github.com/lixenwraith/mavlog/frame"
)

type genFlags struct {
	count     int
	rate      int
	textEvery int
	systems   int
}

func newGenCommand(gf *globalFlags) *cobra.Command {
	g := &genFlags{}

	cmd := &cobra.Command{
		Use:   "gen",
		Short: "Write synthetic telemetry to exercise rotation",
		Long: "Write HEARTBEAT and SYS_STATUS traffic from simulated vehicles through a Logger built from\n" +
			"the configuration, then print the logger statistics. Interrupting stops the run cleanly.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := gf.loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runGen(ctx, cmd, cfg, g)
		},
	}
	cmd.Flags().IntVarP(&g.count, "count", "n", 10000, "number of messages to write")
	cmd.Flags().IntVar(&g.rate, "rate", 0, "messages per second, 0 writes as fast as possible")
	cmd.Flags().IntVar(&g.textEvery, "text-every", 500, "write a TEXT status entry every N messages, 0 disables")
	cmd.Flags().IntVar(&g.systems, "systems", 1, "number of simulated vehicles")
	return cmd
}

// vehicle produces the frames of one simulated system
type vehicle struct {
	id  byte
	seq byte
	rng *rand.Rand
}

func (v *vehicle) next() ([]byte, error) {
	f := frame.Frame{
		Version:     frame.V2,
		Sequence:    v.seq,
		SystemID:    v.id,
		ComponentID: 1,
	}
	v.seq++

	if v.rng.Intn(4) == 0 {
		// SYS_STATUS with a varying battery reading
		payload := make([]byte, 31)
		voltage := uint16(11000 + v.rng.Intn(1600))
		payload[14], payload[15] = byte(voltage), byte(voltage>>8)
		payload[30] = byte(v.rng.Intn(101))
		f.MessageID = 1
		f.Payload = payload
		f.CRCExtra = frame.CommonCRCExtra()[1]
	} else {
		f.MessageID = 0
		f.Payload = []byte{0, 0, 0, 0, 2, 3, 81, 4, 3}
		f.CRCExtra = frame.CommonCRCExtra()[0]
	}
	return f.MarshalBinary()
}

func runGen(ctx context.Context, cmd *cobra.Command, cfg *mavlog.Config, g *genFlags) error {
	if g.systems < 1 || g.systems > 255 {
		return fmt.Errorf("systems must be between 1 and 255: %d", g.systems)
	}

	logger, err := mavlog.New(cfg)
	if err != nil {
		return err
	}
	defer logger.Close()

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	vehicles := make([]*vehicle, g.systems)
	for i := range vehicles {
		vehicles[i] = &vehicle{id: byte(i + 1), rng: rng}
	}

	var tick <-chan time.Time
	if g.rate > 0 {
		ticker := time.NewTicker(time.Second / time.Duration(g.rate))
		defer ticker.Stop()
		tick = ticker.C
	}

	start := time.Now()
	written := 0
	for written < g.count {
		if tick != nil {
			select {
			case <-ctx.Done():
			case <-tick:
			}
		}
		if ctx.Err() != nil {
			warnf(cmd, "interrupted after %d messages", written)
			break
		}

		v := vehicles[written%len(vehicles)]
		msg, err := v.next()
		if err != nil {
			return err
		}
		ts := uint64(time.Now().UnixMicro())
		if err := logger.Log(msg, ts); err != nil {
			return err
		}
		written++

		if g.textEvery > 0 && written%g.textEvery == 0 && !cfg.MavlinkOnly && cfg.Extension != mavlog.ExtTlog {
			if err := logger.LogText(fmt.Sprintf("gen: %d messages written", written), ts); err != nil {
				return err
			}
		}
	}

	if err := logger.Close(); err != nil {
		return err
	}

	st := logger.Stats()
	elapsed := time.Since(start)
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "messages:  %s in %s\n", humanize.Comma(int64(written)), elapsed.Round(time.Millisecond))
	fmt.Fprintf(out, "entries:   %s (%s)\n", humanize.Comma(int64(st.Entries)), humanize.Bytes(st.Bytes))
	fmt.Fprintf(out, "files:     %d created, %d rotations, %d deleted\n", st.Files, st.Rotations, st.Deletions)
	fmt.Fprintf(out, "active:    %s\n", st.CurrentFile)
	return nil
}
