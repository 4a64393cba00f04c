package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/railtwin/traincontrol/internal/config"
	"github.com/railtwin/traincontrol/internal/engine"
	"github.com/railtwin/traincontrol/internal/events"
	"github.com/railtwin/traincontrol/internal/platform/logger"
)

type simulateOptions struct {
	ticks   int
	region  string
	logs    int
	asJSON  bool
	verbose bool
}

func newSimulateCmd() *cobra.Command {
	opts := simulateOptions{}
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run the simulation headless for a number of ticks and print the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			return simulate(cmd.OutOrStdout(), cfg, opts)
		},
	}
	cmd.Flags().IntVarP(&opts.ticks, "ticks", "n", 60, "Number of ticks to run")
	cmd.Flags().StringVarP(&opts.region, "region", "r", "", "Region to simulate (config default when empty)")
	cmd.Flags().IntVarP(&opts.logs, "logs", "l", 10, "Number of log entries to display")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "Print the final snapshot as JSON")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log engine output to stdout")
	return cmd
}

// simulate drives the engine on a synthetic clock: tick i happens at
// start + i*TickRate, so KPI refreshes follow simulated time.
func simulate(out io.Writer, cfg *config.Config, opts simulateOptions) error {
	if opts.ticks < 0 {
		return fmt.Errorf("ticks must not be negative")
	}
	tables, err := loadNetwork(cfg)
	if err != nil {
		return err
	}
	region := cfg.DefaultRegion
	if opts.region != "" {
		region = opts.region
	}

	log := logger.NewDiscardLogger()
	if opts.verbose {
		log = logger.NewLogger()
	}

	start := time.Now()
	eventLog := events.NewEventLog(nil)
	eng := engine.NewEngine(tables, eventLog, log, engine.Options{
		TickRate:      cfg.TickRate,
		KPIInterval:   cfg.KPIInterval,
		DefaultRegion: region,
		Clock:         func() time.Time { return start },
	})
	if region != "" && eng.ActiveRegion() != region {
		return fmt.Errorf("unknown region %q", region)
	}

	for i := 1; i <= opts.ticks; i++ {
		eng.Tick(start.Add(time.Duration(i) * cfg.TickRate))
	}

	snap := eng.Snapshot()
	if opts.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	}
	printSnapshot(out, snap, len(eventLog.GetByType(events.EventTypeTrainHalted)), opts.logs)
	return nil
}

func printSnapshot(out io.Writer, snap engine.Snapshot, halts, logLimit int) {
	fmt.Fprintf(out, "Region: %s  Tick: %d  Halts: %d\n\n", snap.ActiveRegion, snap.Tick, halts)

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TRAIN\tTYPE\tSTATUS\tSPEED\tPOSITION\tBLOCK")
	for _, t := range snap.Trains {
		block := "-"
		if t.CurrentBlock != nil {
			block = *t.CurrentBlock
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.0f\t(%.1f, %.1f)\t%s\n", t.ID, t.Type, t.Status, t.Speed, t.Position.X, t.Position.Y, block)
	}
	tw.Flush()

	fmt.Fprintln(out)
	tw = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SIGNAL\tSTATE\tPROTECTS")
	for _, s := range snap.Signals {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", s.ID, s.State, s.ProtectsBlock)
	}
	tw.Flush()

	k := snap.KPIs
	fmt.Fprintf(out, "\nKPIs: throughput %.0f (%s), punctuality %.1f%% (%s), avg delay %.1f min (%s), utilization %.1f%% (%s)\n",
		k.SectionThroughput.Value, k.SectionThroughput.Trend,
		k.Punctuality.Value, k.Punctuality.Trend,
		k.AvgDelay.Value, k.AvgDelay.Trend,
		k.TrackUtilization.Value, k.TrackUtilization.Trend)

	if len(snap.Alerts) > 0 {
		fmt.Fprintln(out, "\nAlerts:")
		for _, a := range snap.Alerts {
			fmt.Fprintf(out, "  [%s] %s: %s\n", a.Timestamp, a.Title, a.Message)
		}
	}

	fmt.Fprintln(out, "\nLog:")
	for i, l := range snap.Logs {
		if i >= logLimit {
			break
		}
		fmt.Fprintf(out, "  #%d [%s] %s %s\n", l.ID, l.Timestamp, l.Type, l.Message)
	}
}
