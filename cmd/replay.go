// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/Thermoquad/fhtstat/internal/logging"
	"github.com/Thermoquad/fhtstat/internal/msglog"
	"github.com/Thermoquad/fhtstat/pkg/aggregator"
	"github.com/Thermoquad/fhtstat/pkg/fht"
	"github.com/Thermoquad/fhtstat/pkg/rooms"
	"github.com/spf13/cobra"
)

var replaySummary bool

var replayCmd = &cobra.Command{
	Use:   "replay <message-log>...",
	Short: "Re-decode message log files",
	Long: `Replay message log files written by serve through the decoder.

By default the frames are analyzed and aggregated exactly as serve would and
the resulting snapshot is printed as JSON.

With --summary, the command history is listed per device address and
subaddress instead, which is useful for identifying unknown thermostats and
subaddresses.

Unparsable lines are skipped and counted.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().BoolVar(&replaySummary, "summary", false, "Print per-address command history")
}

func runReplay(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := logging.New(cfg.Logging, Version)

	dir, err := loadRooms(cfg, logger)
	if err != nil {
		return err
	}

	var frames []*fht.Frame
	for _, path := range args {
		skipped, err := msglog.ReplayFile(path, func(f *fht.Frame) {
			frames = append(frames, f)
		})
		if err != nil {
			return err
		}
		if skipped > 0 {
			logger.Warn("skipped unparsable lines", "path", path, "count", skipped)
		}
	}

	out := cmd.OutOrStdout()
	if replaySummary {
		writeSummary(out, frames, dir)
		return nil
	}

	agg := newAggregator(cfg)
	analyzer := fht.NewAnalyzer(fht.DefaultTables(), logger.With("component", "analyzer").Logger)
	replayFrames(frames, analyzer, dir, agg)

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(agg.Snapshot())
}

// replayFrames analyzes and aggregates frames in order
func replayFrames(frames []*fht.Frame, analyzer *fht.Analyzer, dir fht.Resolver, agg *aggregator.Aggregator) {
	for _, f := range frames {
		r := analyzer.Analyze(f, dir)
		agg.Apply(r.Room, r)
	}
}

// writeSummary lists the command history per address and subaddress.
// Addresses are shown in the decimal pair form printed on the device.
func writeSummary(w io.Writer, frames []*fht.Frame, dir *rooms.Directory) {
	history := map[string]map[string][]*fht.Frame{}
	for _, f := range frames {
		addr := f.Address()
		if history[addr] == nil {
			history[addr] = map[string][]*fht.Frame{}
		}
		history[addr][f.Subaddress()] = append(history[addr][f.Subaddress()], f)
	}

	addresses := make([]string, 0, len(history))
	for addr := range history {
		addresses = append(addresses, addr)
	}
	sort.Strings(addresses)

	fmt.Fprintf(w, "Count: %d\n", len(addresses))
	for _, addr := range addresses {
		room, found := dir.Resolve(addr)
		if !found {
			room = fht.Unknown
		}
		fmt.Fprintf(w, "-- %s (%s) %s\n", decimalPairs(addr), addr, room)

		subs := make([]string, 0, len(history[addr]))
		for sub := range history[addr] {
			subs = append(subs, sub)
		}
		sort.Strings(subs)

		for _, sub := range subs {
			fmt.Fprintf(w, "  Sub address %s\n", sub)
			for _, f := range history[addr][sub] {
				fmt.Fprintf(w, "      %s %s%s\n",
					f.Timestamp().Format(fht.LogTimeFormat), f.Command(), f.Value())
			}
		}
	}
}

// decimalPairs renders a hex address as the two decimal pairs printed on
// the thermostat, e.g. "6004" as "96 04"
func decimalPairs(addr string) string {
	var hi, lo int
	if _, err := fmt.Sscanf(addr, "%02x%02x", &hi, &lo); err != nil {
		return addr
	}
	return fmt.Sprintf("%02d %02d", hi, lo)
}
