// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package cli implements the vexec command-line tool, which runs a plan
// described in a YAML file against local data files.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/vexec/pkg/settings"
	"github.com/cockroachdb/vexec/pkg/sql/colexec/colbuilder"
	"github.com/cockroachdb/vexec/pkg/sql/execinfra"
	"github.com/cockroachdb/vexec/pkg/sql/execinfrapb"
	"github.com/cockroachdb/vexec/pkg/sql/execstats"
	"github.com/cockroachdb/vexec/pkg/sql/flowinfra"
	"github.com/cockroachdb/vexec/pkg/sql/physicalplan"
	"github.com/cockroachdb/vexec/pkg/util/log"
	"github.com/cockroachdb/vexec/pkg/util/metric"
	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

// Proxies to allow overrides in tests.
var (
	osStderr io.Writer = os.Stderr
	cliFS    afero.Fs  = afero.NewOsFs()
)

// isInteractive indicates whether stdout refers to a terminal.
var isInteractive = isatty.IsTerminal(os.Stdout.Fd())

// statsBufferSize bounds the number of operators whose statistics are
// printed by "run --stats".
const statsBufferSize = 1024

var vexecCmd = &cobra.Command{
	Use:   "vexec [command] (flags)",
	Short: "vectorized plan runner",
	Long: `
Runs physical plans over Parquet and Avro files using the vectorized
execution engine.
`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		log.SetVModule(int32(runCtx.verbosity))
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

var runCmd = &cobra.Command{
	Use:   "run [plan file]",
	Short: "run a plan",
	Long: `
Run the plan described in a YAML file and print its output. The plan file
can also be given with --plan.
`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPlan,
}

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "list the settings",
	Long: `
List the settings that can be changed with "run --set", along with their
type and default value.
`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return printSettings(cmd.OutOrStdout())
	},
}

func init() {
	vexecCmd.AddCommand(runCmd, settingsCmd)
}

// Main is the entry point for the vexec binary.
func Main() {
	if err := Run(os.Args[1:]); err != nil {
		fmt.Fprintf(osStderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// Run executes the command given by args.
func Run(args []string) error {
	vexecCmd.SetArgs(args)
	return vexecCmd.Execute()
}

// applySettings sets, in order, the settings of the plan file, the --set
// overrides and the --max-memory budget.
func applySettings(sv *settings.Values, fromFile map[string]string, overrides []string, maxMemory string) error {
	keys := make([]string, 0, len(fromFile))
	for k := range fromFile {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := sv.Set(k, fromFile[k]); err != nil {
			return errors.Wrap(err, "plan file")
		}
	}
	for _, o := range overrides {
		k, v, ok := strings.Cut(o, "=")
		if !ok {
			return errors.Newf("invalid setting %q, expected key=value", o)
		}
		if err := sv.Set(strings.TrimSpace(k), strings.TrimSpace(v)); err != nil {
			return err
		}
	}
	if maxMemory != "" {
		if err := sv.Set(execinfra.MaxBufferedBytes.Key(), maxMemory); err != nil {
			return errors.Wrap(err, "--max-memory")
		}
	}
	return nil
}

func runPlan(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	path := runCtx.planFile
	if len(args) == 1 {
		path = args[0]
	}
	if path == "" {
		return errors.New("no plan file given")
	}
	data, err := afero.ReadFile(cliFS, path)
	if err != nil {
		return errors.Wrap(err, "reading plan file")
	}
	pf, err := parsePlanFile(data)
	if err != nil {
		return err
	}
	sv := settings.MakeValues()
	if err := applySettings(sv, pf.Settings, runCtx.settings, runCtx.maxMemory); err != nil {
		return err
	}
	plan, err := pf.physicalPlan()
	if err != nil {
		return err
	}

	cfg := execinfra.NewServerConfig(sv, cliFS)
	var sink *execstats.ChannelSink
	if runCtx.showStats {
		sink = execstats.NewChannelSink(statsBufferSize)
		cfg.StatsSink = execstats.MultiSink{cfg.StatsSink, sink}
	}
	flowCtx := execinfra.NewFlowCtx(cfg)
	defer cfg.Monitor.Stop(ctx)

	w := cmd.OutOrStdout()
	if runCtx.explain {
		fmt.Fprint(w, physicalplan.Format(plan))
	}
	root, scans, err := colbuilder.NewColOperator(ctx, flowCtx, plan)
	if err != nil {
		return err
	}
	if runCtx.explain {
		fmt.Fprintln(w, strings.Join(colbuilder.ExplainVec(root), "\n"))
	}
	// All the splits of the plan file are known up front.
	for _, s := range scans {
		s.AddSplits(nil, true /* noMore */)
	}

	receiver := newTableReceiver(w, runCtx.displayFormat, runCtx.maxRows)
	runErr := flowinfra.NewFragment(flowCtx, root, scans...).Run(ctx, receiver)
	if err := errors.CombineErrors(runErr, receiver.Flush()); err != nil {
		return err
	}
	exporter := metric.MakePrometheusExporter()
	if err := exporter.ScrapeRegistry(cfg.Metrics); err != nil {
		return err
	}
	if sink != nil {
		if err := printStats(w, sink, cfg); err != nil {
			return err
		}
		if err := printMetrics(w, exporter); err != nil {
			return err
		}
	}
	if runCtx.graphite != "" {
		ge := metric.MakeGraphiteExporter(exporter)
		if err := ge.Push(ctx, runCtx.graphite); err != nil {
			return errors.Wrap(err, "pushing metrics")
		}
	}
	return nil
}

// printMetrics writes the value of every counter and gauge of the run.
func printMetrics(w io.Writer, exporter *metric.PrometheusExporter) error {
	families, err := exporter.Gather()
	if err != nil {
		return err
	}
	sort.Slice(families, func(i, j int) bool { return families[i].GetName() < families[j].GetName() })
	table := tablewriter.NewWriter(w)
	table.SetAutoFormatHeaders(false)
	table.SetHeader([]string{"metric", "value"})
	for _, f := range families {
		for _, m := range f.GetMetric() {
			v := m.GetCounter().GetValue()
			if g := m.GetGauge(); g != nil {
				v = g.GetValue()
			}
			table.Append([]string{f.GetName(), strconv.FormatFloat(v, 'f', -1, 64)})
		}
	}
	table.Render()
	return nil
}

// printStats writes the statistics reported by every operator, followed by
// the flow memory high-water mark.
func printStats(w io.Writer, sink *execstats.ChannelSink, cfg *execinfra.ServerConfig) error {
	var all []*execinfrapb.ComponentStats
	for done := false; !done; {
		select {
		case cs := <-sink.C():
			all = append(all, cs)
		default:
			done = true
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Component < all[j].Component })

	table := tablewriter.NewWriter(w)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"component", "stat", "value"})
	for _, cs := range all {
		stats := cs.Stats()
		keys := make([]string, 0, len(stats))
		for k := range stats {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			table.Append([]string{cs.Component, k, stats[k]})
		}
	}
	table.Render()
	if dropped := sink.Dropped(); dropped > 0 {
		fmt.Fprintf(w, "(statistics of %d operators dropped)\n", dropped)
	}
	_, err := fmt.Fprintf(w, "peak memory: %s\n", humanize.IBytes(uint64(cfg.Monitor.MaximumBytes())))
	return err
}

func printSettings(w io.Writer) error {
	table := tablewriter.NewWriter(w)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"setting", "type", "default", "description"})
	for _, k := range settings.Keys() {
		s, desc, ok := settings.Lookup(k)
		if !ok {
			return errors.AssertionFailedf("setting %s not found", k)
		}
		table.Append([]string{k, s.Typ(), s.DefaultString(), desc})
	}
	table.Render()
	return nil
}
