// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package cli

import (
	"os"

	"github.com/cockroachdb/vexec/pkg/cli/cliflags"
	"github.com/spf13/pflag"
)

func setFlagFromEnv(f *pflag.FlagSet, flagInfo cliflags.FlagInfo) {
	if flagInfo.EnvVar != "" {
		if value, set := os.LookupEnv(flagInfo.EnvVar); set {
			if err := f.Set(flagInfo.Name, value); err != nil {
				panic(err)
			}
		}
	}
}

// StringFlag creates a string flag and registers it with the FlagSet.
func StringFlag(f *pflag.FlagSet, valPtr *string, flagInfo cliflags.FlagInfo, defaultVal string) {
	f.StringVarP(valPtr, flagInfo.Name, flagInfo.Shorthand, defaultVal, flagInfo.Usage())

	setFlagFromEnv(f, flagInfo)
}

// IntFlag creates an int flag and registers it with the FlagSet.
func IntFlag(f *pflag.FlagSet, valPtr *int, flagInfo cliflags.FlagInfo, defaultVal int) {
	f.IntVarP(valPtr, flagInfo.Name, flagInfo.Shorthand, defaultVal, flagInfo.Usage())

	setFlagFromEnv(f, flagInfo)
}

// BoolFlag creates a bool flag and registers it with the FlagSet.
func BoolFlag(f *pflag.FlagSet, valPtr *bool, flagInfo cliflags.FlagInfo, defaultVal bool) {
	f.BoolVarP(valPtr, flagInfo.Name, flagInfo.Shorthand, defaultVal, flagInfo.Usage())

	setFlagFromEnv(f, flagInfo)
}

// StringSliceFlag creates a repeatable string flag and registers it with
// the FlagSet.
func StringSliceFlag(f *pflag.FlagSet, valPtr *[]string, flagInfo cliflags.FlagInfo) {
	f.StringArrayVarP(valPtr, flagInfo.Name, flagInfo.Shorthand, nil, flagInfo.Usage())

	setFlagFromEnv(f, flagInfo)
}

// VarFlag creates a custom-variable flag and registers it with the FlagSet.
func VarFlag(f *pflag.FlagSet, value pflag.Value, flagInfo cliflags.FlagInfo) {
	f.VarP(value, flagInfo.Name, flagInfo.Shorthand, flagInfo.Usage())

	setFlagFromEnv(f, flagInfo)
}

// runCtx holds the configuration of "vexec run", set by the command-line
// flags.
var runCtx struct {
	planFile      string
	maxMemory     string
	settings      []string
	explain       bool
	showStats     bool
	maxRows       int
	displayFormat tableDisplayFormat
	graphite      string
	verbosity     int
}

// setRunContextDefaults resets runCtx. Tests call it between invocations.
func setRunContextDefaults() {
	runCtx.planFile = ""
	runCtx.maxMemory = ""
	runCtx.settings = nil
	runCtx.explain = false
	runCtx.showStats = false
	runCtx.maxRows = 0
	runCtx.displayFormat = tableDisplayTSV
	if isInteractive {
		runCtx.displayFormat = tableDisplayPretty
	}
	runCtx.graphite = ""
	runCtx.verbosity = 0
}

func init() {
	setRunContextDefaults()

	f := runCmd.Flags()
	StringFlag(f, &runCtx.planFile, cliflags.PlanFile, runCtx.planFile)
	StringFlag(f, &runCtx.maxMemory, cliflags.MaxMemory, runCtx.maxMemory)
	StringSliceFlag(f, &runCtx.settings, cliflags.SetSetting)
	BoolFlag(f, &runCtx.explain, cliflags.Explain, runCtx.explain)
	BoolFlag(f, &runCtx.showStats, cliflags.ShowStats, runCtx.showStats)
	IntFlag(f, &runCtx.maxRows, cliflags.MaxRows, runCtx.maxRows)
	VarFlag(f, &runCtx.displayFormat, cliflags.TableDisplayFormat)
	StringFlag(f, &runCtx.graphite, cliflags.GraphiteEndpoint, runCtx.graphite)

	pf := vexecCmd.PersistentFlags()
	IntFlag(pf, &runCtx.verbosity, cliflags.Verbosity, runCtx.verbosity)
}
