// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package cliflags describes the command-line flags of vexec.
package cliflags

import "strings"

// FlagInfo contains the static information for a CLI flag and helper
// to format the description.
type FlagInfo struct {
	// Name of the flag as used on the command line.
	Name string
	// Shorthand is the short form of the flag (optional).
	Shorthand string
	// EnvVar is the name of the environment variable through which the flag
	// value can be controlled (optional).
	EnvVar string
	// Description of the flag.
	Description string
}

// Usage returns the description of the flag, including the environment
// variable that controls it.
func (f FlagInfo) Usage() string {
	s := strings.TrimSpace(f.Description)
	if f.EnvVar != "" {
		s += "\nEnvironment variable: " + f.EnvVar
	}
	return s
}

var (
	PlanFile = FlagInfo{
		Name:        "plan",
		Shorthand:   "p",
		EnvVar:      "VEXEC_PLAN",
		Description: `Path of the YAML file describing the tables and the plan to run.`,
	}

	MaxMemory = FlagInfo{
		Name:        "max-memory",
		EnvVar:      "VEXEC_MAX_MEMORY",
		Description: `Memory budget shared by all operators, e.g. "256MiB".`,
	}

	SetSetting = FlagInfo{
		Name: "set",
		Description: `
Override a setting, as key=value. May be given more than once. Run
"vexec settings" for the list of settings.`,
	}

	Explain = FlagInfo{
		Name:        "explain",
		Description: `Print the plan and the operator tree before running it.`,
	}

	ShowStats = FlagInfo{
		Name:        "stats",
		Description: `Print the statistics of every operator after running the plan.`,
	}

	MaxRows = FlagInfo{
		Name:        "max-rows",
		Description: `Stop the plan after printing this many rows. Zero means no limit.`,
	}

	TableDisplayFormat = FlagInfo{
		Name:        "format",
		EnvVar:      "VEXEC_FORMAT",
		Description: `
Selects how the rows are printed: tsv, csv, table or records. The default
is table when the output is a terminal and tsv otherwise.`,
	}

	GraphiteEndpoint = FlagInfo{
		Name:   "graphite-endpoint",
		EnvVar: "VEXEC_GRAPHITE_ENDPOINT",
		Description: `
Push the metrics of the run to this Graphite endpoint, as host:port, once
the plan has finished.`,
	}

	Verbosity = FlagInfo{
		Name:        "v",
		Description: `Log verbosity level.`,
	}
)
