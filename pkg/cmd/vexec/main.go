// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// This is the entry point for the vexec binary.
package main

import "github.com/cockroachdb/vexec/pkg/cli"

func main() {
	cli.Main()
}
