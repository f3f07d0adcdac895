// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package leaktest reports goroutines a test leaves behind.
//
// Usage: defer leaktest.AfterTest(t)()
package leaktest

import (
	"runtime"
	"sort"
	"strings"
	"testing"
	"time"
)

// interestingGoroutines returns the stacks of the running goroutines, keyed
// by goroutine header, skipping the runtime's and the test framework's own.
func interestingGoroutines() map[string]string {
	buf := make([]byte, 2<<20)
	buf = buf[:runtime.Stack(buf, true)]
	gs := make(map[string]string)
	for _, g := range strings.Split(string(buf), "\n\n") {
		sl := strings.SplitN(g, "\n", 2)
		if len(sl) != 2 {
			continue
		}
		stack := strings.TrimSpace(sl[1])
		if stack == "" ||
			strings.Contains(stack, "testing.(*T).Run") ||
			strings.Contains(stack, "testing.tRunner") ||
			strings.Contains(stack, "testing.RunTests") ||
			strings.Contains(stack, "testing.Main(") ||
			strings.Contains(stack, "created by runtime.gc") ||
			strings.Contains(stack, "os/signal.signal_recv") ||
			strings.Contains(stack, "leaktest.interestingGoroutines") {
			continue
		}
		// The header carries the goroutine's state, which changes while it
		// runs; key on its id only.
		id := strings.Fields(sl[0])
		if len(id) < 2 {
			continue
		}
		gs[id[1]] = stack
	}
	return gs
}

// AfterTest snapshots the running goroutines and returns a func that fails
// t if goroutines started since then are still running a few seconds later.
func AfterTest(t testing.TB) func() {
	t.Helper()
	orig := interestingGoroutines()
	return func() {
		t.Helper()
		if t.Failed() {
			return
		}
		deadline := time.Now().Add(5 * time.Second)
		for {
			var leaked []string
			for id, stack := range interestingGoroutines() {
				if _, ok := orig[id]; !ok {
					leaked = append(leaked, stack)
				}
			}
			if len(leaked) == 0 {
				return
			}
			if time.Now().After(deadline) {
				sort.Strings(leaked)
				for _, g := range leaked {
					t.Errorf("leaked goroutine: %v", g)
				}
				return
			}
			time.Sleep(50 * time.Millisecond)
		}
	}
}
