// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package flowinfra

import (
	"context"
	"runtime"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/vexec/pkg/settings"
	"github.com/cockroachdb/vexec/pkg/util/log"
	"golang.org/x/sync/errgroup"
)

// settingMaxRunningFragments limits the number of fragments of one
// RunFragments call that run at the same time.
var settingMaxRunningFragments = settings.RegisterIntSetting(
	"sql.exec.max_running_fragments",
	"the value - when positive - used as is, or the value - when negative - "+
		"multiplied by the number of CPUs, to determine the maximum number of "+
		"fragments that run concurrently",
	-4,
	func(v int64) error {
		if v == 0 {
			return errors.New("cannot be set to zero")
		}
		return nil
	},
)

// getMaxRunningFragments returns the absolute limit on concurrently running
// fragments.
func getMaxRunningFragments(sv *settings.Values) int {
	maxRunning := settingMaxRunningFragments.Get(sv)
	if maxRunning < 0 {
		// GOMAXPROCS reflects cgroup limits where NumCPU does not.
		return int(-maxRunning) * runtime.GOMAXPROCS(0)
	}
	return int(maxRunning)
}

// FragmentRun pairs a fragment with the receiver of its output.
type FragmentRun struct {
	Fragment *Fragment
	Receiver BatchReceiver
}

// RunFragments runs every fragment on its own goroutine and waits for all of
// them. The first error kills the other fragments and is returned. All
// fragments must share the server config of sv, and so its memory monitor.
func RunFragments(ctx context.Context, sv *settings.Values, runs ...FragmentRun) error {
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(getMaxRunningFragments(sv))
	log.VEventf(ctx, 1, "running %d fragments", len(runs))
	for _, run := range runs {
		run := run
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				// An earlier fragment failed before this one started.
				run.Fragment.Kill()
				return errors.CombineErrors(err, run.Fragment.Root.Close(ctx))
			}
			return run.Fragment.Run(gCtx, run.Receiver)
		})
	}
	return g.Wait()
}
