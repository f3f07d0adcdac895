// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/cockroachdb/vexec/pkg/util/timeutil"
)

// Options provides reusable configuration of Retry objects.
type Options struct {
	InitialBackoff      time.Duration // Default retry backoff interval
	MaxBackoff          time.Duration // Maximum retry backoff interval
	Multiplier          float64       // Default backoff constant
	MaxRetries          int           // Maximum number of attempts (0 for infinite)
	RandomizationFactor float64       // Randomize the backoff interval by constant
	Closer              <-chan struct{}
}

// Retry implements the public methods necessary to control an exponential-
// backoff retry loop.
type Retry struct {
	opts           Options
	ctxDoneChan    <-chan struct{}
	currentAttempt int
	isReset        bool
}

// Start returns a new Retry initialized to some default values. The Retry can
// then be used in an exponential-backoff retry loop.
func Start(opts Options) Retry {
	return StartWithCtx(context.Background(), opts)
}

// StartWithCtx returns a new Retry initialized to some default values. The
// Retry can then be used in an exponential-backoff retry loop. If the provided
// context is canceled (see Context.Done), the retry loop ends early.
func StartWithCtx(ctx context.Context, opts Options) Retry {
	if opts.InitialBackoff == 0 {
		opts.InitialBackoff = 50 * time.Millisecond
	}
	if opts.MaxBackoff == 0 {
		opts.MaxBackoff = 2 * time.Second
	}
	if opts.RandomizationFactor == 0 {
		opts.RandomizationFactor = 0.15
	}
	if opts.Multiplier == 0 {
		opts.Multiplier = 2
	}

	var r Retry
	r.opts = opts
	r.ctxDoneChan = ctx.Done()
	r.Reset()
	return r
}

// Reset resets the Retry to its initial state, meaning that the next call to
// Next will return true immediately and subsequent calls will behave as if
// they had followed the very first attempt (i.e. their backoffs will be
// short).
func (r *Retry) Reset() {
	select {
	case <-r.opts.Closer:
		// When the closer has fired, you can't keep going.
	case <-r.ctxDoneChan:
		// When the context was canceled, you can't keep going.
	default:
		r.currentAttempt = 0
		r.isReset = true
	}
}

// CurrentAttempt returns the current attempt.
func (r *Retry) CurrentAttempt() int {
	return r.currentAttempt
}

func (r *Retry) retryIn() time.Duration {
	backoff := float64(r.opts.InitialBackoff) * math.Pow(r.opts.Multiplier, float64(r.currentAttempt))
	if maxBackoff := float64(r.opts.MaxBackoff); backoff > maxBackoff {
		backoff = maxBackoff
	}

	delta := r.opts.RandomizationFactor * backoff
	// Get a random number in the range [backoff - delta, backoff + delta].
	return time.Duration(backoff - delta + rand.Float64()*(2*delta+1))
}

// Next returns whether the retry loop should continue, and blocks for the
// appropriate length of time before yielding back to the caller. If a context
// is present, Next will return false if the context is done.
func (r *Retry) Next() bool {
	if r.isReset {
		r.isReset = false
		return true
	}

	if r.opts.MaxRetries > 0 && r.currentAttempt >= r.opts.MaxRetries {
		return false
	}

	if !timeutil.Wait(r.retryIn(), r.opts.Closer, r.ctxDoneChan) {
		return false
	}
	r.currentAttempt++
	return true
}
