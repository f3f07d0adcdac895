// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package timeutil

import "time"

// Wait blocks for d and returns true, unless closer or done fires first, in
// which case it returns false right away. A nil channel never fires.
func Wait(d time.Duration, closer, done <-chan struct{}) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-closer:
		return false
	case <-done:
		return false
	}
}
