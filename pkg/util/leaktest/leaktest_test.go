// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package leaktest

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInterestingGoroutines(t *testing.T) {
	before := interestingGoroutines()
	stop := make(chan struct{})
	started := make(chan struct{})
	go func() {
		close(started)
		<-stop
	}()
	<-started
	var added int
	for id := range interestingGoroutines() {
		if _, ok := before[id]; !ok {
			added++
		}
	}
	close(stop)
	require.Equal(t, 1, added)
}

func TestAfterTestNoLeak(t *testing.T) {
	defer AfterTest(t)()
	done := make(chan struct{})
	go func() { close(done) }()
	<-done
}
