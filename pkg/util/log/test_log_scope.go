// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package log

import (
	"bytes"
	"testing"

	"github.com/cockroachdb/vexec/pkg/util/syncutil"
)

// TestLogScope captures log output for the duration of a test.
type TestLogScope struct {
	restore func()
	prevV   int32
	buf     *lockedBuffer
}

type lockedBuffer struct {
	syncutil.Mutex
	bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.Lock()
	defer b.Unlock()
	return b.Buffer.Write(p)
}

// Scope redirects log output into an in-memory buffer until Close is called.
// Usage: defer log.Scope(t).Close(t)
func Scope(t testing.TB) *TestLogScope {
	t.Helper()
	buf := &lockedBuffer{}
	return &TestLogScope{restore: SetOutput(buf), prevV: SetVModule(0), buf: buf}
}

// Contents returns everything logged since the scope was opened.
func (s *TestLogScope) Contents() string {
	s.buf.Lock()
	defer s.buf.Unlock()
	return s.buf.String()
}

// Close restores the previous log output. If the test failed, the captured
// output is replayed through t.Log.
func (s *TestLogScope) Close(t testing.TB) {
	t.Helper()
	s.restore()
	SetVModule(s.prevV)
	if t.Failed() {
		t.Log(s.Contents())
	}
}
