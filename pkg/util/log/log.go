// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package log implements leveled, context-tagged logging. Every entry carries
// the log tags found in its context, and arguments are formatted through the
// redact package so that values not marked safe can be stripped before logs
// leave the process.
package log

import (
	"context"
	"io"
	"os"
	"sync/atomic"

	"github.com/cockroachdb/vexec/pkg/util/syncutil"
)

// Severity identifies the sort of log: info, warning etc.
type Severity int32

const (
	// SeverityInfo is used for informational messages.
	SeverityInfo Severity = iota
	// SeverityWarning is used for situations that may require attention.
	SeverityWarning
	// SeverityError is used for failures that are handled.
	SeverityError
)

// letter returns the single-letter prefix used in entry headers.
func (s Severity) letter() byte {
	switch s {
	case SeverityWarning:
		return 'W'
	case SeverityError:
		return 'E'
	}
	return 'I'
}

// loggerT holds the process-wide logging configuration.
type loggerT struct {
	mu struct {
		syncutil.Mutex
		w io.Writer
	}
	// vmodule is the current verbosity level.
	vmodule int32
	// redactable controls whether redaction markers are kept in the output.
	redactable atomic.Bool
}

var mainLog = func() *loggerT {
	l := &loggerT{}
	l.mu.w = os.Stderr
	return l
}()

// SetOutput redirects log output to w and returns a function that restores
// the previous writer.
func SetOutput(w io.Writer) (restore func()) {
	mainLog.mu.Lock()
	defer mainLog.mu.Unlock()
	prev := mainLog.mu.w
	mainLog.mu.w = w
	return func() {
		mainLog.mu.Lock()
		defer mainLog.mu.Unlock()
		mainLog.mu.w = prev
	}
}

// SetRedactable controls whether redaction markers are kept in the output.
func SetRedactable(redactable bool) {
	mainLog.redactable.Store(redactable)
}

// SetVModule sets the global verbosity level and returns the previous one.
func SetVModule(level int32) int32 {
	return atomic.SwapInt32(&mainLog.vmodule, level)
}

// V returns true if the logging verbosity is set to the specified level or
// higher.
func V(level int32) bool {
	return atomic.LoadInt32(&mainLog.vmodule) >= level
}

// Infof logs to the INFO log.
func Infof(ctx context.Context, format string, args ...interface{}) {
	addStructured(ctx, SeverityInfo, 1, format, args)
}

// Warningf logs to the WARNING log.
func Warningf(ctx context.Context, format string, args ...interface{}) {
	addStructured(ctx, SeverityWarning, 1, format, args)
}

// Errorf logs to the ERROR log.
func Errorf(ctx context.Context, format string, args ...interface{}) {
	addStructured(ctx, SeverityError, 1, format, args)
}

// VEventf logs to the INFO log if the verbosity is at least level.
func VEventf(ctx context.Context, level int32, format string, args ...interface{}) {
	if V(level) {
		addStructured(ctx, SeverityInfo, 1, format, args)
	}
}

// VInfof is an alias of VEventf kept for symmetry with Infof.
func VInfof(ctx context.Context, level int32, format string, args ...interface{}) {
	if V(level) {
		addStructured(ctx, SeverityInfo, 1, format, args)
	}
}
