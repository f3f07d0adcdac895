// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package log

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/cockroachdb/logtags"
	"github.com/cockroachdb/redact"
	"github.com/cockroachdb/vexec/pkg/util/timeutil"
)

// FormatWithContextTags formats the string and prepends the context
// tags.
//
// Redaction markers are *not* inserted. The resulting
// string is generally unsafe for reporting.
func FormatWithContextTags(ctx context.Context, format string, args ...interface{}) string {
	var buf strings.Builder
	formatTags(ctx, &buf)
	buf.WriteString(redact.Sprintf(format, args...).StripMarkers())
	return buf.String()
}

// formatTags writes the log tags of ctx as "[k1=v1,k2] " into buf, if any.
func formatTags(ctx context.Context, buf *strings.Builder) {
	tags := logtags.FromContext(ctx)
	if tags == nil {
		return
	}
	buf.WriteByte('[')
	for i, t := range tags.Get() {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(t.Key())
		if v := t.Value(); v != nil {
			buf.WriteByte('=')
			buf.WriteString(t.ValueStr())
		}
	}
	buf.WriteString("] ")
}

// addStructured creates a structured log entry and writes it to the main
// logger's output.
func addStructured(
	ctx context.Context, sev Severity, depth int, format string, args []interface{},
) {
	msg := redact.Sprintf(format, args...)
	var buf strings.Builder
	buf.WriteByte(sev.letter())
	buf.WriteString(timeutil.Now().Format(timeutil.LogTimeFormat))
	if _, file, line, ok := runtime.Caller(depth + 1); ok {
		fmt.Fprintf(&buf, " %s:%d ", filepath.Base(file), line)
	} else {
		buf.WriteString(" ???:0 ")
	}
	formatTags(ctx, &buf)
	if mainLog.redactable.Load() {
		buf.WriteString(string(msg))
	} else {
		buf.WriteString(msg.StripMarkers())
	}
	buf.WriteByte('\n')

	mainLog.mu.Lock()
	defer mainLog.mu.Unlock()
	_, _ = mainLog.mu.w.Write([]byte(buf.String()))
}
