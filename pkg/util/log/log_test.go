// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package log

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/logtags"
	"github.com/cockroachdb/redact"
	"github.com/stretchr/testify/require"
)

func TestLogIncludesTags(t *testing.T) {
	sc := Scope(t)
	defer sc.Close(t)

	ctx := logtags.AddTag(context.Background(), "frag", 3)
	ctx = logtags.AddTag(ctx, "scan", nil)
	Infof(ctx, "opened %d readers", 2)
	Warningf(ctx, "slow")

	lines := strings.Split(strings.TrimSpace(sc.Contents()), "\n")
	require.Len(t, lines, 2)
	require.True(t, strings.HasPrefix(lines[0], "I"))
	require.Contains(t, lines[0], "log_test.go:")
	require.Contains(t, lines[0], "[frag=3,scan] opened 2 readers")
	require.True(t, strings.HasPrefix(lines[1], "W"))
}

func TestLogRedactable(t *testing.T) {
	sc := Scope(t)
	defer sc.Close(t)
	defer SetRedactable(false)

	Infof(context.Background(), "path %s count %d", "secret", redact.Safe(7))
	require.Contains(t, sc.Contents(), "path secret count 7")

	SetRedactable(true)
	Infof(context.Background(), "path %s", "secret")
	require.Contains(t, sc.Contents(), "path ‹secret›")
}

func TestVEventf(t *testing.T) {
	sc := Scope(t)
	defer sc.Close(t)

	VEventf(context.Background(), 2, "hidden")
	require.NotContains(t, sc.Contents(), "hidden")
	SetVModule(2)
	require.True(t, V(1))
	VEventf(context.Background(), 2, "shown")
	require.Contains(t, sc.Contents(), "shown")
}

func TestFormatWithContextTags(t *testing.T) {
	ctx := logtags.AddTag(context.Background(), "op", "mergejoin")
	require.Equal(t, "[op=mergejoin] hello 1", FormatWithContextTags(ctx, "hello %d", 1))
	require.Equal(t, "hello", FormatWithContextTags(context.Background(), "hello"))
}

func TestEveryN(t *testing.T) {
	start := time.Now()
	e := Every(time.Minute)
	require.True(t, e.shouldLog(start))
	require.False(t, e.shouldLog(start.Add(time.Second)))
	require.True(t, e.shouldLog(start.Add(time.Minute)))

	var zero EveryN
	require.True(t, zero.ShouldLog())
	require.True(t, zero.ShouldLog())
}
