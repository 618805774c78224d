package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileSinkWritesAtomically(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	sink, err := NewFileSink(dir)
	require.NoError(t, err)

	path, err := sink.Write(context.Background(), "a.ts", [][]byte{[]byte("ab"), []byte("cd")})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "a.ts"), path)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "abcd", string(got))
}

func TestFileSinkCancelledLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewFileSink(dir)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = sink.Write(ctx, "a.ts", [][]byte{[]byte("ab")})
	require.ErrorIs(t, err, context.Canceled)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSanitizeName(t *testing.T) {
	tests := map[string]string{
		"clip.ts":          "clip.ts",
		"../../etc/passwd": "_.._etc_passwd",
		"a\\b:c.ts":        "a_b_c.ts",
		"  spaced.ts  ":    "spaced.ts",
		"new\nline.ts":     "newline.ts",
		"cafe\u0301.ts":    "caf\u00e9.ts",
		"...":              "",
		"":                 "",
	}
	for in, want := range tests {
		assert.Equal(t, want, SanitizeName(in), "SanitizeName(%q)", in)
	}

	long := SanitizeName(strings.Repeat("é", 150))
	assert.LessOrEqual(t, len(long), maxNameBytes)
	assert.True(t, strings.HasPrefix(strings.Repeat("é", 150), long))
}

func TestDefaultOutputName(t *testing.T) {
	assert.Equal(t, "video_m3u8_1000.ts", DefaultOutputName(time.UnixMilli(1000)))
}
