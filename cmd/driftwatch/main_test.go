package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// run executes the CLI against workspace ws and returns its output.
func run(t *testing.T, ws string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--workspace", ws}, args...))
	err := root.Execute()
	return out.String(), err
}

func mustRun(t *testing.T, ws string, args ...string) string {
	t.Helper()
	out, err := run(t, ws, args...)
	require.NoError(t, err, out)
	return out
}

func write(t *testing.T, ws, rel, content string) {
	t.Helper()
	p := filepath.Join(ws, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
}

// trackedWorkspace returns a workspace with src/main.txt and src/gone.txt
// tracked and then edited and deleted.
func trackedWorkspace(t *testing.T) string {
	t.Helper()
	ws := t.TempDir()
	write(t, ws, "src/main.txt", "a\nb\nc")
	write(t, ws, "src/gone.txt", "bye")
	write(t, ws, "src/same.txt", "same")
	mustRun(t, ws, "track", "src/main.txt", "src/gone.txt", "src/same.txt", "--feature", "feat-1")

	write(t, ws, "src/main.txt", "a\nc\nd")
	require.NoError(t, os.Remove(filepath.Join(ws, "src", "gone.txt")))
	return ws
}

func TestInit(t *testing.T) {
	ws := t.TempDir()

	out := mustRun(t, ws, "--project", "demo", "init")
	assert.Contains(t, out, "Wrote")
	data, err := os.ReadFile(filepath.Join(ws, ".driftwatch", "config.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "project_id: demo")

	out = mustRun(t, ws, "init")
	assert.Contains(t, out, "already exists")
}

func TestCheck(t *testing.T) {
	ws := trackedWorkspace(t)

	out := mustRun(t, ws, "check")
	assert.Contains(t, out, "3 tracked file(s): 1 modified, 1 deleted, 1 unchanged")
	assert.Contains(t, out, "src/main.txt")
	assert.Contains(t, out, "src/gone.txt")
	assert.NotContains(t, out, "src/same.txt")
	assert.Contains(t, out, "feat-1")

	_, err := run(t, ws, "check", "--fail-on-drift")
	assert.True(t, errors.Is(err, errDrift))
}

func TestCheck_Clean(t *testing.T) {
	ws := t.TempDir()
	write(t, ws, "a.txt", "x")
	mustRun(t, ws, "track", "a.txt")

	out := mustRun(t, ws, "check", "--fail-on-drift")
	assert.Contains(t, out, "no drift")
}

func TestDiff(t *testing.T) {
	ws := trackedWorkspace(t)

	out := mustRun(t, ws, "diff", "src/main.txt")
	assert.Contains(t, out, "--- generated/src/main.txt")
	assert.Contains(t, out, "@@ -1,3 +1,3 @@")
	assert.Contains(t, out, "-b")
	assert.Contains(t, out, "+d")

	out = mustRun(t, ws, "diff")
	assert.Contains(t, out, "generated/src/gone.txt")
	assert.Contains(t, out, "-bye")

	out = mustRun(t, ws, "diff", "src/same.txt")
	assert.Contains(t, out, "src/same.txt: no drift")
}

func TestDiff_LineCounts(t *testing.T) {
	ws := trackedWorkspace(t)
	out := mustRun(t, ws, "diff", "src/main.txt")
	assert.Contains(t, out, "+1 -1")

	write(t, ws, "empty.txt", "")
	mustRun(t, ws, "track", "empty.txt")
	require.NoError(t, os.Remove(filepath.Join(ws, "empty.txt")))
	out = mustRun(t, ws, "diff", "empty.txt")
	assert.Contains(t, out, "+0 -0")
	assert.Contains(t, out, "(no line changes)")
}

func TestDiff_ContentNotRetained(t *testing.T) {
	ws := t.TempDir()
	write(t, ws, ".driftwatch/config.yaml", "detection:\n  max_content_bytes: 4\n")
	write(t, ws, "big.txt", "a\nb\nc")
	mustRun(t, ws, "track", "big.txt")
	write(t, ws, "big.txt", "a\nb\nc\nd")

	out := mustRun(t, ws, "diff", "big.txt")
	assert.Contains(t, out, "content not retained")
	assert.NotContains(t, out, "--- generated/big.txt")
}

func TestResolve(t *testing.T) {
	ws := trackedWorkspace(t)

	out := mustRun(t, ws, "resolve", "--strategy", "keep-generated", "src/gone.txt")
	assert.Contains(t, out, "src/gone.txt (keep-generated)")
	data, err := os.ReadFile(filepath.Join(ws, "src", "gone.txt"))
	require.NoError(t, err)
	assert.Equal(t, "bye", string(data))

	out = mustRun(t, ws, "resolve", "--all", "--strategy", "keep-user")
	assert.Contains(t, out, "src/main.txt (keep-user)")

	out = mustRun(t, ws, "check")
	assert.Contains(t, out, "no drift")

	out = mustRun(t, ws, "resolve", "--all")
	assert.Contains(t, out, "Nothing to resolve")

	out = mustRun(t, ws, "history")
	assert.Contains(t, out, "keep-generated")
	assert.Contains(t, out, "keep-user")
	assert.Less(t, strings.Index(out, "src/main.txt"), strings.Index(out, "src/gone.txt"), "newest first")
}

func TestResolve_Errors(t *testing.T) {
	ws := trackedWorkspace(t)

	_, err := run(t, ws, "resolve")
	assert.Error(t, err)
	_, err = run(t, ws, "resolve", "--all", "src/main.txt")
	assert.Error(t, err)
	_, err = run(t, ws, "resolve", "--strategy", "rebase", "src/main.txt")
	assert.Error(t, err)

	out, err := run(t, ws, "resolve", "--strategy", "merge", "src/main.txt")
	require.Error(t, err)
	assert.Contains(t, out, "not supported")
	assert.Contains(t, err.Error(), "1 of 1")

	out, err = run(t, ws, "resolve", "missing.txt")
	require.Error(t, err)
	assert.Contains(t, out, "not_found")

	history := mustRun(t, ws, "history")
	assert.Contains(t, history, "failed")
}

func TestAck(t *testing.T) {
	ws := trackedWorkspace(t)

	out := mustRun(t, ws, "ack", "src/main.txt")
	assert.Contains(t, out, "acknowledged 1 file(s)")

	out = mustRun(t, ws, "check")
	assert.Contains(t, out, "0 modified, 1 deleted")

	_, err := run(t, ws, "ack", "src/same.txt")
	assert.Error(t, err, "an unchanged file cannot be acknowledged")
}

func TestHistory_Empty(t *testing.T) {
	out := mustRun(t, t.TempDir(), "history")
	assert.Contains(t, out, "No resolutions recorded")
}

// syncBuffer is written by the watcher goroutine while the test polls it.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestSetup_CLILoggerFollowsCategoryToggle(t *testing.T) {
	ws := t.TempDir()
	o := &globalOptions{workspace: ws, verbose: true, timeout: time.Minute}
	require.NoError(t, o.setup())
	assert.True(t, o.logger.Core().Enabled(zap.DebugLevel))

	write(t, ws, ".driftwatch/config.yaml", "logging:\n  categories:\n    cli: false\n")
	o = &globalOptions{workspace: ws, verbose: true, timeout: time.Minute}
	require.NoError(t, o.setup())
	assert.False(t, o.logger.Core().Enabled(zap.ErrorLevel), "cli category is switched off")
}

func TestRunWatch_Disabled(t *testing.T) {
	ws := t.TempDir()
	write(t, ws, ".driftwatch/config.yaml", "watch:\n  enabled: false\n")

	_, err := run(t, ws, "watch")
	assert.ErrorIs(t, err, errWatchDisabled)
}

func TestRunWatch(t *testing.T) {
	ws := t.TempDir()
	write(t, ws, "a.txt", "generated")
	mustRun(t, ws, "track", "a.txt")

	o := &globalOptions{workspace: ws, timeout: time.Minute}
	require.NoError(t, o.setup())
	o.cfg.Watch.Debounce = "50ms"

	out := &syncBuffer{}
	cmd := &cobra.Command{}
	cmd.SetOut(out)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runWatch(ctx, o, cmd) }()

	require.Eventually(t, func() bool { return strings.Contains(out.String(), "Watching") }, 5*time.Second, 10*time.Millisecond)
	write(t, ws, "a.txt", "edited")
	require.Eventually(t, func() bool { return strings.Contains(out.String(), "1 modified") }, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}
}
