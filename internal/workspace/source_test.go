package workspace

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"driftwatch/internal/conflict"
	"driftwatch/internal/store"
)

func setup(t *testing.T) (*Source, *store.BaselineStore, string) {
	t.Helper()
	root := t.TempDir()
	bs, err := store.NewBaselineStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { bs.Close() })

	src, err := NewSource(root, "proj", bs)
	require.NoError(t, err)
	return src, bs, root
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	abs := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0755))
	require.NoError(t, os.WriteFile(abs, []byte(content), 0644))
}

func readFile(t *testing.T, root, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	require.NoError(t, err)
	return string(data)
}

func TestHashContent(t *testing.T) {
	a := HashContent([]byte("hello"))
	assert.True(t, strings.HasPrefix(a, HashPrefix))
	assert.Len(t, a, len(HashPrefix)+64)
	assert.Equal(t, a, HashContent([]byte("hello")))
	assert.NotEqual(t, a, HashContent([]byte("hello\n")))
}

func TestNewSource_RejectsBadRoot(t *testing.T) {
	_, err := NewSource(filepath.Join(t.TempDir(), "missing"), "p", nil)
	assert.Error(t, err)

	file := filepath.Join(t.TempDir(), "f")
	require.NoError(t, os.WriteFile(file, nil, 0644))
	_, err = NewSource(file, "p", nil)
	assert.Error(t, err)
}

func TestResolve(t *testing.T) {
	src, _, root := setup(t)

	abs, err := src.Resolve("src/main.go")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "src", "main.go"), abs)

	for _, bad := range []string{"", ".", "..", "../x", "a/../../x", "/etc/passwd"} {
		_, err := src.Resolve(bad)
		assert.True(t, errors.Is(err, ErrOutsideRoot), bad)
	}
}

func TestNormalize(t *testing.T) {
	src, _, root := setup(t)

	rel, err := src.Normalize(filepath.Join(root, "a", "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "a/b.txt", rel)

	rel, err = src.Normalize("./a//c.txt")
	require.NoError(t, err)
	assert.Equal(t, "a/c.txt", rel)

	_, err = src.Normalize(filepath.Join(root, ".."))
	assert.True(t, errors.Is(err, ErrOutsideRoot))
}

func TestReadCurrent(t *testing.T) {
	src, _, root := setup(t)
	ctx := context.Background()
	writeFile(t, root, "a.txt", "line1\nline2")

	cur, err := src.ReadCurrent(ctx, "a.txt")
	require.NoError(t, err)
	require.NotNil(t, cur)
	assert.Equal(t, HashContent([]byte("line1\nline2")), cur.Hash)
	require.NotNil(t, cur.Content)
	assert.Equal(t, "line1\nline2", *cur.Content)

	cur, err = src.ReadCurrent(ctx, "missing.txt")
	require.NoError(t, err)
	assert.Nil(t, cur, "missing file is absent, not an error")

	_, err = src.ReadCurrent(ctx, "../escape")
	assert.Error(t, err)
}

func TestReadCurrent_LargeFileOmitsContent(t *testing.T) {
	src, _, root := setup(t)
	src.MaxContentBytes = 8
	body := strings.Repeat("x", 100)
	writeFile(t, root, "big.txt", body)

	cur, err := src.ReadCurrent(context.Background(), "big.txt")
	require.NoError(t, err)
	require.NotNil(t, cur)
	assert.Nil(t, cur.Content)
	assert.Equal(t, HashContent([]byte(body)), cur.Hash, "streamed hash matches one-shot hash")
}

func TestRestoreGenerated(t *testing.T) {
	src, _, root := setup(t)
	ctx := context.Background()

	writeFile(t, root, "a.txt", "edited")
	require.NoError(t, os.Chmod(filepath.Join(root, "a.txt"), 0600))

	require.NoError(t, src.RestoreGenerated(ctx, "a.txt", "generated"))
	assert.Equal(t, "generated", readFile(t, root, "a.txt"))
	info, err := os.Stat(filepath.Join(root, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm(), "mode is preserved")

	require.NoError(t, src.RestoreGenerated(ctx, "a.txt", "generated"), "idempotent")

	require.NoError(t, src.RestoreGenerated(ctx, "deep/new/b.txt", "re-created"))
	assert.Equal(t, "re-created", readFile(t, root, "deep/new/b.txt"))

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.Contains(e.Name(), ".tmp-"), "temp file left behind: %s", e.Name())
	}
}

func TestTrackAndAccept(t *testing.T) {
	src, bs, root := setup(t)
	ctx := context.Background()
	writeFile(t, root, "a.txt", "v1")

	tracked, err := src.Track(ctx, "a.txt", "feat-9")
	require.NoError(t, err)
	assert.Equal(t, HashContent([]byte("v1")), tracked.OriginalHash)

	base, err := bs.Baseline(ctx, "proj", "a.txt")
	require.NoError(t, err)
	assert.Equal(t, "v1", *base.OriginalContent)
	assert.Equal(t, "feat-9", base.FeatureID)

	newHash := HashContent([]byte("v2"))
	v2 := "v2"
	require.NoError(t, src.AcceptCurrentAsBaseline(ctx, "a.txt", newHash, &v2))
	base, err = bs.Baseline(ctx, "proj", "a.txt")
	require.NoError(t, err)
	assert.Equal(t, newHash, base.OriginalHash)

	require.NoError(t, src.AcceptCurrentAsBaseline(ctx, "a.txt", "", nil))
	_, err = bs.Baseline(ctx, "proj", "a.txt")
	assert.True(t, errors.Is(err, store.ErrNotTracked), "accepted deletion drops the baseline")

	_, err = src.Track(ctx, "missing.txt", "")
	assert.Error(t, err)
}

// The engine running against real files and a real baseline store.
func TestManagerEndToEnd(t *testing.T) {
	src, bs, root := setup(t)
	ctx := context.Background()

	writeFile(t, root, "src/main.txt", "a\nb\nc")
	writeFile(t, root, "src/gone.txt", "bye")
	writeFile(t, root, "src/same.txt", "same")
	for _, p := range []string{"src/main.txt", "src/gone.txt", "src/same.txt"} {
		_, err := src.Track(ctx, p, "")
		require.NoError(t, err)
	}

	writeFile(t, root, "src/main.txt", "a\nc\nd")
	require.NoError(t, os.Remove(filepath.Join(root, "src/gone.txt")))

	m := conflict.NewManager(src, src, conflict.Options{Recorder: bs})
	defer m.Close()
	require.NoError(t, m.CheckForConflicts(ctx, "proj"))

	s := m.Summary()
	assert.Equal(t, []string{"src/main.txt"}, s.ModifiedFiles)
	assert.Equal(t, []string{"src/gone.txt"}, s.DeletedFiles)
	assert.Equal(t, []string{"src/same.txt"}, s.UnchangedFiles)

	res := m.ResolveConflict(ctx, "src/gone.txt", conflict.KeepGenerated{})
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "bye", readFile(t, root, "src/gone.txt"))

	require.NoError(t, m.AcknowledgeEdits(ctx, []string{"src/main.txt"}))
	assert.Empty(t, m.Files())

	// A fresh pass agrees: the restore and the accepted edit are both clean.
	require.NoError(t, m.CheckForConflicts(ctx, "proj"))
	assert.Empty(t, m.Files())
	assert.Equal(t, 3, m.Summary().TotalFiles)

	history, err := bs.Resolutions(ctx, "proj", 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "src/main.txt", history[0].Path)
	assert.Equal(t, "keep-user", history[0].Strategy)
}
