// Package workspace connects the conflict engine to a directory on disk and
// the baseline store. Source implements both conflict.ContentSource and
// conflict.ResolutionSink.
package workspace

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"driftwatch/internal/conflict"
	"driftwatch/internal/logging"

	"github.com/zeebo/blake3"
)

// HashPrefix tags content hashes with their algorithm.
const HashPrefix = "blake3:"

// DefaultMaxContentBytes bounds how much current content is kept in memory.
const DefaultMaxContentBytes = 1 << 20

// ErrOutsideRoot is returned for paths that resolve outside the workspace.
var ErrOutsideRoot = errors.New("path escapes workspace root")

// Baselines is the subset of the baseline store a Source needs.
type Baselines interface {
	ListTracked(ctx context.Context, projectID string) ([]conflict.TrackedFile, error)
	TrackGenerated(ctx context.Context, projectID string, f conflict.TrackedFile) error
	UpdateBaseline(ctx context.Context, projectID, path, hash string, content *string) error
	DropBaseline(ctx context.Context, projectID, path string) error
}

// Source reads and writes tracked files below a workspace root.
type Source struct {
	root      string
	projectID string
	store     Baselines

	// Files larger than this are hashed but their content is not returned.
	MaxContentBytes int64
}

// NewSource creates a source rooted at root for one project.
func NewSource(root, projectID string, store Baselines) (*Source, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("workspace root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("workspace root %s is not a directory", abs)
	}
	return &Source{root: abs, projectID: projectID, store: store, MaxContentBytes: DefaultMaxContentBytes}, nil
}

// Root returns the absolute workspace root.
func (s *Source) Root() string {
	return s.root
}

// ProjectID returns the project this source serves.
func (s *Source) ProjectID() string {
	return s.projectID
}

// HashContent returns the content hash used for baselines.
func HashContent(data []byte) string {
	sum := blake3.Sum256(data)
	return HashPrefix + hex.EncodeToString(sum[:])
}

// Resolve maps a workspace-relative path to an absolute one.
func (s *Source) Resolve(path string) (string, error) {
	if path == "" || filepath.IsAbs(path) {
		return "", fmt.Errorf("%q: %w", path, ErrOutsideRoot)
	}
	abs := filepath.Join(s.root, filepath.FromSlash(path))
	rel, err := filepath.Rel(s.root, abs)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%q: %w", path, ErrOutsideRoot)
	}
	return abs, nil
}

// Normalize turns a user-supplied path (absolute, or relative to the root)
// into the slash-separated workspace-relative form used as a key.
func (s *Source) Normalize(path string) (string, error) {
	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(s.root, filepath.FromSlash(path))
	}
	rel, err := filepath.Rel(s.root, abs)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%q: %w", path, ErrOutsideRoot)
	}
	return filepath.ToSlash(rel), nil
}

// =============================================================================
// CONTENT SOURCE
// =============================================================================

// ListTrackedFiles returns the baselines of projectID.
func (s *Source) ListTrackedFiles(ctx context.Context, projectID string) ([]conflict.TrackedFile, error) {
	return s.store.ListTracked(ctx, projectID)
}

// ReadCurrent hashes the file on disk. A missing file is reported as absent
// (nil, nil).
func (s *Source) ReadCurrent(ctx context.Context, path string) (*conflict.CurrentFile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	abs, err := s.Resolve(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		// A directory where a file used to be: the file is gone.
		return nil, nil
	}

	if s.MaxContentBytes > 0 && info.Size() > s.MaxContentBytes {
		h := blake3.New()
		if _, err := io.Copy(h, f); err != nil {
			return nil, fmt.Errorf("hash %s: %w", path, err)
		}
		logging.WorkspaceDebug("%s is %d bytes, content omitted", path, info.Size())
		return &conflict.CurrentFile{Hash: HashPrefix + hex.EncodeToString(h.Sum(nil))}, nil
	}

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	content := string(data)
	return &conflict.CurrentFile{Hash: HashContent(data), Content: &content}, nil
}

// =============================================================================
// RESOLUTION SINK
// =============================================================================

// RestoreGenerated writes the generated content back, re-creating the file
// and its parent directories if needed. The write is atomic.
func (s *Source) RestoreGenerated(ctx context.Context, path, originalContent string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	abs, err := s.Resolve(path)
	if err != nil {
		return err
	}
	if err := writeFileAtomic(abs, []byte(originalContent)); err != nil {
		return fmt.Errorf("restore %s: %w", path, err)
	}
	logging.Workspace("Restored generated content of %s", path)
	return nil
}

// AcceptCurrentAsBaseline stores the user's version as the new baseline. An
// empty hash accepts a deletion and stops tracking the path.
func (s *Source) AcceptCurrentAsBaseline(ctx context.Context, path, currentHash string, currentContent *string) error {
	if currentHash == "" {
		if err := s.store.DropBaseline(ctx, s.projectID, path); err != nil {
			return err
		}
		logging.Workspace("Accepted deletion of %s", path)
		return nil
	}
	if err := s.store.UpdateBaseline(ctx, s.projectID, path, currentHash, currentContent); err != nil {
		return err
	}
	logging.Workspace("Accepted user version of %s as baseline", path)
	return nil
}

// =============================================================================
// TRACKING
// =============================================================================

// Track records the file currently at path as freshly generated content.
func (s *Source) Track(ctx context.Context, path, featureID string) (conflict.TrackedFile, error) {
	abs, err := s.Resolve(path)
	if err != nil {
		return conflict.TrackedFile{}, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return conflict.TrackedFile{}, fmt.Errorf("track %s: %w", path, err)
	}

	t := conflict.TrackedFile{
		Path:         path,
		OriginalHash: HashContent(data),
		GeneratedAt:  time.Now(),
		FeatureID:    featureID,
	}
	if s.MaxContentBytes <= 0 || int64(len(data)) <= s.MaxContentBytes {
		content := string(data)
		t.OriginalContent = &content
	}
	if err := s.store.TrackGenerated(ctx, s.projectID, t); err != nil {
		return conflict.TrackedFile{}, err
	}
	logging.Workspace("Tracking %s (%s)", path, t.OriginalHash)
	return t, nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	mode := fs.FileMode(0644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
