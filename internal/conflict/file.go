package conflict

import (
	"time"

	"driftwatch/internal/diff"
)

// Status is the derived divergence state of a tracked file.
type Status string

const (
	StatusUnchanged Status = "unchanged"
	StatusModified  Status = "modified"
	StatusDeleted   Status = "deleted"
)

// TrackedFile is what the content source knows about a generated file.
type TrackedFile struct {
	Path            string
	OriginalHash    string
	OriginalContent *string // nil when not retained
	GeneratedAt     time.Time
	FeatureID       string
}

// CurrentFile is the present on-disk state of a file. A nil *CurrentFile
// means the file is absent.
type CurrentFile struct {
	Hash    string
	Content *string // nil when omitted (e.g. too large to keep)
}

// File is one tracked file under review. Status is always derived by
// NewFile and never set by callers.
type File struct {
	Path         string
	Status       Status
	OriginalHash string
	CurrentHash  *string // nil when deleted

	// Populated only for files under inspection.
	OriginalContent *string
	CurrentContent  *string

	GeneratedAt time.Time
	FeatureID   string
}

// NewFile derives a File from content-source data. cur == nil means the file
// no longer exists. A present file missing either hash cannot be classified
// and yields an invariant violation.
func NewFile(t TrackedFile, cur *CurrentFile) (File, error) {
	if t.Path == "" {
		return File{}, &Error{Kind: KindInvariant, Msg: "tracked file has empty path", Err: ErrInvariantViolation}
	}

	f := File{
		Path:         t.Path,
		OriginalHash: t.OriginalHash,
		GeneratedAt:  t.GeneratedAt,
		FeatureID:    t.FeatureID,
	}

	switch {
	case cur == nil:
		f.Status = StatusDeleted
	case t.OriginalHash == "":
		return File{}, &Error{Kind: KindInvariant, Path: t.Path, Msg: "current file has no original hash", Err: ErrInvariantViolation}
	case cur.Hash == "":
		return File{}, &Error{Kind: KindInvariant, Path: t.Path, Msg: "current file has no hash", Err: ErrInvariantViolation}
	case cur.Hash == t.OriginalHash:
		f.Status = StatusUnchanged
		f.CurrentHash = ptr(cur.Hash)
	default:
		f.Status = StatusModified
		f.CurrentHash = ptr(cur.Hash)
	}
	return f, nil
}

// WithContent returns a copy of f carrying the given inspection content.
func (f File) WithContent(original, current *string) File {
	f.OriginalContent = original
	f.CurrentContent = current
	return f
}

// Diff diffs the loaded contents. Only a deleted file may lack current
// content; any other missing side yields ErrContentUnavailable.
func (f File) Diff() ([]diff.Line, error) {
	if err := f.contentAvailable(); err != nil {
		return nil, err
	}
	return diff.Lines(diff.SplitLines(deref(f.OriginalContent)), diff.SplitLines(deref(f.CurrentContent))), nil
}

func (f File) contentAvailable() error {
	var side string
	switch {
	case f.OriginalContent == nil:
		side = "generated"
	case f.CurrentContent == nil && f.Status != StatusDeleted:
		side = "current"
	default:
		return nil
	}
	return &Error{Kind: KindContentUnavailable, Path: f.Path, Msg: side + " content", Err: ErrContentUnavailable}
}

func ptr[T any](v T) *T {
	return &v
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
