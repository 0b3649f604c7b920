package conflict

import "context"

// ContentSource supplies generation-time and present-day state of tracked
// files. Hashes are only ever compared for equality.
type ContentSource interface {
	ListTrackedFiles(ctx context.Context, projectID string) ([]TrackedFile, error)

	// ReadCurrent returns nil, nil when the file does not exist.
	ReadCurrent(ctx context.Context, path string) (*CurrentFile, error)
}

// ResolutionSink persists resolution outcomes. Both calls must be
// idempotent.
type ResolutionSink interface {
	// RestoreGenerated writes the generated content back to disk, creating
	// the file if it was deleted.
	RestoreGenerated(ctx context.Context, path, originalContent string) error

	// AcceptCurrentAsBaseline makes the current content the new baseline.
	// An empty currentHash accepts the file's deletion.
	AcceptCurrentAsBaseline(ctx context.Context, path, currentHash string, currentContent *string) error
}

// ResolutionRecorder persists the outcome of each resolution attempt.
type ResolutionRecorder interface {
	RecordResolution(ctx context.Context, projectID string, r Result) error
}
