package conflict

import (
	"context"
	"fmt"
)

// Executor turns a strategy into a ResolutionSink call. It does no I/O of
// its own.
type Executor struct {
	sink ResolutionSink
}

// NewExecutor creates an executor that reports outcomes to sink.
func NewExecutor(sink ResolutionSink) *Executor {
	return &Executor{sink: sink}
}

// Execute applies s to f. f must carry the content the strategy needs:
// OriginalContent for KeepGenerated, CurrentContent (optional) for KeepUser.
func (x *Executor) Execute(ctx context.Context, f File, s Strategy) error {
	switch s.(type) {
	case KeepUser:
		return x.acceptCurrent(ctx, f)
	case KeepGenerated:
		return x.restoreGenerated(ctx, f)
	case Merge:
		return &Error{Kind: KindUnsupportedStrategy, Path: f.Path, Msg: "merge", Err: ErrUnsupportedStrategy}
	default:
		return &Error{Kind: KindUnsupportedStrategy, Path: f.Path, Msg: fmt.Sprintf("unknown strategy %s", strategyName(s)), Err: ErrUnsupportedStrategy}
	}
}

// acceptCurrent records the current content as the new baseline. For a
// deleted file the hash is empty and the deletion itself is accepted.
func (x *Executor) acceptCurrent(ctx context.Context, f File) error {
	hash := ""
	if f.CurrentHash != nil {
		hash = *f.CurrentHash
	}
	if err := x.sink.AcceptCurrentAsBaseline(ctx, f.Path, hash, f.CurrentContent); err != nil {
		return &Error{Kind: KindResolution, Path: f.Path, Msg: "accept current as baseline", Err: err}
	}
	return nil
}

// restoreGenerated rewrites (or re-creates) the file with the generated
// content. The stored baseline already matches and is left alone.
func (x *Executor) restoreGenerated(ctx context.Context, f File) error {
	if f.OriginalContent == nil {
		return &Error{Kind: KindResolution, Path: f.Path, Err: ErrNoOriginalContent}
	}
	if err := x.sink.RestoreGenerated(ctx, f.Path, *f.OriginalContent); err != nil {
		return &Error{Kind: KindResolution, Path: f.Path, Msg: "restore generated content", Err: err}
	}
	return nil
}
