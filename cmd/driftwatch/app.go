package main

import (
	"context"
	"fmt"

	"driftwatch/internal/conflict"
	"driftwatch/internal/store"
	"driftwatch/internal/workspace"
)

// app wires the store, the workspace source and the conflict manager for one
// command invocation.
type app struct {
	store   *store.BaselineStore
	source  *workspace.Source
	manager *conflict.Manager
	project string
}

func (o *globalOptions) openApp() (*app, error) {
	bs, err := store.NewBaselineStore(o.cfg.DatabasePath())
	if err != nil {
		return nil, fmt.Errorf("open baseline store: %w", err)
	}
	src, err := workspace.NewSource(o.cfg.Workspace, o.cfg.ProjectID, bs)
	if err != nil {
		bs.Close()
		return nil, err
	}
	src.MaxContentBytes = o.cfg.Detection.MaxContentBytes

	m := conflict.NewManager(src, src, conflict.Options{
		ReadConcurrency: o.cfg.Detection.ReadConcurrency,
		MaxDiffLines:    o.cfg.Diff.MaxLines,
		Recorder:        bs,
	})
	return &app{store: bs, source: src, manager: m, project: o.cfg.ProjectID}, nil
}

func (a *app) Close() {
	a.manager.Close()
	a.store.Close()
}

// detect runs a detection pass for the configured project.
func (a *app) detect(ctx context.Context) error {
	return a.manager.CheckForConflicts(ctx, a.project)
}

// normalizeAll maps command-line paths to workspace-relative keys.
func (a *app) normalizeAll(paths []string) ([]string, error) {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		rel, err := a.source.Normalize(p)
		if err != nil {
			return nil, err
		}
		out = append(out, rel)
	}
	return out, nil
}

func (o *globalOptions) context() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), o.timeout)
}
