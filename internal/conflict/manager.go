// Package conflict tracks divergence between generated files and the user's
// later edits and resolves each divergent file with an explicit strategy.
//
// Manager owns the active conflict set for one review session. It is the
// only writer of that set: every mutation goes through its methods and
// happens under its mutex, while calls to the content source and the
// resolution sink happen outside the lock.
//
// Resolutions are serialized against each other. Each replacement or clear
// of the set bumps a generation counter; a resolution whose sink call
// returns after the set was replaced is reported as Discarded and changes
// nothing.
package conflict

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"driftwatch/internal/diff"
	"driftwatch/internal/logging"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Options tune a Manager. Zero values select defaults.
type Options struct {
	// Concurrent ReadCurrent calls during detection (default 8)
	ReadConcurrency int

	// Files longer than this are not diffed (default 5000)
	MaxDiffLines int

	// Optional persistence for resolution outcomes
	Recorder ResolutionRecorder
}

// Result is the outcome of resolving one file.
type Result struct {
	Path     string
	Strategy Strategy
	Success  bool
	Error    string // empty on success

	// The sink call completed after the conflict set was replaced; the
	// outcome was not applied to the new set.
	Discarded bool
}

// entry pairs the exposed File with the source data needed to resolve it.
type entry struct {
	file    File
	tracked TrackedFile
	current *CurrentFile
}

// full returns the file with all content the executor may need.
func (e *entry) full() File {
	var current *string
	if e.current != nil {
		current = e.current.Content
	}
	return e.file.WithContent(e.tracked.OriginalContent, current)
}

// Manager owns the active conflict set and its summary.
type Manager struct {
	source   ContentSource
	executor *Executor
	opts     Options
	events   eventBus

	// resolveMu serializes resolutions and acknowledgments.
	resolveMu sync.Mutex

	mu           sync.RWMutex
	projectID    string
	sessionID    string
	generation   uint64
	entries      map[string]*entry
	order        []string          // active paths in detection order
	known        map[string]Status // nil until the first detection
	selected     *File
	panelVisible bool
	lastErr      error
}

// NewManager creates a manager reading from source and resolving through
// sink.
func NewManager(source ContentSource, sink ResolutionSink, opts Options) *Manager {
	if opts.ReadConcurrency <= 0 {
		opts.ReadConcurrency = 8
	}
	if opts.MaxDiffLines <= 0 {
		opts.MaxDiffLines = 5000
	}
	return &Manager{
		source:   source,
		executor: NewExecutor(sink),
		opts:     opts,
		entries:  make(map[string]*entry),
	}
}

// =============================================================================
// DETECTION
// =============================================================================

// CheckForConflicts lists every tracked file of the project, reads its
// current state and replaces the active set in one step. On failure the
// previous set is left untouched and the error is kept as the session error.
// Finding at least one divergent file makes the review panel visible.
func (m *Manager) CheckForConflicts(ctx context.Context, projectID string) error {
	timer := logging.StartTimer(logging.CategoryConflict, "CheckForConflicts")
	defer timer.Stop()

	tracked, err := m.source.ListTrackedFiles(ctx, projectID)
	if err != nil {
		return m.detectionFailed(projectID, "list tracked files", err)
	}

	seen := make(map[string]bool, len(tracked))
	for _, t := range tracked {
		if seen[t.Path] {
			return m.detectionFailed(projectID, "malformed source data", fmt.Errorf("duplicate path %q", t.Path))
		}
		seen[t.Path] = true
	}

	currents := make([]*CurrentFile, len(tracked))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.opts.ReadConcurrency)
	for i, t := range tracked {
		g.Go(func() error {
			cur, err := m.source.ReadCurrent(gctx, t.Path)
			if err != nil {
				return fmt.Errorf("read %s: %w", t.Path, err)
			}
			currents[i] = cur
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return m.detectionFailed(projectID, "read current state", err)
	}

	entries := make(map[string]*entry)
	order := make([]string, 0, len(tracked))
	known := make(map[string]Status, len(tracked))
	for i, t := range tracked {
		f, err := NewFile(t, currents[i])
		if err != nil {
			logging.Get(logging.CategoryConflict).Warn("skipping unclassifiable file %q: %v", t.Path, err)
			continue
		}
		known[f.Path] = f.Status
		if f.Status == StatusUnchanged {
			continue
		}
		entries[f.Path] = &entry{file: f, tracked: t, current: currents[i]}
		order = append(order, f.Path)
	}

	m.mu.Lock()
	m.generation++
	m.projectID = projectID
	m.sessionID = uuid.NewString()
	m.entries = entries
	m.order = order
	m.known = known
	m.lastErr = nil
	if m.selected != nil {
		if e, ok := entries[m.selected.Path]; ok {
			f := e.file
			m.selected = &f
		} else {
			m.selected = nil
		}
	}
	if len(order) > 0 {
		m.panelVisible = true
	}
	visible := m.panelVisible
	sessionID := m.sessionID
	m.mu.Unlock()

	logging.Conflict("detection %s for project %s: %d tracked, %d divergent", sessionID, projectID, len(known), len(order))
	logging.Audit(logging.AuditEvent{Type: logging.AuditDetectionRun, ProjectID: projectID, Count: len(order)})

	m.events.emit(Event{Kind: EventDetected, Paths: slices.Clone(order), PanelVisible: visible})
	return nil
}

func (m *Manager) detectionFailed(projectID, msg string, err error) error {
	derr := &Error{Kind: KindDetection, Msg: msg, Err: err}
	m.mu.Lock()
	m.lastErr = derr
	m.mu.Unlock()

	logging.Get(logging.CategoryConflict).Error("detection failed for project %s: %v", projectID, derr)
	logging.Audit(logging.AuditEvent{Type: logging.AuditDetectionFailed, ProjectID: projectID, Error: derr.Error()})
	return derr
}

// =============================================================================
// RESOLUTION
// =============================================================================

// ResolveConflict resolves one file. It never panics and never returns an
// error: failures are carried in the Result and leave the file in the set.
func (m *Manager) ResolveConflict(ctx context.Context, path string, s Strategy) Result {
	m.resolveMu.Lock()
	defer m.resolveMu.Unlock()
	return m.resolve(ctx, path, s)
}

// ResolveAllConflicts resolves every file in the active set, one at a time in
// detection order. A failure does not stop the batch.
func (m *Manager) ResolveAllConflicts(ctx context.Context, s Strategy) []Result {
	m.resolveMu.Lock()
	defer m.resolveMu.Unlock()

	m.mu.RLock()
	paths := slices.Clone(m.order)
	m.mu.RUnlock()

	results := make([]Result, 0, len(paths))
	for _, path := range paths {
		results = append(results, m.resolve(ctx, path, s))
	}
	return results
}

// resolve requires resolveMu.
func (m *Manager) resolve(ctx context.Context, path string, s Strategy) Result {
	res := Result{Path: path, Strategy: s}

	m.mu.RLock()
	e, ok := m.entries[path]
	var target File
	if ok {
		target = e.full()
	}
	gen, projectID := m.generation, m.projectID
	m.mu.RUnlock()

	if !ok {
		res.Error = (&Error{Kind: KindNotFound, Path: path, Err: ErrNotFound}).Error()
		logging.ConflictDebug("resolve %s: not in active set", path)
		return res
	}

	if err := m.executor.Execute(ctx, target, s); err != nil {
		res.Error = err.Error()
		logging.Get(logging.CategoryConflict).Warn("resolve %s with %s failed: %v", path, strategyName(s), err)
		logging.Audit(logging.AuditEvent{Type: logging.AuditResolutionFailed, ProjectID: projectID, Path: path, Strategy: strategyName(s), Error: res.Error})
		m.record(ctx, projectID, res)
		return res
	}
	res.Success = true

	m.mu.Lock()
	if m.generation != gen {
		m.mu.Unlock()
		res.Discarded = true
		logging.Conflict("resolve %s: conflict set replaced while in flight, outcome discarded", path)
		logging.Audit(logging.AuditEvent{Type: logging.AuditResolutionDiscarded, ProjectID: projectID, Path: path, Strategy: strategyName(s)})
		m.record(ctx, projectID, res)
		return res
	}
	m.removeLocked(path)
	m.mu.Unlock()

	logging.Conflict("resolved %s with %s", path, strategyName(s))
	logging.Audit(logging.AuditEvent{Type: logging.AuditResolutionApplied, ProjectID: projectID, Path: path, Strategy: strategyName(s)})
	m.record(ctx, projectID, res)
	m.events.emit(Event{Kind: EventResolved, Paths: []string{path}, PanelVisible: m.PanelVisible()})
	return res
}

// AcknowledgeEdits accepts the user's current content of each path as the
// new baseline. Paths that succeed leave the set; failures (including paths
// not in the set) are joined into one error, which is also kept as the
// session error.
func (m *Manager) AcknowledgeEdits(ctx context.Context, paths []string) error {
	m.resolveMu.Lock()
	defer m.resolveMu.Unlock()

	var errs []error
	var acked []string
	for _, path := range paths {
		m.mu.RLock()
		e, ok := m.entries[path]
		var target File
		if ok {
			target = e.full()
		}
		gen, projectID := m.generation, m.projectID
		m.mu.RUnlock()

		if !ok {
			errs = append(errs, &Error{Kind: KindNotFound, Path: path, Err: ErrNotFound})
			continue
		}

		res := Result{Path: path, Strategy: KeepUser{}}
		if err := m.executor.acceptCurrent(ctx, target); err != nil {
			errs = append(errs, err)
			res.Error = err.Error()
			m.record(ctx, projectID, res)
			continue
		}
		res.Success = true

		m.mu.Lock()
		if m.generation == gen {
			m.removeLocked(path)
			acked = append(acked, path)
		} else {
			res.Discarded = true
		}
		m.mu.Unlock()
		m.record(ctx, projectID, res)
	}

	m.mu.RLock()
	projectID := m.projectID
	m.mu.RUnlock()

	var err error
	if len(errs) > 0 {
		err = fmt.Errorf("acknowledge edits: %w", errors.Join(errs...))
		m.mu.Lock()
		m.lastErr = err
		m.mu.Unlock()
		logging.Get(logging.CategoryConflict).Warn("%d of %d acknowledgments failed: %v", len(errs), len(paths), err)
	}

	if len(acked) > 0 {
		logging.Audit(logging.AuditEvent{Type: logging.AuditEditsAcknowledged, ProjectID: projectID, Count: len(acked)})
		m.events.emit(Event{Kind: EventAcknowledged, Paths: acked, PanelVisible: m.PanelVisible()})
	}
	if err != nil {
		logging.Audit(logging.AuditEvent{Type: logging.AuditResolutionFailed, ProjectID: projectID, Strategy: KeepUser{}.String(), Error: err.Error(), Count: len(errs)})
	}
	return err
}

// removeLocked drops path from the set and summary. Requires mu.
func (m *Manager) removeLocked(path string) {
	delete(m.entries, path)
	delete(m.known, path)
	m.order = slices.DeleteFunc(m.order, func(p string) bool { return p == path })
	if m.selected != nil && m.selected.Path == path {
		m.selected = nil
	}
}

func (m *Manager) record(ctx context.Context, projectID string, res Result) {
	if m.opts.Recorder == nil {
		return
	}
	if err := m.opts.Recorder.RecordResolution(ctx, projectID, res); err != nil {
		logging.Get(logging.CategoryConflict).Warn("failed to record resolution of %s: %v", res.Path, err)
	}
}

// =============================================================================
// SELECTION, PANEL, RESET
// =============================================================================

// SelectFile sets (or with nil, clears) the selected file.
func (m *Manager) SelectFile(f *File) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f == nil {
		m.selected = nil
		return
	}
	sel := *f
	m.selected = &sel
}

// Selected returns a copy of the selected file, or nil.
func (m *Manager) Selected() *File {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.selected == nil {
		return nil
	}
	sel := *m.selected
	return &sel
}

// SetPanelVisible shows or hides the review panel. Hiding clears the
// selection.
func (m *Manager) SetPanelVisible(visible bool) {
	m.mu.Lock()
	m.panelVisible = visible
	if !visible {
		m.selected = nil
	}
	m.mu.Unlock()
	m.events.emit(Event{Kind: EventPanel, PanelVisible: visible})
}

// PanelVisible reports whether the review panel is shown.
func (m *Manager) PanelVisible() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.panelVisible
}

// ClearConflicts drops the active set, the summary, the selection and the
// session error.
func (m *Manager) ClearConflicts() {
	m.mu.Lock()
	m.generation++
	m.entries = make(map[string]*entry)
	m.order = nil
	m.known = nil
	m.selected = nil
	m.lastErr = nil
	projectID := m.projectID
	m.mu.Unlock()

	logging.Audit(logging.AuditEvent{Type: logging.AuditSessionCleared, ProjectID: projectID})
	m.events.emit(Event{Kind: EventCleared, PanelVisible: m.PanelVisible()})
}

// =============================================================================
// READ ACCESS
// =============================================================================

// Files returns the active set in detection order.
func (m *Manager) Files() []File {
	m.mu.RLock()
	defer m.mu.RUnlock()
	files := make([]File, 0, len(m.order))
	for _, path := range m.order {
		files = append(files, m.entries[path].file)
	}
	return files
}

// File returns the active entry for path.
func (m *Manager) File(path string) (File, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[path]
	if !ok {
		return File{}, false
	}
	return e.file, true
}

// Summary returns a fresh summary, or nil before detection and after a clear.
func (m *Manager) Summary() *Summary {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.known == nil {
		return nil
	}
	return buildSummary(m.known)
}

// Err returns the session error left by the last failed detection or
// acknowledgment.
func (m *Manager) Err() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastErr
}

// SessionID identifies the current detection pass; empty before the first.
func (m *Manager) SessionID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessionID
}

// ProjectID returns the project of the last successful detection.
func (m *Manager) ProjectID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.projectID
}

// =============================================================================
// INSPECTION
// =============================================================================

// LoadContent loads the original and current content of an active file for
// display. Status and hashes stay as detected.
func (m *Manager) LoadContent(ctx context.Context, path string) (File, error) {
	m.mu.RLock()
	e, ok := m.entries[path]
	var original *string
	if ok {
		original = e.tracked.OriginalContent
	}
	gen := m.generation
	m.mu.RUnlock()

	if !ok {
		return File{}, &Error{Kind: KindNotFound, Path: path, Err: ErrNotFound}
	}

	cur, err := m.source.ReadCurrent(ctx, path)
	if err != nil {
		return File{}, fmt.Errorf("load content of %s: %w", path, err)
	}
	var current *string
	if cur != nil {
		current = cur.Content
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok = m.entries[path]
	if !ok || m.generation != gen {
		return File{}, &Error{Kind: KindNotFound, Path: path, Err: ErrNotFound}
	}
	e.file = e.file.WithContent(original, current)
	if m.selected != nil && m.selected.Path == path {
		f := e.file
		m.selected = &f
	}
	return e.file, nil
}

// Diff loads an active file's content and returns its line diff. Either side
// longer than MaxDiffLines yields ErrTooLarge. Content the source did not
// retain yields ErrContentUnavailable.
func (m *Manager) Diff(ctx context.Context, path string) ([]diff.Line, error) {
	f, err := m.LoadContent(ctx, path)
	if err != nil {
		return nil, err
	}
	if err := f.contentAvailable(); err != nil {
		return nil, err
	}

	original := diff.SplitLines(deref(f.OriginalContent))
	current := diff.SplitLines(deref(f.CurrentContent))
	if len(original) > m.opts.MaxDiffLines || len(current) > m.opts.MaxDiffLines {
		return nil, &Error{
			Kind: KindTooLarge,
			Path: path,
			Msg:  fmt.Sprintf("%d/%d lines exceeds limit %d", len(original), len(current), m.opts.MaxDiffLines),
			Err:  ErrTooLarge,
		}
	}

	timer := logging.StartTimer(logging.CategoryDiff, "diff "+path)
	lines := diff.Lines(original, current)
	timer.StopWithThreshold(250 * time.Millisecond)
	return lines, nil
}

// =============================================================================
// EVENTS
// =============================================================================

// Subscribe returns a channel of state-change events.
func (m *Manager) Subscribe() <-chan Event {
	return m.events.subscribe()
}

// Unsubscribe stops and closes a subscription.
func (m *Manager) Unsubscribe(ch <-chan Event) {
	m.events.unsubscribe(ch)
}

// DroppedEvents returns how many events were lost to subscribers that fell
// behind.
func (m *Manager) DroppedEvents() uint64 {
	return m.events.dropped.Load()
}

// Close closes all subscriptions.
func (m *Manager) Close() {
	m.events.close()
}
