package conflict

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"
)

// fakeSource is an in-memory ContentSource.
type fakeSource struct {
	mu      sync.Mutex
	tracked []TrackedFile
	current map[string]*CurrentFile
	listErr error
	readErr map[string]error
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		current: make(map[string]*CurrentFile),
		readErr: make(map[string]error),
	}
}

func (s *fakeSource) ListTrackedFiles(ctx context.Context, projectID string) ([]TrackedFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	return slices.Clone(s.tracked), nil
}

func (s *fakeSource) ReadCurrent(ctx context.Context, path string) (*CurrentFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.readErr[path]; err != nil {
		return nil, err
	}
	cur, ok := s.current[path]
	if !ok {
		return nil, nil
	}
	c := *cur
	return &c, nil
}

// generated registers a tracked file whose generated content is "gen:<path>".
func (s *fakeSource) generated(path string) TrackedFile {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := TrackedFile{
		Path:            path,
		OriginalHash:    "h:gen:" + path,
		OriginalContent: ptr("gen:" + path),
		GeneratedAt:     time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC),
		FeatureID:       "feat-1",
	}
	s.tracked = append(s.tracked, t)
	return t
}

func (s *fakeSource) setCurrent(path, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current[path] = &CurrentFile{Hash: "h:" + content, Content: ptr(content)}
}

func (s *fakeSource) remove(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.current, path)
}

// modified, deleted and unchanged register a file in that state.
func (s *fakeSource) modified(path string) {
	s.generated(path)
	s.setCurrent(path, "gen:"+path+"\nuser edit")
}

func (s *fakeSource) deleted(path string) {
	s.generated(path)
	s.remove(path)
}

func (s *fakeSource) unchanged(path string) {
	s.generated(path)
	s.setCurrent(path, "gen:"+path)
}

// fakeSink records sink calls and can fail or block per path.
type fakeSink struct {
	mu         sync.Mutex
	failPaths  map[string]bool
	restored   map[string]string
	accepted   map[string]string
	calls      []string
	gate       chan struct{} // when set, calls wait for it to close
	entered    chan string   // when set, receives the path on each call
	restoreCnt int
}

var errSinkDown = errors.New("sink unavailable")

func newFakeSink() *fakeSink {
	return &fakeSink{
		failPaths: make(map[string]bool),
		restored:  make(map[string]string),
		accepted:  make(map[string]string),
	}
}

func (k *fakeSink) wait(path string) {
	k.mu.Lock()
	entered, gate := k.entered, k.gate
	k.mu.Unlock()
	if entered != nil {
		entered <- path
	}
	if gate != nil {
		<-gate
	}
}

func (k *fakeSink) RestoreGenerated(ctx context.Context, path, originalContent string) error {
	k.wait(path)
	k.mu.Lock()
	defer k.mu.Unlock()
	k.calls = append(k.calls, "restore:"+path)
	if k.failPaths[path] {
		return errSinkDown
	}
	k.restored[path] = originalContent
	k.restoreCnt++
	return nil
}

func (k *fakeSink) AcceptCurrentAsBaseline(ctx context.Context, path, currentHash string, currentContent *string) error {
	k.wait(path)
	k.mu.Lock()
	defer k.mu.Unlock()
	k.calls = append(k.calls, "accept:"+path)
	if k.failPaths[path] {
		return errSinkDown
	}
	k.accepted[path] = currentHash
	return nil
}

func (k *fakeSink) fail(path string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.failPaths[path] = true
}

func (k *fakeSink) callLog() []string {
	k.mu.Lock()
	defer k.mu.Unlock()
	return slices.Clone(k.calls)
}

// fakeRecorder captures recorded results.
type fakeRecorder struct {
	mu      sync.Mutex
	results []Result
}

func (r *fakeRecorder) RecordResolution(ctx context.Context, projectID string, res Result) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
	return nil
}
