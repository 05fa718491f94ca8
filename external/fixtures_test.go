package external

import (
	"context"
	"sync"
	"time"

	"github.com/teranos/ciconf/errors"
)

// memoryLoader serves fragments keyed by "<kind>:<display>".
type memoryLoader struct {
	mu    sync.Mutex
	files map[string]string
	fail  map[string]error
	calls []string
}

func newMemoryLoader(files map[string]string) *memoryLoader {
	return &memoryLoader{files: files, fail: map[string]error{}}
}

func (l *memoryLoader) Load(_ context.Context, spec Specification, _ *Context) (*Fragment, error) {
	key := spec.Kind.String() + ":" + spec.Display()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, key)

	if err, ok := l.fail[key]; ok {
		return nil, err
	}
	content, ok := l.files[key]
	if !ok {
		return nil, errors.NewNotFoundError("%s not found", key)
	}

	fragment := &Fragment{Content: []byte(content), Location: spec.Location}
	if spec.Kind == SourceProject {
		fragment.Project = spec.Project
		fragment.SHA = "sha-" + spec.Project
		fragment.ExtraParams = map[string]string{"ref": spec.Ref}
	}
	return fragment, nil
}

func (l *memoryLoader) Calls() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

// staticTrees lists the same files for every commit.
type staticTrees []string

func (t staticTrees) ListFiles(context.Context, string, string) ([]string, error) {
	return t, nil
}

// fakeClock is advanced by hand.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type internalInclude bool

func (i internalInclude) InternalIncludePrepended() bool { return bool(i) }

type recordingTracker struct {
	mu    sync.Mutex
	users []string
}

func (r *recordingTracker) Track(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users = append(r.users, userID)
}
