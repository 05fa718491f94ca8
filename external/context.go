package external

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/teranos/ciconf/variables"
)

const (
	DefaultMaxIncludes = 150
	DefaultMaxNesting  = 100
	DefaultTimeout     = 30 * time.Second
)

// TreeLister lists the files of a project at a commit. exists: rules use it.
type TreeLister interface {
	ListFiles(ctx context.Context, project, sha string) ([]string, error)
}

// PipelineConfig is the opaque handle of the configuration being built.
type PipelineConfig interface {
	// InternalIncludePrepended reports whether an include was prepended by
	// the system rather than written by the author.
	InternalIncludePrepended() bool
}

// Options configure a new resolution Context.
type Options struct {
	Project   string
	SHA       string
	User      string
	Variables *variables.Collection

	MaxIncludes          int
	MaxNesting           int
	Timeout              time.Duration
	InterpolationEnabled bool

	Trees          TreeLister
	PipelineConfig PipelineConfig

	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Context describes one node of a resolution tree: who resolves, against
// which commit, with which variables. The visited set and the audit trail
// are shared by every Context derived from the same root through Mutate.
type Context struct {
	Project   string
	SHA       string
	User      string
	Variables *variables.Collection

	MaxIncludes          int
	MaxNesting           int
	InterpolationEnabled bool

	Trees          TreeLister
	PipelineConfig PipelineConfig

	// ResolutionID is shared by the whole tree.
	ResolutionID string

	deadline time.Time
	depth    int
	tracker  *tracker
}

// tracker is the state shared across a resolution tree.
type tracker struct {
	mu      sync.Mutex
	visited map[Identity]struct{}
	order   []Identity
	audit   []AuditRecord
	timeNow func() time.Time
}

// NewContext starts a resolution tree.
func NewContext(opts Options) *Context {
	if opts.MaxIncludes <= 0 {
		opts.MaxIncludes = DefaultMaxIncludes
	}
	if opts.MaxNesting <= 0 {
		opts.MaxNesting = DefaultMaxNesting
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Variables == nil {
		opts.Variables = variables.New()
	}

	t := &tracker{
		visited: make(map[Identity]struct{}),
		timeNow: opts.Clock,
	}
	return &Context{
		Project:              opts.Project,
		SHA:                  opts.SHA,
		User:                 opts.User,
		Variables:            opts.Variables,
		MaxIncludes:          opts.MaxIncludes,
		MaxNesting:           opts.MaxNesting,
		InterpolationEnabled: opts.InterpolationEnabled,
		Trees:                opts.Trees,
		PipelineConfig:       opts.PipelineConfig,
		ResolutionID:         uuid.NewString(),
		deadline:             t.timeNow().Add(opts.Timeout),
		tracker:              t,
	}
}

// Mutation lists the fields a derived Context replaces. Zero values keep
// the parent's value.
type Mutation struct {
	Project   string
	SHA       string
	User      string
	Variables *variables.Collection
	// Deadline replaces the inherited deadline when set.
	Deadline time.Time
}

// Mutate derives a Context for a nested fragment. Plain fields are copied;
// the visited set and audit trail stay shared.
func (c *Context) Mutate(m Mutation) *Context {
	child := *c
	if m.Project != "" {
		child.Project = m.Project
	}
	if m.SHA != "" {
		child.SHA = m.SHA
	}
	if m.User != "" {
		child.User = m.User
	}
	if m.Variables != nil {
		child.Variables = m.Variables
	}
	if !m.Deadline.IsZero() {
		child.deadline = m.Deadline
	}
	return &child
}

// descend returns a copy one nesting level deeper.
func (c *Context) descend() *Context {
	child := *c
	child.depth++
	return &child
}

// Depth is the nesting level, zero for the root document.
func (c *Context) Depth() int {
	return c.depth
}

// Deadline is the point after which resolution fails.
func (c *Context) Deadline() time.Time {
	return c.deadline
}

// CheckExecutionTime fails once the deadline has passed.
func (c *Context) CheckExecutionTime() error {
	if c.tracker.timeNow().After(c.deadline) {
		return timeoutError()
	}
	return nil
}

// InternalInclude reports whether the pipeline config prepended an include.
func (c *Context) InternalInclude() bool {
	return c.PipelineConfig != nil && c.PipelineConfig.InternalIncludePrepended()
}

// effectiveMaxIncludes lets a system-prepended include not count against
// the author's budget.
func (c *Context) effectiveMaxIncludes() int {
	if c.InternalInclude() {
		return c.MaxIncludes + 1
	}
	return c.MaxIncludes
}

// register records spec in the shared visited set.
func (c *Context) register(spec Specification) error {
	id := spec.Identity()

	c.tracker.mu.Lock()
	defer c.tracker.mu.Unlock()

	if _, ok := c.tracker.visited[id]; ok {
		return duplicateIncludesError(spec.Render())
	}
	if len(c.tracker.visited)+1 > c.effectiveMaxIncludes() {
		return tooManyIncludesError(c.MaxIncludes)
	}
	c.tracker.visited[id] = struct{}{}
	c.tracker.order = append(c.tracker.order, id)
	return nil
}

// Visited returns the identities resolved so far, in resolution order.
func (c *Context) Visited() []Identity {
	c.tracker.mu.Lock()
	defer c.tracker.mu.Unlock()
	out := make([]Identity, len(c.tracker.order))
	copy(out, c.tracker.order)
	return out
}

// Includes returns the audit trail recorded so far.
func (c *Context) Includes() []AuditRecord {
	c.tracker.mu.Lock()
	defer c.tracker.mu.Unlock()
	out := make([]AuditRecord, len(c.tracker.audit))
	copy(out, c.tracker.audit)
	return out
}

func (c *Context) appendAudit(record AuditRecord) {
	c.tracker.mu.Lock()
	defer c.tracker.mu.Unlock()
	c.tracker.audit = append(c.tracker.audit, record)
}

// VariablesHash returns the variables as a plain dictionary.
func (c *Context) VariablesHash() map[string]string {
	return c.Variables.ToMap()
}

// Expand expands $VAR references with the context's variables.
func (c *Context) Expand(input string) string {
	return c.Variables.Expand(input)
}

// ListFiles lists the files of the resolving commit. It makes Context a
// rules.FileLister.
func (c *Context) ListFiles(ctx context.Context) ([]string, error) {
	if c.Trees == nil {
		return nil, nil
	}
	return c.Trees.ListFiles(ctx, c.Project, c.SHA)
}

// Now reads the resolution clock.
func (c *Context) Now() time.Time {
	return c.tracker.timeNow()
}
