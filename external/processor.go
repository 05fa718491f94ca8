// Package external resolves the `include:` directives of a CI pipeline
// configuration into one merged document.
//
// Resolution is a synchronous depth-first walk. Every node of the tree
// shares one visited set, one deadline and one audit trail through its
// Context; a failure anywhere aborts the whole Perform call.
package external

import (
	"context"
	"strings"

	"github.com/teranos/ciconf/document"
	"github.com/teranos/ciconf/interpolation"
	"github.com/teranos/ciconf/logger"
	"github.com/teranos/ciconf/metrics"
	"github.com/teranos/ciconf/rules"
	"go.uber.org/zap"
)

// Processor expands the includes of a document.
type Processor struct {
	mapper    *Mapper
	loader    Loader
	header    *HeaderProcessor
	metrics   *metrics.Metrics
	usage     interpolation.UsageTracker
	maxBlocks int
	log       *zap.SugaredLogger
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithMapper replaces the default Mapper.
func WithMapper(m *Mapper) ProcessorOption {
	return func(p *Processor) { p.mapper = m }
}

// WithMetrics records fragment and resolution metrics.
func WithMetrics(m *metrics.Metrics) ProcessorOption {
	return func(p *Processor) { p.metrics = m }
}

// WithUsageTracker reports successful interpolations.
func WithUsageTracker(t interpolation.UsageTracker) ProcessorOption {
	return func(p *Processor) { p.usage = t }
}

// WithMaxBlocks bounds the interpolation blocks of one fragment.
func WithMaxBlocks(n int) ProcessorOption {
	return func(p *Processor) { p.maxBlocks = n }
}

// WithProcessorLogger overrides the component logger.
func WithProcessorLogger(log *zap.SugaredLogger) ProcessorOption {
	return func(p *Processor) { p.log = log }
}

// NewProcessor returns a Processor fetching fragments through loader.
func NewProcessor(loader Loader, opts ...ProcessorOption) *Processor {
	p := &Processor{
		mapper:    NewMapper(DefaultMapperMaxIncludes),
		loader:    loader,
		maxBlocks: interpolation.DefaultMaxBlocks,
		log:       logger.ComponentLogger("external.processor"),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.header = NewHeaderProcessor(p.mapper, p.loader)
	return p
}

// Perform returns doc with every include resolved and merged, and the
// `include` key removed. A document without includes is returned as is.
// Every failure is an *Error.
func (p *Processor) Perform(ctx context.Context, doc *document.Map, rc *Context) (*document.Map, error) {
	ctx = logger.WithResolutionID(ctx, rc.ResolutionID)
	log := logger.FromContext(ctx, p.log)
	start := rc.Now()

	out, err := p.perform(ctx, doc, rc)

	if rc.Depth() == 0 {
		elapsed := rc.Now().Sub(start)
		p.metrics.ObserveResolution(elapsed)
		if err != nil {
			p.metrics.ResolutionFailed(string(KindOf(err)), string(ReasonOf(err)))
			log.Warnw("Include resolution failed",
				logger.FieldProject, rc.Project,
				logger.FieldSHA, rc.SHA,
				logger.FieldErrorKind, KindOf(err),
				logger.FieldReason, ReasonOf(err),
				logger.FieldError, err)
		} else {
			log.Infow("Include resolution complete",
				logger.FieldProject, rc.Project,
				logger.FieldSHA, rc.SHA,
				logger.FieldCount, len(rc.Visited()),
				logger.FieldDurationMS, elapsed.Milliseconds())
		}
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Processor) perform(ctx context.Context, doc *document.Map, rc *Context) (*document.Map, error) {
	if err := rc.CheckExecutionTime(); err != nil {
		return nil, err
	}
	if !doc.Has(IncludeKey) {
		return doc, nil
	}

	specs, err := p.mapper.Map(doc, rc)
	if err != nil {
		return nil, err
	}

	var bodies []*document.Map
	for _, spec := range specs {
		if err := rc.CheckExecutionTime(); err != nil {
			return nil, err
		}

		pass, err := includeRulesPass(ctx, spec, rc)
		if err != nil {
			return nil, err
		}
		if !pass {
			p.metrics.FragmentSkipped(spec.Kind.String())
			logger.FromContext(ctx, p.log).Debugw("Include skipped by rules",
				logger.FieldKind, spec.Kind,
				logger.FieldLocation, spec.Display())
			continue
		}

		body, err := p.resolve(ctx, spec, rc)
		if err != nil {
			return nil, err
		}
		bodies = append(bodies, body)
	}

	return merge(doc, bodies), nil
}

// resolve loads, interpolates and recursively expands one fragment.
// includeRulesPass evaluates the rules attached to spec against rc.
func includeRulesPass(ctx context.Context, spec Specification, rc *Context) (bool, error) {
	evaluator := &rules.Evaluator{Variables: rc.Variables, Files: rc, Expander: rc.Variables}
	pass, err := evaluator.EvaluateRules(ctx, spec.Rules)
	if err != nil {
		return false, invalidIncludeRulesError(spec.Render(), err.Error(), err)
	}
	return pass, nil
}

func (p *Processor) resolve(ctx context.Context, spec Specification, rc *Context) (*document.Map, error) {
	log := logger.FromContext(ctx, p.log)
	location := spec.Display()

	fragment, err := p.loader.Load(ctx, spec, rc)
	if err != nil {
		return nil, classify(spec, err)
	}
	if strings.TrimSpace(string(fragment.Content)) == "" {
		return nil, emptyFragmentError(spec)
	}

	if err := rc.register(spec); err != nil {
		return nil, err
	}

	doc := interpolation.Load(fragment.Content)
	if !doc.Valid() {
		return nil, NewIncludeError(ReasonInvalidYAML, location,
			"Included file `%s` does not have valid YAML syntax!", location).WithCause(doc.Err)
	}

	doc, err = p.header.Process(ctx, doc, rc)
	if err != nil {
		return nil, err
	}

	interpolator := interpolation.New(doc, spec.Inputs,
		interpolation.WithVariables(rc.Variables),
		interpolation.WithMaxBlocks(p.maxBlocks),
		interpolation.WithUsage(p.usage, rc.User),
		interpolation.WithLogger(p.log),
	)
	if err := interpolator.Interpolate(rc.InterpolationEnabled); err != nil {
		return nil, NewIncludeError(ReasonInterpolation, location, "`%s`: %s", location, err.Error()).WithCause(err)
	}
	body := interpolator.Result()

	p.metrics.FragmentLoaded(spec.Kind.String(), len(fragment.Content))
	log.Debugw("Fragment loaded",
		logger.FieldKind, spec.Kind,
		logger.FieldLocation, location,
		logger.FieldProject, rc.Project,
		logger.FieldSHA, rc.SHA,
		logger.FieldDepth, rc.Depth(),
		logger.FieldSize, len(fragment.Content))

	if body.Has(IncludeKey) {
		nested, err := p.nestedContext(spec, fragment, rc)
		if err != nil {
			return nil, err
		}
		if body, err = p.perform(ctx, body, nested); err != nil {
			return nil, err
		}
	}

	rc.appendAudit(auditRecord(spec, fragment, rc))
	return body, nil
}

// nestedContext switches to the fragment's own project and commit when it
// came from another project.
func (p *Processor) nestedContext(spec Specification, fragment *Fragment, rc *Context) (*Context, error) {
	nested := rc
	if spec.Kind == SourceProject || spec.Kind == SourceComponent {
		nested = rc.Mutate(Mutation{Project: fragment.Project, SHA: fragment.SHA})
	}
	nested = nested.descend()
	if nested.Depth() > nested.MaxNesting {
		return nil, NewIncludeError(ReasonNestingTooDeep, spec.Display(),
			"Nested includes of `%s` exceed the maximum depth of %d!", spec.Display(), nested.MaxNesting)
	}
	return nested, nil
}

// merge keeps the root's keys and adds each fragment's keys not seen yet,
// so the root always wins and earlier fragments win over later ones.
func merge(root *document.Map, bodies []*document.Map) *document.Map {
	out := document.New()
	root.Each(func(key string, value any) {
		if key != IncludeKey {
			out.Set(key, value)
		}
	})
	for _, body := range bodies {
		body.Each(func(key string, value any) {
			if key == IncludeKey || out.Has(key) {
				return
			}
			out.Set(key, value)
		})
	}
	return out
}
