// Package resolver builds an include Processor and its collaborators from
// configuration and resolves root pipeline documents with it.
package resolver

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"github.com/teranos/ciconf/config"
	"github.com/teranos/ciconf/document"
	"github.com/teranos/ciconf/errors"
	"github.com/teranos/ciconf/external"
	"github.com/teranos/ciconf/external/file"
	"github.com/teranos/ciconf/internal/httpclient"
	"github.com/teranos/ciconf/logger"
	"github.com/teranos/ciconf/metrics"
	"github.com/teranos/ciconf/repository"
	"github.com/teranos/ciconf/telemetry"
	"github.com/teranos/ciconf/variables"
	"go.uber.org/zap"
)

// Request is one resolution of a root document.
type Request struct {
	Project   string
	SHA       string
	User      string
	Variables *variables.Collection
	// Content is the raw YAML of the root document.
	Content        []byte
	PipelineConfig external.PipelineConfig
}

// Result is the merged document and the fragments that produced it.
type Result struct {
	Config       *document.Map
	Includes     []external.AuditRecord
	ResolutionID string
}

// Resolver owns the collaborators of a Processor.
type Resolver struct {
	cfg       *config.Config
	store     *repository.Store
	processor *external.Processor
	catalog   *file.Catalog
	metrics   *metrics.Metrics
	usage     *telemetry.UsageTracker
	clock     func() time.Time
	logger    *zap.SugaredLogger
}

type options struct {
	registry   prometheus.Registerer
	sink       telemetry.Sink
	client     *httpclient.SaferClient
	templateFs afero.Fs
	clock      func() time.Time
}

// Option customizes New.
type Option func(*options)

// WithRegistry registers the resolver's collectors with reg.
func WithRegistry(reg prometheus.Registerer) Option {
	return func(o *options) { o.registry = reg }
}

// WithUsageSink delivers usage events to sink instead of the log.
func WithUsageSink(sink telemetry.Sink) Option {
	return func(o *options) { o.sink = sink }
}

// WithHTTPClient replaces the remote client built from cfg.Remote.
func WithHTTPClient(client *httpclient.SaferClient) Option {
	return func(o *options) { o.client = client }
}

// WithTemplateFs reads the template catalog from fs. The catalog is not
// synced when fs is given.
func WithTemplateFs(fs afero.Fs) Option {
	return func(o *options) { o.templateFs = fs }
}

// WithClock sets the clock deadlines are measured with.
func WithClock(clock func() time.Time) Option {
	return func(o *options) { o.clock = clock }
}

// New builds a Resolver reading repositories from store. When
// cfg.Templates.Source is set the template catalog is synced before New
// returns.
func New(ctx context.Context, cfg *config.Config, store *repository.Store, opts ...Option) (*Resolver, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if store == nil {
		return nil, errors.New("repository store cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid resolver config")
	}

	o := options{clock: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	m := metrics.New(o.registry)
	sink := o.sink
	if sink == nil {
		sink = telemetry.LogSink{Logger: logger.ComponentLogger("telemetry")}
	}
	usage := telemetry.NewUsageTracker(sink, m)

	client := o.client
	if client == nil {
		blockPrivateIP := cfg.Remote.BlockPrivateIP
		client = httpclient.New(httpclient.Options{
			Timeout:           time.Duration(cfg.Remote.TimeoutSeconds) * time.Second,
			BlockPrivateIP:    &blockPrivateIP,
			MaxBytes:          cfg.Remote.MaxBytes,
			RequestsPerMinute: cfg.Remote.MaxRequestsPerMinute,
		})
	}

	fs := o.templateFs
	syncCatalog := fs == nil
	if fs == nil {
		fs = afero.NewOsFs()
	}
	catalog := file.NewCatalog(fs, cfg.Templates.Dir, cfg.Templates.Source)
	if syncCatalog {
		if err := catalog.Sync(ctx); err != nil {
			usage.Close()
			return nil, err
		}
	}

	loader := file.NewLoader(
		&file.Local{Repos: store, BaseURL: cfg.Repository.BaseURL},
		&file.Remote{Client: client, Metrics: m},
		&file.Template{Catalog: catalog},
		&file.Project{Repos: store, BaseURL: cfg.Repository.BaseURL},
		&file.Component{Repos: store, Host: cfg.Repository.ComponentHost, BaseURL: cfg.Repository.BaseURL},
	)

	processor := external.NewProcessor(loader,
		external.WithMapper(external.NewMapper(cfg.Include.MaxMapperIncludes)),
		external.WithMaxBlocks(cfg.Interpolation.MaxBlocks),
		external.WithMetrics(m),
		external.WithUsageTracker(usage),
	)

	return &Resolver{
		cfg:       cfg,
		store:     store,
		processor: processor,
		catalog:   catalog,
		metrics:   m,
		usage:     usage,
		clock:     o.clock,
		logger:    logger.ComponentLogger("resolver"),
	}, nil
}

// Resolve parses req.Content and expands its includes.
func (r *Resolver) Resolve(ctx context.Context, req Request) (*Result, error) {
	root, err := document.Parse(req.Content)
	if err != nil {
		return nil, errors.Wrap(err, "invalid root configuration")
	}
	return r.ResolveDocument(ctx, root, req)
}

// ResolveDocument expands the includes of an already parsed root. req.Content
// is ignored.
func (r *Resolver) ResolveDocument(ctx context.Context, root *document.Map, req Request) (*Result, error) {
	rc := external.NewContext(external.Options{
		Project:              req.Project,
		SHA:                  req.SHA,
		User:                 req.User,
		Variables:            req.Variables,
		MaxIncludes:          r.cfg.Include.MaxIncludes,
		MaxNesting:           r.cfg.Include.MaxNesting,
		Timeout:              time.Duration(r.cfg.Include.TimeoutSeconds) * time.Second,
		InterpolationEnabled: r.cfg.Interpolation.Enabled,
		Trees:                r.store,
		PipelineConfig:       req.PipelineConfig,
		Clock:                r.clock,
	})

	merged, err := r.processor.Perform(ctx, root, rc)
	if err != nil {
		return nil, err
	}
	return &Result{
		Config:       merged,
		Includes:     rc.Includes(),
		ResolutionID: rc.ResolutionID,
	}, nil
}

// Templates lists the names in the template catalog.
func (r *Resolver) Templates() ([]string, error) {
	return r.catalog.Names()
}

// Close flushes queued usage events.
func (r *Resolver) Close() {
	r.usage.Close()
	r.logger.Debugw("Resolver closed")
}

// SetupLogging configures the global logger from cfg.Log.
func SetupLogging(cfg *config.Config) error {
	return logger.Initialize(cfg.Log.JSON, cfg.Log.Verbosity)
}
