package catalog

import (
	"context"
	"fmt"
	"io/fs"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/mark3labs/docweave/internal/compose"
	"github.com/mark3labs/docweave/internal/log"
	"github.com/mark3labs/docweave/internal/source"
)

// DefaultExtension is the file extension of structured documents.
const DefaultExtension = ".json"

// Settings configures a Builder.
type Settings struct {
	DataDir      string
	SettingsFile string
	Extension    string
	// Workers bounds concurrent document aggregation.
	Workers  int
	MaxDepth int
	CacheTTL time.Duration
}

// DefaultSettings returns recommended defaults.
func DefaultSettings() Settings {
	return Settings{
		DataDir:      compose.DefaultDataDir,
		SettingsFile: source.DefaultSettingsFile,
		Extension:    DefaultExtension,
		Workers:      runtime.GOMAXPROCS(0),
		MaxDepth:     compose.DefaultMaxDepth,
	}
}

// Option mutates Settings.
type Option func(*Settings)

func WithDataDir(dir string) Option       { return func(s *Settings) { s.DataDir = dir } }
func WithSettingsFile(name string) Option { return func(s *Settings) { s.SettingsFile = name } }
func WithWorkers(n int) Option            { return func(s *Settings) { s.Workers = n } }
func WithMaxRefDepth(n int) Option        { return func(s *Settings) { s.MaxDepth = n } }
func WithCacheTTL(d time.Duration) Option { return func(s *Settings) { s.CacheTTL = d } }

// Builder runs build passes over a project tree. It keeps the previous pass
// so Update can re-aggregate only what a file change affects.
type Builder struct {
	fsys     fs.FS
	settings Settings
	log      logrus.FieldLogger
	loader   *compose.Loader

	mu      sync.Mutex
	project source.Settings
	results map[string]Result
	current *Catalog
}

func NewBuilder(fsys fs.FS, logger logrus.FieldLogger, opts ...Option) *Builder {
	settings := DefaultSettings()
	for _, opt := range opts {
		opt(&settings)
	}
	if settings.Workers <= 0 {
		settings.Workers = 1
	}
	if settings.Extension == "" {
		settings.Extension = DefaultExtension
	}
	if settings.SettingsFile == "" {
		settings.SettingsFile = source.DefaultSettingsFile
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &Builder{
		fsys:     fsys,
		settings: settings,
		log:      logger,
		loader: compose.NewLoader(fsys,
			compose.WithDataDir(settings.DataDir),
			compose.WithCacheTTL(settings.CacheTTL),
		),
	}
}

// Catalog returns the result of the latest pass, or nil before the first.
func (b *Builder) Catalog() *Catalog {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

// Build runs a full pass from an empty state. It fails only when the tree
// cannot be walked.
func (b *Builder) Build(ctx context.Context) (*Catalog, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.build(ctx)
}

func (b *Builder) build(ctx context.Context) (*Catalog, error) {
	b.loader.Reset()
	b.project = source.LoadSettings(b.fsys, b.settings.SettingsFile, b.log)

	agg := b.aggregator()
	paths, err := b.discover(agg)
	if err != nil {
		return nil, err
	}
	results, err := b.aggregateAll(ctx, agg, paths)
	if err != nil {
		return nil, err
	}

	b.results = make(map[string]Result, len(results))
	for _, r := range results {
		b.results[r.Path] = r
	}
	b.current = Assemble(b.project, results)
	b.log.WithFields(logrus.Fields{
		"documents": len(b.current.Documents),
		"endpoints": b.current.Endpoints.Len(),
		"skipped":   len(b.current.Skipped),
	}).Info("build complete")
	return b.current, nil
}

// Update re-aggregates the documents affected by changed files: the changed
// documents themselves, documents depending on changed data files or on
// referenced files that were missing, and documents that appeared since the
// last pass. A changed path may name a directory, which covers every file
// below it. It returns the new catalog and the re-aggregated paths. A change
// to the settings file triggers a full build.
func (b *Builder) Update(ctx context.Context, changed ...string) (*Catalog, []string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	norm := make([]string, 0, len(changed))
	for _, c := range changed {
		norm = append(norm, source.NormalizePath(c))
	}

	if b.current == nil || slices.Contains(norm, b.settings.SettingsFile) || slices.Contains(norm, "README.md") {
		c, err := b.build(ctx)
		if err != nil {
			return nil, nil, err
		}
		return c, lo.Map(c.Documents, func(d *Document, _ int) string { return d.Path }), nil
	}

	b.loader.Invalidate(norm...)
	affected := make(map[string]struct{})
	for _, p := range b.current.Dependencies.Affected(norm...) {
		affected[p] = struct{}{}
	}
	for p, r := range b.results {
		if covered(norm, p) || slices.ContainsFunc(r.Unresolved, func(u string) bool { return covered(norm, u) }) {
			affected[p] = struct{}{}
		}
	}

	agg := b.aggregator()
	paths, err := b.discover(agg)
	if err != nil {
		return nil, nil, err
	}

	var redo []string
	for _, p := range paths {
		_, hit := affected[p]
		_, known := b.results[p]
		if hit || !known {
			redo = append(redo, p)
		}
	}
	fresh, err := b.aggregateAll(ctx, agg, redo)
	if err != nil {
		return nil, nil, err
	}
	for _, r := range fresh {
		b.results[r.Path] = r
	}

	results := make([]Result, 0, len(paths))
	next := make(map[string]Result, len(paths))
	for _, p := range paths {
		r := b.results[p]
		results = append(results, r)
		next[p] = r
	}
	b.results = next
	b.current = Assemble(b.project, results)
	b.log.WithField("documents", redo).Debug("incremental build complete")
	return b.current, redo, nil
}

func (b *Builder) aggregator() *Aggregator {
	return &Aggregator{
		merger:       compose.NewMerger(b.loader, b.log, compose.WithMaxDepth(b.settings.MaxDepth)),
		fields:       compose.NewFieldResolver(b.project.Global, b.log),
		log:          b.log,
		extension:    b.settings.Extension,
		settingsFile: b.settings.SettingsFile,
		dataDir:      b.loader.DataDir(),
	}
}

func (b *Builder) discover(agg *Aggregator) ([]string, error) {
	all, err := source.Discover(b.fsys)
	if err != nil {
		return nil, fmt.Errorf("discover documents: %w", err)
	}
	paths := make([]string, 0, len(all))
	for _, p := range all {
		if agg.IsCandidate(p) {
			paths = append(paths, p)
		}
	}
	return paths, nil
}

// aggregateAll processes paths concurrently. Each worker writes only its own
// slot so no locking is needed; the slice keeps discovery order.
func (b *Builder) aggregateAll(ctx context.Context, agg *Aggregator, paths []string) ([]Result, error) {
	results := make([]Result, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(b.settings.Workers)
	for i, p := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = b.aggregateOne(agg, p)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (b *Builder) aggregateOne(agg *Aggregator, p string) Result {
	res := Result{Path: p}
	data, err := fs.ReadFile(b.fsys, p)
	if err != nil {
		res.Err = &compose.Error{Code: compose.MalformedDocument, Message: "cannot read document", Location: p, Cause: err}
	} else if root, perr := source.Parse(data); perr != nil {
		res.Err = &compose.Error{Code: compose.MalformedDocument, Message: "cannot parse document", Location: p, Cause: perr}
	} else {
		res = agg.Aggregate(p, root)
	}
	if res.Err != nil {
		b.log.WithError(res.Err).WithField("doc", p).Warn("document skipped")
	}
	return res
}

func covered(changed []string, p string) bool {
	return slices.ContainsFunc(changed, func(c string) bool { return source.Covers(c, p) })
}
