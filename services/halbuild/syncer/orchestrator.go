// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package syncer regenerates HAL build manifests and enforces the review
// protocol around them.
//
// A run moves through
//
//	idle → discovering → rendering → writing → reporting → clean | dirty
//
// and enters failed from any phase on the first hard error. Rendering
// completes for every package before the first write, so parse and
// template errors never leave a partially written tree. A write failure
// keeps the files written before it; if any of them changed the review
// lock is still created.
package syncer

import (
	"context"
	"log/slog"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/halbuild/services/halbuild/catalog"
	"github.com/AleutianAI/halbuild/services/halbuild/hal"
	"github.com/AleutianAI/halbuild/services/halbuild/lock"
	"github.com/AleutianAI/halbuild/services/halbuild/manifest"
	"github.com/AleutianAI/halbuild/services/halbuild/render"
	"github.com/AleutianAI/halbuild/services/halbuild/resolve"
	"github.com/AleutianAI/halbuild/services/halbuild/specparse"
	"github.com/AleutianAI/halbuild/services/halbuild/telemetry"
)

// DefaultWorkers bounds per-package concurrency when Settings.Workers is
// not positive.
const DefaultWorkers = 4

// Catalog is the package source a run draws from. *catalog.Reader
// implements it.
type Catalog interface {
	Discover(ctx context.Context) (hal.Catalog, error)
	Lookup(ctx context.Context, id hal.PackageID) error
	SpecFiles(ctx context.Context, id hal.PackageID) ([]string, error)
	Imports(ctx context.Context, id hal.PackageID) ([]hal.Ref, error)
}

// Settings locate the trees a run works on. Paths are slash-separated and
// relative to the filesystem root (the build top).
type Settings struct {
	InterfaceRoot string
	ProjectRoot   string
	Template      string
	LockFile      string
	Conventions   hal.Conventions
	Workers       int
}

// Orchestrator drives sync and check runs.
//
// # Thread Safety
//
// An Orchestrator may be shared, but runs against the same tree must not
// overlap. Configure a RunLock to enforce that across processes.
type Orchestrator struct {
	fs            billy.Filesystem
	conv          hal.Conventions
	interfaceRoot string
	projectRoot   string
	templatePath  string
	workers       int

	catalog     Catalog
	catalogOpts []catalog.Option
	resolver    *resolve.Resolver
	renderer    *render.Renderer
	writer      *manifest.Writer
	review      *lock.ReviewLock
	runLock     *lock.RunLock
	logger      *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithCatalog replaces the default HIDL-backed catalog reader.
func WithCatalog(c Catalog) Option {
	return func(o *Orchestrator) {
		o.catalog = c
	}
}

// WithCatalogOptions passes options to the default catalog reader.
func WithCatalogOptions(opts ...catalog.Option) Option {
	return func(o *Orchestrator) {
		o.catalogOpts = append(o.catalogOpts, opts...)
	}
}

// WithRunLock serialises sync runs through lock.
func WithRunLock(l *lock.RunLock) Option {
	return func(o *Orchestrator) {
		o.runLock = l
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// New wires an Orchestrator over fs.
//
// # Inputs
//
//   - fs: Filesystem rooted at the build top.
//   - s: Tree locations and conventions.
//   - opts: Optional collaborators.
//
// # Outputs
//
//   - *Orchestrator: Ready to run.
//   - error: A catalog construction error such as catalog.ErrInvalidPattern.
func New(fs billy.Filesystem, s Settings, opts ...Option) (*Orchestrator, error) {
	o := &Orchestrator{
		fs:            fs,
		conv:          s.Conventions,
		interfaceRoot: path.Clean(s.InterfaceRoot),
		projectRoot:   path.Clean(s.ProjectRoot),
		templatePath:  s.Template,
		workers:       s.Workers,
		logger:        slog.Default(),
	}
	if o.conv.Prefix == "" {
		o.conv = hal.DefaultConventions()
	}
	if o.workers < 1 {
		o.workers = DefaultWorkers
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.catalog == nil {
		parser := specparse.NewHIDLParser(fs, o.interfaceRoot, o.conv)
		copts := append([]catalog.Option{catalog.WithLogger(o.logger)}, o.catalogOpts...)
		reader, err := catalog.NewReader(fs, o.interfaceRoot, o.conv, parser, copts...)
		if err != nil {
			return nil, err
		}
		o.catalog = reader
	}

	o.resolver = resolve.New(o.conv)
	o.renderer = render.New(o.conv)
	o.writer = manifest.NewWriter(fs, o.projectRoot, manifest.WithLogger(o.logger))
	o.review = lock.NewReviewLock(fs, o.projectRoot, s.LockFile)
	return o, nil
}

// Catalog returns the package source.
func (o *Orchestrator) Catalog() Catalog { return o.catalog }

// ReviewLock returns the review sentinel of the managed tree.
func (o *Orchestrator) ReviewLock() *lock.ReviewLock { return o.review }

// ProjectRoot returns the managed tree relative to the filesystem.
func (o *Orchestrator) ProjectRoot() string { return o.projectRoot }

// Discover lists every package of the interface tree in catalog order.
func (o *Orchestrator) Discover(ctx context.Context) (hal.Catalog, error) {
	return o.scope(ctx, hal.PackageID{}, true)
}

// Dependencies returns the projection a manifest of id would use.
func (o *Orchestrator) Dependencies(ctx context.Context, id hal.PackageID) (resolve.Projection, error) {
	imports, err := o.catalog.Imports(ctx, id)
	if err != nil {
		return resolve.Projection{}, o.classify("parse", id.String(), err)
	}
	return o.resolver.Resolve(id, imports), nil
}

// job is one manifest to produce. Paths are project-relative.
type job struct {
	rel     string
	root    bool
	content string
}

// Run regenerates the manifests of target and applies the review protocol.
//
// # Description
//
// An empty target means every discovered package plus the root manifest.
// Otherwise target must be "name@major.minor" and only that package's
// manifest is regenerated. The target is validated before any I/O.
//
// When at least one manifest changed the review lock is created and the
// run ends Dirty with a nil error; callers treat Dirty as a failed exit.
// When nothing changed and the lock is absent the run ends Clean. When
// nothing changed but the lock from an earlier run is present, the run
// fails with halerr.KindUnacknowledgedLock.
//
// # Inputs
//
//   - ctx: Cancels scheduling of further packages.
//   - target: "" or a package id.
//
// # Outputs
//
//   - *Report: Always non-nil, also on error.
//   - error: A *halerr.Error.
func (o *Orchestrator) Run(ctx context.Context, target string) (rep *Report, err error) {
	rep = &Report{
		RunID:    uuid.NewString(),
		Scope:    scopeOf(target),
		LockPath: o.review.Path(),
		Started:  time.Now(),
	}
	rep.enter(StateIdle)

	ctx, span := tracer.Start(ctx, "syncer.Orchestrator.Run",
		trace.WithAttributes(
			attribute.String("halbuild.run_id", rep.RunID),
			attribute.String("halbuild.scope", rep.Scope),
		),
	)
	logger := telemetry.LoggerWithTrace(ctx, o.logger.With(slog.String("run_id", rep.RunID)))

	defer func() {
		rep.Duration = time.Since(rep.Started)
		if err != nil {
			rep.enter(StateFailed)
			telemetry.RecordError(span, err)
		}
		span.SetAttributes(
			attribute.String("halbuild.state", string(rep.State)),
			attribute.Int("halbuild.changed", len(rep.Changed)),
		)
		span.End()
		recordRun(ctx, "sync", rep.Started, rep.Packages, len(rep.Changed), err)
	}()

	id, all, err := o.parseTarget(target)
	if err != nil {
		return rep, err
	}

	if o.runLock != nil {
		if err := o.runLock.Acquire(rep.RunID, "sync "+rep.Scope); err != nil {
			return rep, o.classify("lock", o.runLock.Path(), err)
		}
		defer func() {
			if rerr := o.runLock.Release(); rerr != nil {
				logger.Warn("release run lock", slog.String("error", rerr.Error()))
			}
		}()
	}

	tmpl, err := render.LoadTemplate(o.fs, o.templatePath)
	if err != nil {
		return rep, o.classify("load template", o.templatePath, err)
	}

	rep.enter(StateDiscovering)
	scope, err := o.scope(ctx, id, all)
	if err != nil {
		return rep, err
	}
	rep.Packages = len(scope)
	logger.Debug("scope resolved", slog.String("scope", rep.Scope), slog.Int("packages", len(scope)))

	rep.enter(StateRendering)
	jobs, err := o.renderAll(ctx, tmpl, scope, all)
	if err != nil {
		return rep, err
	}

	rep.enter(StateWriting)
	rep.Changed, err = o.writeAll(ctx, jobs)
	if err != nil {
		if rep.AnyChanged() {
			if lerr := o.review.Create(); lerr != nil {
				logger.Error("create review lock after failed write", slog.String("error", lerr.Error()))
			} else {
				rep.LockCreated = true
			}
		}
		return rep, err
	}

	rep.enter(StateReporting)
	if rep.AnyChanged() {
		if err := o.review.Create(); err != nil {
			return rep, o.classify("create review lock", o.review.Path(), err)
		}
		rep.LockCreated = true
		rep.enter(StateDirty)
		logger.Warn("manifests changed, review required",
			slog.Int("changed", len(rep.Changed)),
			slog.String("lock", o.review.Path()),
		)
		return rep, nil
	}

	present, err := o.review.Exists()
	if err != nil {
		return rep, o.classify("check review lock", o.review.Path(), err)
	}
	if present {
		return rep, o.unacknowledged()
	}
	rep.enter(StateClean)
	logger.Info("manifests up to date", slog.Int("packages", rep.Packages))
	return rep, nil
}

// Check renders target like Run but writes nothing and leaves the review
// lock alone. Stale manifests are returned with their diffs.
func (o *Orchestrator) Check(ctx context.Context, target string) (rep *CheckReport, err error) {
	rep = &CheckReport{RunID: uuid.NewString(), Scope: scopeOf(target)}
	started := time.Now()

	ctx, span := tracer.Start(ctx, "syncer.Orchestrator.Check",
		trace.WithAttributes(
			attribute.String("halbuild.run_id", rep.RunID),
			attribute.String("halbuild.scope", rep.Scope),
		),
	)
	defer func() {
		if err != nil {
			telemetry.RecordError(span, err)
		}
		span.SetAttributes(attribute.Int("halbuild.stale", len(rep.Stale)))
		span.End()
		recordRun(ctx, "check", started, rep.Packages, len(rep.Stale), err)
	}()

	id, all, err := o.parseTarget(target)
	if err != nil {
		return rep, err
	}
	tmpl, err := render.LoadTemplate(o.fs, o.templatePath)
	if err != nil {
		return rep, o.classify("load template", o.templatePath, err)
	}
	scope, err := o.scope(ctx, id, all)
	if err != nil {
		return rep, err
	}
	rep.Packages = len(scope)

	jobs, err := o.renderAll(ctx, tmpl, scope, all)
	if err != nil {
		return rep, err
	}
	for _, j := range jobs {
		d, err := o.writer.Diff(j.rel, j.content)
		if err != nil {
			return rep, o.classify("diff", j.rel, err)
		}
		if d != nil {
			rep.Stale = append(rep.Stale, StaleManifest{Path: j.rel, Diff: d})
		}
	}
	slices.SortFunc(rep.Stale, func(a, b StaleManifest) int { return strings.Compare(a.Path, b.Path) })

	rep.LockPresent, err = o.review.Exists()
	if err != nil {
		return rep, o.classify("check review lock", o.review.Path(), err)
	}
	return rep, nil
}

func scopeOf(target string) string {
	if target == "" {
		return ScopeAll
	}
	return target
}

// parseTarget validates target without touching the filesystem.
func (o *Orchestrator) parseTarget(target string) (hal.PackageID, bool, error) {
	if target == "" {
		return hal.PackageID{}, true, nil
	}
	id, err := hal.ParsePackageID(target)
	if err != nil {
		return hal.PackageID{}, false, o.classify("parse target", target, err)
	}
	return id, false, nil
}

func (o *Orchestrator) scope(ctx context.Context, id hal.PackageID, all bool) (hal.Catalog, error) {
	if !all {
		if err := o.catalog.Lookup(ctx, id); err != nil {
			return nil, o.classify("lookup", id.String(), err)
		}
		return hal.Catalog{id}, nil
	}
	cat, err := o.catalog.Discover(ctx)
	if err != nil {
		return nil, o.classify("discover", o.interfaceRoot, err)
	}
	return cat, nil
}

// renderAll renders every manifest of scope, the root manifest first when
// all is set. The result order is fixed by scope, not by completion.
func (o *Orchestrator) renderAll(ctx context.Context, tmpl *render.Template, scope hal.Catalog, all bool) ([]job, error) {
	offset := 0
	if all {
		offset = 1
	}
	jobs := make([]job, offset+len(scope))
	if all {
		jobs[0] = job{rel: o.conv.RootManifestPath(), root: true, content: o.renderer.Root(scope)}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)
	for i, id := range scope {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			content, err := o.renderPackage(gctx, tmpl, id)
			if err != nil {
				return err
			}
			jobs[offset+i] = job{rel: o.conv.ManifestPath(id), content: content}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return jobs, nil
}

func (o *Orchestrator) renderPackage(ctx context.Context, tmpl *render.Template, id hal.PackageID) (string, error) {
	files, err := o.catalog.SpecFiles(ctx, id)
	if err != nil {
		return "", o.classify("list specs", id.String(), err)
	}
	imports, err := o.catalog.Imports(ctx, id)
	if err != nil {
		return "", o.classify("parse", id.String(), err)
	}
	content, err := o.renderer.Render(tmpl, id, files, o.resolver.Resolve(id, imports))
	if err != nil {
		return "", o.classify("render", id.String(), err)
	}
	return content, nil
}

// writeAll syncs jobs to disk and returns the sorted changed paths. The
// root manifest is written before any package manifest. On error the
// paths changed so far are still returned.
func (o *Orchestrator) writeAll(ctx context.Context, jobs []job) ([]string, error) {
	changed := make([]bool, len(jobs))
	collect := func() []string {
		var out []string
		for i, c := range changed {
			if c {
				out = append(out, jobs[i].rel)
			}
		}
		slices.Sort(out)
		return out
	}

	rest := jobs
	if len(jobs) > 0 && jobs[0].root {
		c, err := o.writer.Sync(jobs[0].rel, jobs[0].content)
		if err != nil {
			return nil, o.classify("write", jobs[0].rel, err)
		}
		changed[0] = c
		rest = jobs[1:]
	}
	base := len(jobs) - len(rest)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)
	for i, j := range rest {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			c, err := o.writer.Sync(j.rel, j.content)
			if err != nil {
				return o.classify("write", j.rel, err)
			}
			changed[base+i] = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return collect(), o.classify("write", o.projectRoot, err)
	}
	return collect(), nil
}

