// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package catalog discovers interface packages in the source tree and
// reports what each package imports.
//
// # Discovery Rules
//
// A directory under the interface root is a package when its relative path
// is "<name-path>/<major>.<minor>" and:
//
//   - every name-path segment is an identifier
//   - no segment is a reserved test-fixture segment (default "tests")
//   - no segment is hidden (starts with ".")
//   - the path matches no configured exclude glob
//
// Results never depend on directory listing order.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/go-git/go-billy/v5"

	"github.com/AleutianAI/halbuild/services/halbuild/hal"
	"github.com/AleutianAI/halbuild/services/halbuild/specparse"
)

var (
	// ErrRootNotFound is returned when the interface root is missing.
	ErrRootNotFound = errors.New("interface root not found")

	// ErrPackageNotFound is returned by Lookup for a package that is absent
	// or excluded from discovery.
	ErrPackageNotFound = errors.New("package not found")

	// ErrInvalidPattern is returned for a malformed exclude glob.
	ErrInvalidPattern = errors.New("invalid exclude pattern")
)

// DefaultReservedSegments are path segments that mark test fixtures.
var DefaultReservedSegments = []string{"tests"}

// Reader walks the interface tree. It is safe for concurrent use once
// constructed.
type Reader struct {
	fs       billy.Filesystem
	root     string
	conv     hal.Conventions
	parser   specparse.Parser
	reserved []string
	exclude  []string
	cache    ImportCache
	logger   *slog.Logger
}

// Option configures a Reader.
type Option func(*Reader)

// WithReservedSegments replaces DefaultReservedSegments.
func WithReservedSegments(segments ...string) Option {
	return func(r *Reader) {
		r.reserved = slices.Clone(segments)
	}
}

// WithExcludes adds doublestar globs, matched against slash paths relative
// to the interface root (e.g. "automotive/**").
func WithExcludes(patterns ...string) Option {
	return func(r *Reader) {
		r.exclude = append(r.exclude, patterns...)
	}
}

// WithCache enables import memoisation.
func WithCache(cache ImportCache) Option {
	return func(r *Reader) {
		r.cache = cache
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reader) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewReader creates a Reader over root on fs.
//
// # Inputs
//
//   - fs: Filesystem rooted at the build top.
//   - root: Interface tree relative to fs, e.g. "hardware/interfaces".
//   - conv: Naming conventions used to qualify self references.
//   - parser: Spec collaborator.
//
// # Outputs
//
//   - *Reader: Ready for use.
//   - error: ErrInvalidPattern if an exclude glob is malformed.
func NewReader(fs billy.Filesystem, root string, conv hal.Conventions, parser specparse.Parser, opts ...Option) (*Reader, error) {
	r := &Reader{
		fs:       fs,
		root:     path.Clean(root),
		conv:     conv,
		parser:   parser,
		reserved: DefaultReservedSegments,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	for _, p := range r.exclude {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPattern, p)
		}
	}
	return r, nil
}

// Discover walks the interface root and returns every package.
//
// # Description
//
// Walks depth-first. Subtrees that can no longer yield a package are
// pruned: hidden or reserved directories, excluded paths, version
// directories and directories whose name is not an identifier.
//
// # Outputs
//
//   - hal.Catalog: Sorted, duplicate-free package set.
//   - error: ErrRootNotFound, a read error, or ctx.Err().
func (r *Reader) Discover(ctx context.Context) (hal.Catalog, error) {
	info, err := r.fs.Stat(r.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrRootNotFound, r.root)
		}
		return nil, fmt.Errorf("stat %s: %w", r.root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrRootNotFound, r.root)
	}

	var found []hal.PackageID
	if err := r.walk(ctx, nil, &found); err != nil {
		return nil, err
	}

	catalog := hal.NewCatalog(found...)
	r.logger.Debug("discovery complete", slog.String("root", r.root), slog.Int("packages", len(catalog)))
	return catalog, nil
}

func (r *Reader) walk(ctx context.Context, segs []string, found *[]hal.PackageID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dir := path.Join(append([]string{r.root}, segs...)...)
	entries, err := r.fs.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read %s: %w", dir, err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		if r.skipSegment(name) {
			continue
		}
		rel := path.Join(append(slices.Clone(segs), name)...)
		if r.excluded(rel) {
			r.logger.Debug("excluded", slog.String("path", rel))
			continue
		}

		switch {
		case hal.IsVersion(name):
			if len(segs) > 0 {
				*found = append(*found, hal.PackageID{Name: strings.Join(segs, "."), Version: name})
			}
		case hal.IsIdentifier(name):
			if err := r.walk(ctx, append(slices.Clone(segs), name), found); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *Reader) skipSegment(name string) bool {
	return strings.HasPrefix(name, ".") || slices.Contains(r.reserved, name)
}

func (r *Reader) excluded(rel string) bool {
	for _, p := range r.exclude {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

// Lookup confirms that id would be discovered, without walking the tree.
//
// Returns ErrPackageNotFound, naming the package and its expected
// directory, when the directory is missing or filtered out.
func (r *Reader) Lookup(ctx context.Context, id hal.PackageID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := id.Validate(); err != nil {
		return err
	}

	specDir := hal.SpecDir(id)
	for _, seg := range strings.Split(specDir, "/") {
		if r.skipSegment(seg) {
			return fmt.Errorf("%w: %s (path segment %q is reserved)", ErrPackageNotFound, id, seg)
		}
	}
	for rel := specDir; rel != "."; rel = path.Dir(rel) {
		if r.excluded(rel) {
			return fmt.Errorf("%w: %s (excluded by pattern)", ErrPackageNotFound, id)
		}
	}

	full := path.Join(r.root, specDir)
	info, err := r.fs.Stat(full)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s (expected %s)", ErrPackageNotFound, id, full)
		}
		return fmt.Errorf("stat %s: %w", full, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s (%s is not a directory)", ErrPackageNotFound, id, full)
	}
	return nil
}

// SpecFiles returns the ordered spec file names of id.
func (r *Reader) SpecFiles(ctx context.Context, id hal.PackageID) ([]string, error) {
	return r.parser.SpecFiles(ctx, id)
}

// Imports returns the packages id imports across all of its spec files.
//
// # Description
//
// Member suffixes are stripped, the package's own reference is removed and
// the result is sorted and de-duplicated, so the output is a set.
//
// # Outputs
//
//   - []hal.Ref: Imported packages, possibly empty.
//   - error: A parser error, or hal.ErrInvalidRef wrapped with the file
//     name when the parser yields an unqualified reference.
func (r *Reader) Imports(ctx context.Context, id hal.PackageID) ([]hal.Ref, error) {
	files, err := r.parser.SpecFiles(ctx, id)
	if err != nil {
		return nil, err
	}

	self := r.conv.RefOf(id)
	seen := make(map[hal.Ref]struct{})
	for _, file := range files {
		raw, err := r.fileImports(ctx, id, file)
		if err != nil {
			return nil, err
		}
		for _, s := range raw {
			ref, _, err := hal.ParseRef(s)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", path.Join(hal.SpecDir(id), file), err)
			}
			if ref == self {
				continue
			}
			seen[ref] = struct{}{}
		}
	}

	refs := make([]hal.Ref, 0, len(seen))
	for ref := range seen {
		refs = append(refs, ref)
	}
	slices.SortFunc(refs, hal.Ref.Compare)
	return refs, nil
}

func (r *Reader) fileImports(ctx context.Context, id hal.PackageID, file string) ([]string, error) {
	if r.cache == nil {
		return r.parser.Imports(ctx, id, file)
	}

	name := path.Join(r.root, hal.SpecDir(id), file)
	content, err := specparse.ReadSpec(r.fs, name)
	if err != nil {
		return r.parser.Imports(ctx, id, file)
	}
	key := CacheKey(r.conv.Prefix+":"+name, content)
	if imports, ok := r.cache.Get(key); ok {
		return imports, nil
	}

	imports, err := r.parser.Imports(ctx, id, file)
	if err != nil {
		return nil, err
	}
	if err := r.cache.Put(key, imports); err != nil {
		r.logger.Warn("import cache write failed", slog.String("file", name), slog.String("error", err.Error()))
	}
	return imports, nil
}
