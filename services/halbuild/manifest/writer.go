// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package manifest writes generated build manifests into the managed tree.
//
// The writer compares before it writes. A manifest whose bytes already
// match the rendered content is never touched, so modification times and
// version-control state stay stable across no-op runs.
package manifest

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/sourcegraph/go-diff/diff"
)

// Writer syncs manifests under a project root on a billy filesystem.
//
// # Thread Safety
//
// Safe for concurrent use on distinct paths. Concurrent Sync calls for the
// same path are not coordinated.
type Writer struct {
	fs     billy.Filesystem
	root   string
	logger *slog.Logger
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithLogger sets the logger used for update notices.
func WithLogger(logger *slog.Logger) WriterOption {
	return func(w *Writer) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// NewWriter returns a Writer for manifests under root on fs.
func NewWriter(fs billy.Filesystem, root string, opts ...WriterOption) *Writer {
	w := &Writer{fs: fs, root: path.Clean(root), logger: slog.Default()}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// resolve maps a project-relative path to a filesystem path, rejecting
// anything that would land outside the root.
func (w *Writer) resolve(rel string) (string, error) {
	if rel == "" || path.IsAbs(rel) || strings.Contains(rel, "\\") {
		return "", fmt.Errorf("%w: %q", ErrPathTraversal, rel)
	}
	clean := path.Clean(rel)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%w: %q", ErrPathTraversal, rel)
	}
	return path.Join(w.root, clean), nil
}

func (w *Writer) read(rel, full string) (string, bool, error) {
	info, err := w.fs.Stat(full)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", false, nil
		}
		return "", false, &WriteError{Op: "read", Path: rel, Err: err}
	}
	if info.IsDir() {
		return "", false, &WriteError{Op: "read", Path: rel, Err: ErrNotAFile}
	}

	f, err := w.fs.Open(full)
	if err != nil {
		return "", false, &WriteError{Op: "read", Path: rel, Err: err}
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return "", false, &WriteError{Op: "read", Path: rel, Err: err}
	}
	return string(data), true, nil
}

// Sync makes the manifest at rel hold exactly content.
//
// # Description
//
// Reads the existing file and compares bytes. When they differ, or the
// file is absent, missing parent directories are created and the new
// content replaces the file through a temporary file and rename, so a
// reader never observes a half-written manifest.
//
// # Inputs
//
//   - rel: Path relative to the project root, slash separated.
//   - content: Rendered manifest.
//
// # Outputs
//
//   - bool: True if the file was written.
//   - error: ErrPathTraversal or a *WriteError.
func (w *Writer) Sync(rel, content string) (bool, error) {
	full, err := w.resolve(rel)
	if err != nil {
		return false, err
	}

	current, exists, err := w.read(rel, full)
	if err != nil {
		return false, err
	}
	if exists && current == content {
		w.logger.Debug("manifest up to date", slog.String("path", rel))
		return false, nil
	}

	if err := w.write(full, content); err != nil {
		return false, &WriteError{Op: "write", Path: rel, Err: err}
	}

	w.logger.Info("Updating "+path.Join(w.root, rel), slog.Bool("created", !exists))
	return true, nil
}

func (w *Writer) write(full, content string) error {
	dir := path.Dir(full)
	if err := w.fs.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := util.TempFile(w.fs, dir, "."+path.Base(full)+".tmp-")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := io.WriteString(tmp, content); err != nil {
		tmp.Close()
		_ = w.fs.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = w.fs.Remove(tmpName)
		return err
	}
	if err := w.fs.Rename(tmpName, full); err != nil {
		_ = w.fs.Remove(tmpName)
		return err
	}
	return nil
}

// Diff reports how the manifest at rel differs from content without
// writing anything. It returns nil when the file already matches.
func (w *Writer) Diff(rel, content string) (*diff.FileDiff, error) {
	full, err := w.resolve(rel)
	if err != nil {
		return nil, err
	}
	current, exists, err := w.read(rel, full)
	if err != nil {
		return nil, err
	}
	if exists && current == content {
		return nil, nil
	}
	return UnifiedDiff(path.Join(w.root, rel), current, content, exists), nil
}
