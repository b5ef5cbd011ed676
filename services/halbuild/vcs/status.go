// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package vcs reports the git state of generated manifests so that the
// review lock is only cleared once those manifests are committed.
package vcs

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/go-git/go-git/v5"
)

// ErrNotRepository is returned when no git repository contains the
// project directory.
var ErrNotRepository = errors.New("not inside a git repository")

// Change is the git state of one path.
type Change struct {
	// Path is relative to the directory passed to Pending.
	Path string

	// Staging and Worktree are the git status codes, e.g. '?' or 'M'.
	Staging  git.StatusCode
	Worktree git.StatusCode
}

// String renders the change as `git status --short` does.
func (c Change) String() string {
	return fmt.Sprintf("%c%c %s", c.Staging, c.Worktree, c.Path)
}

// Untracked reports whether git has never seen the path.
func (c Change) Untracked() bool {
	return c.Staging == git.Untracked
}

// Repo is a git working tree.
type Repo struct {
	repo *git.Repository
	root string
}

// Open finds the repository containing dir, searching parent directories.
//
// # Outputs
//
//   - *Repo: The repository.
//   - error: Wraps ErrNotRepository when dir is outside any repository.
func Open(dir string) (*Repo, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	repo, err := git.PlainOpenWithOptions(abs, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return nil, fmt.Errorf("%w: %s", ErrNotRepository, abs)
		}
		return nil, fmt.Errorf("open repository at %s: %w", abs, err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("worktree of %s: %w", abs, err)
	}
	return &Repo{repo: repo, root: wt.Filesystem.Root()}, nil
}

// Root returns the absolute worktree root.
func (r *Repo) Root() string {
	return r.root
}

// Pending returns the paths under dir that are not committed as they are
// on disk.
//
// # Description
//
// paths are relative to dir and slash-separated, as in syncer.Report. An
// empty paths slice reports every change under dir. A path that was
// deleted, modified, added or never tracked is pending; a clean path is
// not. The result is sorted by Path.
//
// # Inputs
//
//   - dir: Absolute or working-directory-relative directory inside the
//     worktree, usually the project root.
//   - paths: Paths to check, relative to dir.
//
// # Outputs
//
//   - []Change: Pending changes.
//   - error: Status or path errors.
func (r *Repo) Pending(dir string, paths []string) ([]Change, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	prefix, err := filepath.Rel(r.root, abs)
	if err != nil || strings.HasPrefix(prefix, "..") {
		return nil, fmt.Errorf("%s is outside worktree %s", abs, r.root)
	}
	prefix = filepath.ToSlash(prefix)
	if prefix == "." {
		prefix = ""
	} else {
		prefix += "/"
	}

	wt, err := r.repo.Worktree()
	if err != nil {
		return nil, err
	}
	status, err := wt.Status()
	if err != nil {
		return nil, fmt.Errorf("git status: %w", err)
	}

	var out []Change
	if len(paths) == 0 {
		for p, st := range status {
			rel, ok := strings.CutPrefix(p, prefix)
			if !ok || clean(st) {
				continue
			}
			out = append(out, Change{Path: rel, Staging: st.Staging, Worktree: st.Worktree})
		}
	} else {
		for _, p := range paths {
			// Status.File invents an untracked entry for unknown paths, so
			// look the path up directly.
			st, ok := status[prefix+p]
			if !ok || clean(st) {
				continue
			}
			out = append(out, Change{Path: p, Staging: st.Staging, Worktree: st.Worktree})
		}
	}
	slices.SortFunc(out, func(a, b Change) int { return strings.Compare(a.Path, b.Path) })
	return out, nil
}

func clean(st *git.FileStatus) bool {
	return st.Staging == git.Unmodified && st.Worktree == git.Unmodified
}
