// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package lock provides the two locks a sync run depends on.
//
// ReviewLock is the operator-facing sentinel: a zero-byte file created in
// the managed tree whenever a run changes a manifest, and removed by a
// human once the change has been reviewed and committed. Its presence on
// a run that changes nothing is a failure.
//
// RunLock is an advisory OS-level lock that keeps two sync runs from
// writing the same tree concurrently.
package lock

import (
	"errors"
	"fmt"
	"os"
	"path"

	"github.com/go-git/go-billy/v5"
)

// DefaultReviewLockName is the sentinel file name.
const DefaultReviewLockName = "repo_upload_lock"

// ErrReviewLockAbsent is returned by Remove when there is nothing to remove.
var ErrReviewLockAbsent = errors.New("review lock not present")

// ReviewLock is the review sentinel at a fixed path on a filesystem.
type ReviewLock struct {
	fs   billy.Filesystem
	path string
}

// NewReviewLock returns the sentinel named name inside dir on fs.
func NewReviewLock(fs billy.Filesystem, dir, name string) *ReviewLock {
	if name == "" {
		name = DefaultReviewLockName
	}
	return &ReviewLock{fs: fs, path: path.Join(dir, name)}
}

// Path returns the sentinel path relative to the filesystem.
func (l *ReviewLock) Path() string {
	return l.path
}

// Exists reports whether the sentinel is present.
func (l *ReviewLock) Exists() (bool, error) {
	_, err := l.fs.Stat(l.path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("stat review lock %s: %w", l.path, err)
}

// Create writes the sentinel as an empty file. An existing sentinel is
// truncated, which leaves it unchanged.
func (l *ReviewLock) Create() error {
	if err := l.fs.MkdirAll(path.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create review lock directory: %w", err)
	}
	f, err := l.fs.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create review lock %s: %w", l.path, err)
	}
	return f.Close()
}

// Remove deletes the sentinel. It returns ErrReviewLockAbsent when the
// sentinel does not exist.
func (l *ReviewLock) Remove() error {
	exists, err := l.Exists()
	if err != nil {
		return err
	}
	if !exists {
		return ErrReviewLockAbsent
	}
	if err := l.fs.Remove(l.path); err != nil {
		return fmt.Errorf("remove review lock %s: %w", l.path, err)
	}
	return nil
}
