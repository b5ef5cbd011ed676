// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package manifest

import (
	"errors"
	"fmt"
)

var (
	// ErrPathTraversal is returned when a manifest path escapes the project
	// root. Nothing outside the managed tree is ever written.
	ErrPathTraversal = errors.New("path escapes project root")

	// ErrNotAFile is returned when the manifest path names a directory.
	ErrNotAFile = errors.New("manifest path is not a regular file")
)

// WriteError records a failed read or write of one manifest.
type WriteError struct {
	// Op is "read" or "write".
	Op string `json:"op"`

	// Path is relative to the project root.
	Path string `json:"path"`

	// Err is the underlying error.
	Err error `json:"error"`
}

// Error returns "<op> <path>: <err>".
func (e *WriteError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *WriteError) Unwrap() error {
	return e.Err
}
