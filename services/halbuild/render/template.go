// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package render

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
)

//go:embed templates/vts_build_template.bp
var defaultTemplate string

var (
	// ErrTemplateNotFound is returned when the configured template is absent.
	ErrTemplateNotFound = errors.New("manifest template not found")

	// ErrTemplateExists is returned by WriteDefaultTemplate when the
	// destination exists and force is false.
	ErrTemplateExists = errors.New("manifest template already exists")
)

// DefaultTemplate returns the built-in manifest template.
func DefaultTemplate() *Template {
	return NewTemplate("default", defaultTemplate)
}

// LoadTemplate reads a template from fs.
func LoadTemplate(fs billy.Filesystem, name string) (*Template, error) {
	f, err := fs.Open(name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
		}
		return nil, fmt.Errorf("open template %s: %w", name, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read template %s: %w", name, err)
	}
	return NewTemplate(name, string(data)), nil
}

// WriteDefaultTemplate installs the built-in template at name.
//
// An existing file is left untouched unless force is set, in which case it
// is overwritten.
func WriteDefaultTemplate(fs billy.Filesystem, name string, force bool) error {
	if _, err := fs.Stat(name); err == nil && !force {
		return fmt.Errorf("%w: %s (use --force to overwrite)", ErrTemplateExists, name)
	}
	if err := fs.MkdirAll(path.Dir(name), 0o755); err != nil {
		return fmt.Errorf("create template directory: %w", err)
	}
	if err := util.WriteFile(fs, name, []byte(defaultTemplate), 0o644); err != nil {
		return fmt.Errorf("write template %s: %w", name, err)
	}
	return nil
}
