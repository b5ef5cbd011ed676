// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package render turns a manifest template and one package's derived data
// into manifest text.
//
// Substitution is literal: each known placeholder token is replaced in a
// single pass, so substituted values are never themselves expanded. Any
// "{UPPER_CASE}" token still present afterwards is an error.
package render

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/AleutianAI/halbuild/services/halbuild/hal"
	"github.com/AleutianAI/halbuild/services/halbuild/resolve"
)

// Placeholder tokens understood by Render.
const (
	PlaceholderPrefix           = "{HAL_PACKAGE_PREFIX}"
	PlaceholderName             = "{HAL_NAME}"
	PlaceholderNameDir          = "{HAL_NAME_DIR}"
	PlaceholderVersion          = "{HAL_VERSION}"
	PlaceholderVtsSpecs         = "{GENERATED_VTS_SPECS}"
	PlaceholderSources          = "{GENERATED_SOURCES}"
	PlaceholderHeaders          = "{GENERATED_HEADERS}"
	PlaceholderDriverPackages   = "{IMPORTED_DRIVER_PACKAGES}"
	PlaceholderProfilerPackages = "{IMPORTED_PROFILER_PACKAGES}"
)

// Placeholders lists every supported token.
var Placeholders = []string{
	PlaceholderPrefix,
	PlaceholderName,
	PlaceholderNameDir,
	PlaceholderVersion,
	PlaceholderVtsSpecs,
	PlaceholderSources,
	PlaceholderHeaders,
	PlaceholderDriverPackages,
	PlaceholderProfilerPackages,
}

// listIndent separates rendered list items.
const listIndent = "\n        "

// ErrUnresolvedPlaceholder is matched by every *UnresolvedError.
var ErrUnresolvedPlaceholder = errors.New("unresolved template placeholder")

var tokenPattern = regexp.MustCompile(`\{[A-Z][A-Z0-9_]*\}`)

// UnresolvedError lists placeholder tokens left in rendered output.
type UnresolvedError struct {
	Template string
	Tokens   []string
}

// Error returns "template <name>: unresolved placeholder(s) {A}, {B}".
func (e *UnresolvedError) Error() string {
	return fmt.Sprintf("template %s: unresolved placeholder(s) %s", e.Template, strings.Join(e.Tokens, ", "))
}

// Unwrap returns ErrUnresolvedPlaceholder.
func (e *UnresolvedError) Unwrap() error {
	return ErrUnresolvedPlaceholder
}

// Template is an immutable manifest template.
type Template struct {
	name string
	text string
}

// NewTemplate wraps text. name is used in error messages only.
func NewTemplate(name, text string) *Template {
	return &Template{name: name, text: text}
}

// Name returns the template's display name.
func (t *Template) Name() string { return t.name }

// Text returns the raw template text.
func (t *Template) Text() string { return t.text }

func uniqueTokens(s string) []string {
	found := tokenPattern.FindAllString(s, -1)
	slices.Sort(found)
	return slices.Compact(found)
}

// Renderer renders package and root manifests.
type Renderer struct {
	conv hal.Conventions
}

// New returns a Renderer bound to conv.
func New(conv hal.Conventions) *Renderer {
	return &Renderer{conv: conv}
}

// Render produces the manifest of one package.
//
// # Description
//
// Each spec file contributes one entry to the spec, source and header
// lists ("<prefix path>/<name dir>/<version>/<Spec>.vts" with extension
// "", ".cpp" and ".h"). The projection supplies the driver and profiler
// lists. Output is a pure function of the inputs.
//
// # Inputs
//
//   - tmpl: Template to fill.
//   - id: Package being rendered.
//   - specFiles: The package's spec file names, in parser order.
//   - proj: Dependency projection for id.
//
// # Outputs
//
//   - string: Rendered manifest.
//   - error: *UnresolvedError if a placeholder survives substitution.
func (r *Renderer) Render(tmpl *Template, id hal.PackageID, specFiles []string, proj resolve.Projection) (string, error) {
	vtsSpecs := make([]string, len(specFiles))
	for i, f := range specFiles {
		vtsSpecs[i] = hal.VtsSpecName(f)
	}

	replacer := strings.NewReplacer(
		PlaceholderPrefix, r.conv.Prefix,
		PlaceholderName, id.Name,
		PlaceholderNameDir, hal.NameDir(id.Name),
		PlaceholderVersion, id.Version,
		PlaceholderVtsSpecs, r.generatedList(id, vtsSpecs, ""),
		PlaceholderSources, r.generatedList(id, vtsSpecs, ".cpp"),
		PlaceholderHeaders, r.generatedList(id, vtsSpecs, ".h"),
		PlaceholderDriverPackages, quotedList(proj.Driver),
		PlaceholderProfilerPackages, quotedList(proj.Profiler),
	)
	out := replacer.Replace(tmpl.text)

	if leftover := uniqueTokens(out); len(leftover) > 0 {
		return "", &UnresolvedError{Template: tmpl.name, Tokens: leftover}
	}
	return out, nil
}

func (r *Renderer) generatedList(id hal.PackageID, vtsSpecs []string, ext string) string {
	paths := make([]string, len(vtsSpecs))
	for i, spec := range vtsSpecs {
		paths[i] = r.conv.GeneratedPath(id, spec, ext)
	}
	return quotedList(paths)
}

func quotedList(items []string) string {
	quoted := make([]string, len(items))
	for i, item := range items {
		quoted[i] = `"` + item + `",`
	}
	return strings.Join(quoted, listIndent)
}

// rootHeader starts every root manifest.
const rootHeader = "// This file was auto-generated. Do not edit manually.\n"

// Root renders the managed-tree root manifest, which lists every package
// output directory of catalog in sorted order.
func (r *Renderer) Root(catalog hal.Catalog) string {
	dirs := make([]string, 0, len(catalog))
	for _, id := range catalog {
		dirs = append(dirs, hal.PackageDir(id))
	}
	slices.Sort(dirs)
	dirs = slices.Compact(dirs)

	var b strings.Builder
	b.WriteString(rootHeader)
	b.WriteString("subdirs = [\n")
	for _, d := range dirs {
		fmt.Fprintf(&b, "    %q,\n", d)
	}
	b.WriteString("]\n")
	return b.String()
}
