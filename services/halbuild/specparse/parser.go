// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package specparse reads interface spec files and extracts what a build
// manifest needs from them: the list of spec files in a package and the
// imports each one declares.
//
// The sync engine consumes the Parser interface only. HIDLParser is the
// default implementation for .hal sources; it understands comments,
// package declarations and import statements and ignores everything else.
package specparse

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"slices"
	"strings"

	"github.com/go-git/go-billy/v5"

	"github.com/AleutianAI/halbuild/services/halbuild/hal"
)

var (
	// ErrSyntax is matched by every *SyntaxError.
	ErrSyntax = errors.New("spec syntax error")

	// ErrSpecDirNotFound is returned when a package has no spec directory.
	ErrSpecDirNotFound = errors.New("spec directory not found")
)

// Parser is the spec-reading collaborator used during discovery.
//
// Implementations must be deterministic: the same tree yields the same
// files and imports regardless of call order or concurrency.
type Parser interface {
	// SpecFiles lists the spec file names of a package in a stable order.
	SpecFiles(ctx context.Context, id hal.PackageID) ([]string, error)

	// Imports returns the raw references one spec file imports. Member
	// suffixes ("::IFoo") are preserved; callers strip them.
	Imports(ctx context.Context, id hal.PackageID, file string) ([]string, error)
}

// SyntaxError reports a malformed declaration in a spec file.
type SyntaxError struct {
	File   string
	Line   int
	Text   string
	Reason string
}

// Error returns "file:line: reason: text".
func (e *SyntaxError) Error() string {
	if e.Text == "" {
		return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Reason)
	}
	return fmt.Sprintf("%s:%d: %s: %q", e.File, e.Line, e.Reason, e.Text)
}

// Unwrap returns ErrSyntax.
func (e *SyntaxError) Unwrap() error {
	return ErrSyntax
}

// File is the parse result of a single spec file.
type File struct {
	// Package is the declared package, if a declaration is present.
	Package *hal.Ref

	// Imports holds raw references in declaration order.
	Imports []string
}

// HIDLParser reads .hal files from a billy filesystem.
type HIDLParser struct {
	fs   billy.Filesystem
	root string
	conv hal.Conventions
}

// NewHIDLParser returns a parser for spec files under root on fs. root is
// the interface tree, e.g. "hardware/interfaces".
func NewHIDLParser(fs billy.Filesystem, root string, conv hal.Conventions) *HIDLParser {
	return &HIDLParser{fs: fs, root: root, conv: conv}
}

// SpecFiles lists *.hal files directly inside the package's spec directory,
// sorted by name.
func (p *HIDLParser) SpecFiles(ctx context.Context, id hal.PackageID) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir := path.Join(p.root, hal.SpecDir(id))
	entries, err := p.fs.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSpecDirNotFound, dir)
		}
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), hal.SpecExt) {
			continue
		}
		files = append(files, entry.Name())
	}
	slices.Sort(files)
	return files, nil
}

// Imports parses one spec file of id and returns its imports.
func (p *HIDLParser) Imports(ctx context.Context, id hal.PackageID, file string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	src, err := ReadSpec(p.fs, path.Join(p.root, hal.SpecDir(id), file))
	if err != nil {
		return nil, err
	}
	parsed, err := Parse(file, src, p.conv.RefOf(id))
	if err != nil {
		return nil, err
	}
	return parsed.Imports, nil
}

// ReadSpec returns the content of a spec file.
func ReadSpec(fs billy.Filesystem, name string) ([]byte, error) {
	f, err := fs.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return data, nil
}

// Parse scans src for package and import declarations.
//
// # Description
//
// Comments are blanked first (line numbers are preserved), then the text is
// split into statements at ';', '{' and '}'. Statements beginning with the
// "package" or "import" keyword are validated; all others are ignored.
//
// # Inputs
//
//   - file: Name used in error positions.
//   - src: File content.
//   - self: The package the file belongs to. A bare "import IFoo;" refers
//     to a type of this package and yields "<self>::IFoo".
//
// # Outputs
//
//   - *File: Declarations found.
//   - error: *SyntaxError for malformed declarations, an unterminated
//     block comment, or a package declaration that is not self.
func Parse(file string, src []byte, self hal.Ref) (*File, error) {
	text, err := stripComments(file, string(src))
	if err != nil {
		return nil, err
	}

	out := &File{}
	for _, stmt := range splitStatements(text) {
		keyword, rest := splitKeyword(stmt.text)
		switch keyword {
		case "package":
			ref, member, err := hal.ParseRef(rest)
			if err != nil || member != "" {
				return nil, &SyntaxError{File: file, Line: stmt.line, Text: stmt.text, Reason: "malformed package declaration"}
			}
			if ref != self {
				return nil, &SyntaxError{
					File:   file,
					Line:   stmt.line,
					Text:   stmt.text,
					Reason: fmt.Sprintf("package declaration does not match directory %s", self),
				}
			}
			out.Package = &ref
		case "import":
			ref, err := importRef(rest, self)
			if err != nil {
				return nil, &SyntaxError{File: file, Line: stmt.line, Text: stmt.text, Reason: err.Error()}
			}
			out.Imports = append(out.Imports, ref)
		}
	}
	return out, nil
}

func importRef(target string, self hal.Ref) (string, error) {
	if target == "" {
		return "", errors.New("import without a target")
	}
	if strings.ContainsAny(target, " \t\r\n") {
		return "", errors.New("malformed import")
	}
	if strings.Contains(target, "@") {
		if _, _, err := hal.ParseRef(target); err != nil {
			return "", errors.New("malformed import")
		}
		return target, nil
	}
	for _, seg := range strings.Split(target, ".") {
		if !hal.IsIdentifier(seg) {
			return "", errors.New("malformed import")
		}
	}
	return self.String() + "::" + target, nil
}

// splitKeyword returns the leading word of a statement and the remainder.
func splitKeyword(stmt string) (string, string) {
	i := strings.IndexAny(stmt, " \t\r\n")
	if i < 0 {
		return stmt, ""
	}
	return stmt[:i], strings.TrimSpace(stmt[i+1:])
}

type statement struct {
	text string
	line int
}

func splitStatements(text string) []statement {
	var (
		out   []statement
		b     strings.Builder
		line  = 1
		start = 0
	)
	flush := func() {
		if s := strings.TrimSpace(b.String()); s != "" {
			out = append(out, statement{text: s, line: start})
		}
		b.Reset()
		start = 0
	}
	for _, r := range text {
		switch r {
		case ';', '{', '}':
			flush()
		default:
			if start == 0 && !isSpace(r) {
				start = line
			}
			b.WriteRune(r)
		}
		if r == '\n' {
			line++
		}
	}
	flush()
	return out
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\r' || r == '\n'
}

// stripComments blanks // and /* */ comments, keeping newlines so positions
// stay valid. Double-quoted strings are copied verbatim.
func stripComments(file, src string) (string, error) {
	var (
		b        strings.Builder
		line     = 1
		inString bool
	)
	b.Grow(len(src))

	for i := 0; i < len(src); i++ {
		c := src[i]
		switch {
		case inString:
			b.WriteByte(c)
			if c == '\\' && i+1 < len(src) {
				i++
				b.WriteByte(src[i])
			} else if c == '"' {
				inString = false
			}
		case c == '"':
			inString = true
			b.WriteByte(c)
		case c == '/' && i+1 < len(src) && src[i+1] == '/':
			for i+1 < len(src) && src[i+1] != '\n' {
				i++
			}
			continue
		case c == '/' && i+1 < len(src) && src[i+1] == '*':
			opened := line
			end := strings.Index(src[i+2:], "*/")
			if end < 0 {
				return "", &SyntaxError{File: file, Line: opened, Reason: "unterminated block comment"}
			}
			body := src[i : i+2+end+2]
			for _, ch := range body {
				if ch == '\n' {
					b.WriteByte('\n')
					line++
				}
			}
			b.WriteByte(' ')
			i += len(body) - 1
			continue
		default:
			b.WriteByte(c)
		}
		if c == '\n' {
			line++
		}
	}
	return b.String(), nil
}
