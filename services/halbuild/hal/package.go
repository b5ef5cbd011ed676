// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package hal models versioned interface packages and the naming
// conventions that map them onto source and build-tree paths.
//
// Everything in this package is pure: no filesystem access, no globals
// beyond compiled patterns.
package hal

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
)

var (
	// ErrInvalidName is returned when a package name is not a dotted
	// identifier chain.
	ErrInvalidName = errors.New("invalid package name")

	// ErrInvalidVersion is returned when a version is not major.minor.
	ErrInvalidVersion = errors.New("invalid package version")

	// ErrInvalidRef is returned when an import reference is malformed.
	ErrInvalidRef = errors.New("invalid import reference")
)

var (
	identPattern   = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	versionPattern = regexp.MustCompile(`^[0-9]+\.[0-9]+$`)
)

// IsIdentifier reports whether s is a single name segment.
func IsIdentifier(s string) bool {
	return identPattern.MatchString(s)
}

// IsVersion reports whether s has the form major.minor.
func IsVersion(s string) bool {
	return versionPattern.MatchString(s)
}

// PackageID identifies an interface package relative to the first-party
// prefix, e.g. {Name: "automotive.vehicle", Version: "2.0"}.
//
// PackageID is a comparable value and may be used as a map key.
type PackageID struct {
	Name    string
	Version string
}

// ParsePackageID parses "name@major.minor".
//
// # Description
//
// Validates both halves before returning, so callers can reject bad user
// input before touching the filesystem.
//
// # Inputs
//
//   - s: Text such as "nfc@1.0" or "automotive.vehicle@2.0".
//
// # Outputs
//
//   - PackageID: The parsed id.
//   - error: Wraps ErrInvalidName or ErrInvalidVersion.
func ParsePackageID(s string) (PackageID, error) {
	name, version, ok := strings.Cut(s, "@")
	if !ok {
		return PackageID{}, fmt.Errorf("%w: %q has no @version", ErrInvalidVersion, s)
	}
	id := PackageID{Name: name, Version: version}
	if err := id.Validate(); err != nil {
		return PackageID{}, err
	}
	return id, nil
}

// MustParsePackageID is ParsePackageID for literals. It panics on error.
func MustParsePackageID(s string) PackageID {
	id, err := ParsePackageID(s)
	if err != nil {
		panic(err)
	}
	return id
}

// Validate checks that the name is a dotted identifier chain and the
// version is major.minor.
func (p PackageID) Validate() error {
	if !validDotted(p.Name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, p.Name)
	}
	if !IsVersion(p.Version) {
		return fmt.Errorf("%w: %q", ErrInvalidVersion, p.Version)
	}
	return nil
}

// String returns "name@version".
func (p PackageID) String() string {
	return p.Name + "@" + p.Version
}

// Compare orders ids by name, then version, lexicographically.
func (p PackageID) Compare(o PackageID) int {
	if c := strings.Compare(p.Name, o.Name); c != 0 {
		return c
	}
	return strings.Compare(p.Version, o.Version)
}

func validDotted(name string) bool {
	if name == "" {
		return false
	}
	for _, seg := range strings.Split(name, ".") {
		if !IsIdentifier(seg) {
			return false
		}
	}
	return true
}

// Catalog is the sorted, duplicate-free set of packages found by one
// discovery pass.
type Catalog []PackageID

// NewCatalog sorts and de-duplicates ids into a Catalog.
func NewCatalog(ids ...PackageID) Catalog {
	out := slices.Clone(ids)
	slices.SortFunc(out, PackageID.Compare)
	return Catalog(slices.Compact(out))
}

// Ref is a fully qualified package reference such as
// "android.hardware.vibrator@1.3". Member suffixes are never stored.
type Ref struct {
	Name    string
	Version string
}

// ParseRef parses "pkg.name@major.minor" with an optional "::Member"
// suffix, which is stripped and returned separately.
func ParseRef(s string) (Ref, string, error) {
	base, member, _ := strings.Cut(strings.TrimSpace(s), "::")
	name, version, ok := strings.Cut(base, "@")
	if !ok || !validDotted(name) || !IsVersion(version) {
		return Ref{}, "", fmt.Errorf("%w: %q", ErrInvalidRef, s)
	}
	return Ref{Name: name, Version: version}, member, nil
}

// String returns "name@version".
func (r Ref) String() string {
	return r.Name + "@" + r.Version
}

// Compare orders refs by their string form.
func (r Ref) Compare(o Ref) int {
	return strings.Compare(r.String(), o.String())
}
