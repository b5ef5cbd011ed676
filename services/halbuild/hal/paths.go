// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package hal

import (
	"path"
	"strings"
	"unicode"
)

const (
	// DefaultPrefix is the first-party package namespace.
	DefaultPrefix = "android.hardware"

	// ManifestName is the build manifest file name.
	ManifestName = "Android.bp"

	// SpecExt is the interface spec file extension.
	SpecExt = ".hal"

	// VtsSpecExt is the extension of the generated test spec files.
	VtsSpecExt = ".vts"
)

// Conventions binds the naming rules to a first-party prefix. All paths
// returned are slash-separated and relative to the tree they belong to.
type Conventions struct {
	// Prefix is the first-party namespace, e.g. "android.hardware".
	Prefix string

	// ManifestName overrides ManifestName when non-empty.
	ManifestName string
}

// DefaultConventions returns Conventions for DefaultPrefix.
func DefaultConventions() Conventions {
	return Conventions{Prefix: DefaultPrefix, ManifestName: ManifestName}
}

// NameDir converts "automotive.vehicle" to "automotive/vehicle".
func NameDir(name string) string {
	return strings.ReplaceAll(name, ".", "/")
}

// VersionDir converts "1.0" to "V1_0".
func VersionDir(version string) string {
	return "V" + strings.ReplaceAll(version, ".", "_")
}

// SpecDir returns the package directory relative to the interface root,
// e.g. "vibrator/1.0".
func SpecDir(id PackageID) string {
	return path.Join(NameDir(id.Name), id.Version)
}

// PackageDir returns the output directory relative to the project root,
// e.g. "vibrator/V1_0".
func PackageDir(id PackageID) string {
	return path.Join(NameDir(id.Name), VersionDir(id.Version))
}

// ManifestPath returns the manifest path relative to the project root.
func (c Conventions) ManifestPath(id PackageID) string {
	return path.Join(PackageDir(id), c.manifestName())
}

// RootManifestPath returns the project-root manifest path.
func (c Conventions) RootManifestPath() string {
	return c.manifestName()
}

func (c Conventions) manifestName() string {
	if c.ManifestName == "" {
		return ManifestName
	}
	return c.ManifestName
}

// FullName returns "<prefix>.<name>".
func (c Conventions) FullName(id PackageID) string {
	if c.Prefix == "" {
		return id.Name
	}
	return c.Prefix + "." + id.Name
}

// RefOf returns the fully qualified reference for id.
func (c Conventions) RefOf(id PackageID) Ref {
	return Ref{Name: c.FullName(id), Version: id.Version}
}

// IsFirstParty reports whether r lives under the prefix namespace.
func (c Conventions) IsFirstParty(r Ref) bool {
	if c.Prefix == "" {
		return false
	}
	return r.Name == c.Prefix || strings.HasPrefix(r.Name, c.Prefix+".")
}

// GeneratedPath returns the path of a generated artifact, e.g.
// "android/hardware/vibrator/1.0/Vibrator.vts" for ext "" or
// "android/hardware/vibrator/1.0/Vibrator.vts.cpp" for ext ".cpp".
func (c Conventions) GeneratedPath(id PackageID, vtsSpec, ext string) string {
	return path.Join(NameDir(c.Prefix), NameDir(id.Name), id.Version, vtsSpec+ext)
}

// VtsSpecName maps an interface spec file to its test spec name:
// "IVibrator.hal" becomes "Vibrator.vts" and "types.hal" becomes
// "types.vts".
func VtsSpecName(specFile string) string {
	base := strings.TrimSuffix(path.Base(specFile), SpecExt)
	runes := []rune(base)
	if len(runes) > 1 && runes[0] == 'I' && unicode.IsUpper(runes[1]) {
		base = string(runes[1:])
	}
	return base + VtsSpecExt
}
