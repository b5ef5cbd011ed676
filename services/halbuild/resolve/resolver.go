// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package resolve projects a package's imports onto the build libraries its
// generated test driver and profiler must link against.
package resolve

import (
	"slices"
	"strings"

	"github.com/AleutianAI/halbuild/services/halbuild/hal"
)

// Projection holds the two derived dependency lists of one package. Both
// lists are sorted and duplicate-free.
type Projection struct {
	Driver   []string
	Profiler []string
}

// Resolver derives projections. The zero value uses no first-party prefix,
// so every reference passes through unchanged.
type Resolver struct {
	conv hal.Conventions
}

// New returns a Resolver bound to conv.
func New(conv hal.Conventions) *Resolver {
	return &Resolver{conv: conv}
}

// Driver maps a first-party ref to its driver library name:
// "android.hardware.nfc@1.0" becomes "android.hardware.nfc.vts.driver@1.0".
func (r *Resolver) Driver(ref hal.Ref) string {
	if !r.conv.IsFirstParty(ref) {
		return ref.String()
	}
	return ref.Name + ".vts.driver@" + ref.Version
}

// Profiler maps a first-party ref to its profiler library name:
// "android.hardware.nfc@1.0" becomes "android.hardware.nfc@1.0-vts.profiler".
func (r *Resolver) Profiler(ref hal.Ref) string {
	if !r.conv.IsFirstParty(ref) {
		return ref.String()
	}
	return ref.String() + "-vts.profiler"
}

// Resolve computes the projection of id's imports.
//
// # Description
//
// Applies Driver and Profiler to each import, drops any reference to id
// itself, and returns both lists sorted and de-duplicated. Imports outside
// the first-party namespace appear unchanged in both lists.
//
// # Inputs
//
//   - id: The package being rendered.
//   - imports: Its imports, in any order, possibly with duplicates.
//
// # Outputs
//
//   - Projection: Never nil slices.
func (r *Resolver) Resolve(id hal.PackageID, imports []hal.Ref) Projection {
	self := r.conv.RefOf(id)

	driver := make([]string, 0, len(imports))
	profiler := make([]string, 0, len(imports))
	for _, ref := range imports {
		if ref == self {
			continue
		}
		driver = append(driver, r.Driver(ref))
		profiler = append(profiler, r.Profiler(ref))
	}
	return Projection{Driver: sortedSet(driver), Profiler: sortedSet(profiler)}
}

func sortedSet(items []string) []string {
	slices.SortFunc(items, strings.Compare)
	return slices.Compact(items)
}
