// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package resolve

import (
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/AleutianAI/halbuild/services/halbuild/hal"
)

func ref(s string) hal.Ref {
	r, _, err := hal.ParseRef(s)
	if err != nil {
		panic(err)
	}
	return r
}

func TestResolve_FirstPartyAndPassThrough(t *testing.T) {
	r := New(hal.DefaultConventions())

	got := r.Resolve(hal.MustParsePackageID("vibrator@1.0"), []hal.Ref{
		ref("android.hardware.sensors@1.0"),
		ref("android.hidl.base@1.0"),
	})

	assert.Equal(t, []string{
		"android.hardware.sensors.vts.driver@1.0",
		"android.hidl.base@1.0",
	}, got.Driver)
	assert.Equal(t, []string{
		"android.hardware.sensors@1.0-vts.profiler",
		"android.hidl.base@1.0",
	}, got.Profiler)
}

func TestResolve_ExcludesSelf(t *testing.T) {
	r := New(hal.DefaultConventions())
	id := hal.MustParsePackageID("vibrator@1.0")

	got := r.Resolve(id, []hal.Ref{ref("android.hardware.vibrator@1.0"), ref("android.hardware.vibrator@1.1")})

	assert.Equal(t, []string{"android.hardware.vibrator.vts.driver@1.1"}, got.Driver)
	assert.Equal(t, []string{"android.hardware.vibrator@1.1-vts.profiler"}, got.Profiler)
}

func TestResolve_Empty(t *testing.T) {
	got := New(hal.DefaultConventions()).Resolve(hal.MustParsePackageID("nfc@1.0"), nil)
	assert.NotNil(t, got.Driver)
	assert.NotNil(t, got.Profiler)
	assert.Empty(t, got.Driver)
	assert.Empty(t, got.Profiler)
}

func TestResolve_SortDedupLaw(t *testing.T) {
	r := New(hal.DefaultConventions())
	id := hal.MustParsePackageID("camera.device@3.2")
	imports := []hal.Ref{
		ref("android.hardware.graphics.common@1.0"),
		ref("android.hardware.camera.common@1.0"),
		ref("android.hidl.base@1.0"),
		ref("android.hardware.graphics.common@1.0"),
		ref("android.hardware.camera.device@1.0"),
		ref("android.hidl.base@1.0"),
	}
	want := r.Resolve(id, imports)

	assert.True(t, slices.IsSorted(want.Driver))
	assert.True(t, slices.IsSorted(want.Profiler))
	assert.Len(t, want.Driver, 4)
	assert.Len(t, want.Profiler, 4)

	rnd := rand.New(rand.NewPCG(7, 11))
	for i := 0; i < 25; i++ {
		shuffled := slices.Clone(imports)
		rnd.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		assert.Equal(t, want, r.Resolve(id, shuffled))
	}
}

func TestProjectionNames(t *testing.T) {
	r := New(hal.DefaultConventions())
	assert.Equal(t, "android.hardware.nfc.vts.driver@1.0", r.Driver(ref("android.hardware.nfc@1.0")))
	assert.Equal(t, "android.hardware.nfc@1.0-vts.profiler", r.Profiler(ref("android.hardware.nfc@1.0")))
	assert.Equal(t, "android.hardwarex.nfc@1.0", r.Driver(ref("android.hardwarex.nfc@1.0")))

	var zero Resolver
	assert.Equal(t, "android.hardware.nfc@1.0", zero.Driver(ref("android.hardware.nfc@1.0")))
}
