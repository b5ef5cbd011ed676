// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package halbuildtest holds shared fixtures for halbuild package tests.
package halbuildtest

import (
	"io"
	"math/rand/v2"
	"os"
	"sync"
	"testing"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
)

const (
	// InterfaceRoot is the interface tree used by fixtures.
	InterfaceRoot = "hardware/interfaces"

	// ProjectRoot is the managed build tree used by fixtures.
	ProjectRoot = "test/vts-testcase/hal"

	// TemplatePath is where fixtures install Template.
	TemplatePath = ProjectRoot + "/script/build/template/vts_build_template.bp"
)

// Template is a compact manifest template exercising every placeholder.
const Template = `// {HAL_NAME}@{HAL_VERSION} ({HAL_NAME_DIR})
vts_specs = [
        {GENERATED_VTS_SPECS}
]
srcs = [
        {GENERATED_SOURCES}
]
headers = [
        {GENERATED_HEADERS}
]
driver_libs = [
        {IMPORTED_DRIVER_PACKAGES}
]
profiler_libs = [
        {IMPORTED_PROFILER_PACKAGES}
]
`

// Files maps slash paths to content.
type Files map[string]string

// VibratorSensors is a tree with vibrator@1.0 importing sensors@1.0, a
// second sensors version, a test fixture package and a hidden directory.
func VibratorSensors() Files {
	return Files{
		InterfaceRoot + "/vibrator/1.0/IVibrator.hal": `package android.hardware.vibrator@1.0;

import android.hardware.sensors@1.0::ISensors;
import android.hidl.base@1.0;
import types;

interface IVibrator {
    on(uint32_t timeoutMs) generates (Status vibratorOnRet);
};
`,
		InterfaceRoot + "/vibrator/1.0/types.hal": `package android.hardware.vibrator@1.0;

enum Status : uint32_t { OK, UNKNOWN_ERROR };
`,
		InterfaceRoot + "/sensors/1.0/ISensors.hal": `package android.hardware.sensors@1.0;

interface ISensors {
    activate(int32_t sensorHandle, bool enabled) generates (Result result);
};
`,
		InterfaceRoot + "/sensors/2.0/ISensors.hal": `package android.hardware.sensors@2.0;

import android.hardware.sensors@1.0::types;

interface ISensors {
};
`,
		InterfaceRoot + "/tests/foo/1.0/IFoo.hal":    "package android.hardware.tests.foo@1.0;\n",
		InterfaceRoot + "/.repo/junk/1.0/IJunk.hal":  "package android.hardware.junk@1.0;\n",
		InterfaceRoot + "/vibrator/1.0/default/x.cpp": "// implementation\n",
		TemplatePath: Template,
	}
}

// MultiVersion is a tree with vibrator at 1.0 and 1.3 and sensors at 1.7,
// where sensors@1.7 imports vibrator@1.3 and the base package.
func MultiVersion() Files {
	return Files{
		InterfaceRoot + "/vibrator/1.0/IVibrator.hal": "package android.hardware.vibrator@1.0;\n\ninterface IVibrator {};\n",
		InterfaceRoot + "/vibrator/1.3/IVibrator.hal": `package android.hardware.vibrator@1.3;

import android.hardware.vibrator@1.0::IVibrator;

interface IVibrator extends @1.0::IVibrator {};
`,
		InterfaceRoot + "/sensors/1.7/ISensors.hal": `package android.hardware.sensors@1.7;

import android.hardware.vibrator@1.3::IVibrator;
import android.hidl.base@1.0::IBase;
import ISensorsCallback;

interface ISensors {};
`,
		InterfaceRoot + "/sensors/1.7/ISensorsCallback.hal": `package android.hardware.sensors@1.7;

// Duplicated import in a second file.
import android.hardware.vibrator@1.3;

interface ISensorsCallback {};
`,
		TemplatePath: Template,
	}
}

// WriteTree writes files into fs.
func WriteTree(t testing.TB, fs billy.Filesystem, files Files) {
	t.Helper()
	for name, content := range files {
		if err := util.WriteFile(fs, name, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
}

// ReadFile returns the content of name on fs, failing the test on error.
func ReadFile(t testing.TB, fs billy.Filesystem, name string) string {
	t.Helper()
	f, err := fs.Open(name)
	if err != nil {
		t.Fatalf("open %s: %v", name, err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		t.Fatalf("read %s: %v", name, err)
	}
	return string(data)
}

// Exists reports whether name exists on fs.
func Exists(fs billy.Filesystem, name string) bool {
	_, err := fs.Stat(name)
	return err == nil
}

// ShuffledFS returns directory entries in a random order, seeded for
// reproducibility.
type ShuffledFS struct {
	billy.Filesystem

	mu  sync.Mutex
	rnd *rand.Rand
}

// Shuffled wraps fs so that ReadDir order varies with seed.
func Shuffled(fs billy.Filesystem, seed uint64) *ShuffledFS {
	return &ShuffledFS{Filesystem: fs, rnd: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// ReadDir lists path and shuffles the result.
func (s *ShuffledFS) ReadDir(path string) ([]os.FileInfo, error) {
	entries, err := s.Filesystem.ReadDir(path)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.rnd.Shuffle(len(entries), func(i, j int) { entries[i], entries[j] = entries[j], entries[i] })
	s.mu.Unlock()
	return entries, nil
}
