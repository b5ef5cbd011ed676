// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package specparse

import (
	"context"
	"errors"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/halbuild/services/halbuild/hal"
)

var vibrator = hal.Ref{Name: "android.hardware.vibrator", Version: "1.0"}

const vibratorHal = `/*
 * Copyright (C) 2016 The Android Open Source Project
 * import not.a.real@9.9; inside a comment
 */

package android.hardware.vibrator@1.0;

import android.hidl.base@1.0::IBase; // trailing comment
import types;
import android.hardware.sensors@1.0;

interface IVibrator {
    on(uint32_t timeoutMs) generates (Status vibratorOnRet);
    @callflow(next={"*"})
    off() generates (Status vibratorOffRet);
};
`

func TestParse_Imports(t *testing.T) {
	f, err := Parse("IVibrator.hal", []byte(vibratorHal), vibrator)
	require.NoError(t, err)

	require.NotNil(t, f.Package)
	assert.Equal(t, vibrator, *f.Package)
	assert.Equal(t, []string{
		"android.hidl.base@1.0::IBase",
		"android.hardware.vibrator@1.0::types",
		"android.hardware.sensors@1.0",
	}, f.Imports)
}

func TestParse_NoDeclarations(t *testing.T) {
	f, err := Parse("types.hal", []byte("enum Status : uint32_t { OK, ERR };\n"), vibrator)
	require.NoError(t, err)
	assert.Nil(t, f.Package)
	assert.Empty(t, f.Imports)
}

func TestParse_SyntaxErrors(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		wantLine int
	}{
		{"bare import", "package android.hardware.vibrator@1.0;\n\nimport ;\n", 3},
		{"bad version", "import android.hardware.nfc@1;\n", 1},
		{"two targets", "// header\nimport a.b@1.0 c.d@1.0;\n", 2},
		{"bad local", "import 9lives;\n", 1},
		{"wrong package", "\n\npackage android.hardware.nfc@1.0;\n", 3},
		{"package member", "package android.hardware.vibrator@1.0::IFoo;\n", 1},
		{"unterminated comment", "package android.hardware.vibrator@1.0;\n/* open\n", 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("IVibrator.hal", []byte(tt.src), vibrator)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrSyntax))

			var se *SyntaxError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, "IVibrator.hal", se.File)
			assert.Equal(t, tt.wantLine, se.Line)
		})
	}
}

func TestStripComments_PreservesLines(t *testing.T) {
	src := "a // x\n/* y\n z */ b\n\"// kept\" c\n"
	got, err := stripComments("f", src)
	require.NoError(t, err)
	assert.Equal(t, 4, countLines(got))
	assert.Contains(t, got, `"// kept"`)
	assert.NotContains(t, got, "x")
	assert.NotContains(t, got, "z */")
}

func countLines(s string) int {
	n := 0
	for _, r := range s {
		if r == '\n' {
			n++
		}
	}
	return n
}

func TestHIDLParser_SpecFilesAndImports(t *testing.T) {
	fs := memfs.New()
	root := "hardware/interfaces"
	require.NoError(t, util.WriteFile(fs, root+"/vibrator/1.0/IVibrator.hal", []byte(vibratorHal), 0o644))
	require.NoError(t, util.WriteFile(fs, root+"/vibrator/1.0/types.hal", []byte("package android.hardware.vibrator@1.0;\n"), 0o644))
	require.NoError(t, util.WriteFile(fs, root+"/vibrator/1.0/Android.bp", []byte("hidl_interface {}\n"), 0o644))
	require.NoError(t, fs.MkdirAll(root+"/vibrator/1.0/default", 0o755))

	p := NewHIDLParser(fs, root, hal.DefaultConventions())
	ctx := context.Background()
	id := hal.PackageID{Name: "vibrator", Version: "1.0"}

	files, err := p.SpecFiles(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []string{"IVibrator.hal", "types.hal"}, files)

	imports, err := p.Imports(ctx, id, "IVibrator.hal")
	require.NoError(t, err)
	assert.Len(t, imports, 3)

	imports, err = p.Imports(ctx, id, "types.hal")
	require.NoError(t, err)
	assert.Empty(t, imports)
}

func TestHIDLParser_MissingPackage(t *testing.T) {
	p := NewHIDLParser(memfs.New(), "hardware/interfaces", hal.DefaultConventions())
	_, err := p.SpecFiles(context.Background(), hal.PackageID{Name: "nfc", Version: "1.0"})
	assert.ErrorIs(t, err, ErrSpecDirNotFound)
}

func TestHIDLParser_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := NewHIDLParser(memfs.New(), "hardware/interfaces", hal.DefaultConventions())
	_, err := p.SpecFiles(ctx, hal.PackageID{Name: "nfc", Version: "1.0"})
	assert.ErrorIs(t, err, context.Canceled)
}
