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
	"bytes"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/sourcegraph/go-diff/diff"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const project = "test/vts-testcase/hal"

func TestSync_CreateUpdateNoop(t *testing.T) {
	fs := memfs.New()
	var logs bytes.Buffer
	w := NewWriter(fs, project, WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))

	changed, err := w.Sync("nfc/V1_0/Android.bp", "v1\n")
	require.NoError(t, err)
	assert.True(t, changed, "absent file must be written")

	changed, err = w.Sync("nfc/V1_0/Android.bp", "v1\n")
	require.NoError(t, err)
	assert.False(t, changed, "identical content must not be rewritten")

	changed, err = w.Sync("nfc/V1_0/Android.bp", "v2\n")
	require.NoError(t, err)
	assert.True(t, changed)

	got, err := util.ReadFile(fs, project+"/nfc/V1_0/Android.bp")
	require.NoError(t, err)
	assert.Equal(t, "v2\n", string(got))
	assert.Equal(t, 2, strings.Count(logs.String(), "Updating test/vts-testcase/hal/nfc/V1_0/Android.bp"))

	entries, err := fs.ReadDir(project + "/nfc/V1_0")
	require.NoError(t, err)
	require.Len(t, entries, 1, "temporary files must not be left behind")
}

func TestSync_NoopPreservesModTime(t *testing.T) {
	dir := t.TempDir()
	fs := osfs.New(dir)
	w := NewWriter(fs, project)

	_, err := w.Sync("Android.bp", "root\n")
	require.NoError(t, err)

	full := dir + "/" + project + "/Android.bp"
	old := time.Now().Add(-time.Hour).Truncate(time.Second)
	require.NoError(t, os.Chtimes(full, old, old))

	changed, err := w.Sync("Android.bp", "root\n")
	require.NoError(t, err)
	assert.False(t, changed)

	info, err := os.Stat(full)
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(old), "unchanged manifest was touched")
}

func TestSync_PathTraversal(t *testing.T) {
	w := NewWriter(memfs.New(), project)
	for _, bad := range []string{"", ".", "..", "../escape.bp", "a/../../b", "/abs/Android.bp", `a\b`} {
		_, err := w.Sync(bad, "x")
		assert.ErrorIs(t, err, ErrPathTraversal, bad)
	}

	_, err := w.Sync("a/../Android.bp", "x")
	assert.NoError(t, err, "paths that stay inside the root are allowed")
}

func TestSync_DirectoryInTheWay(t *testing.T) {
	fs := memfs.New()
	require.NoError(t, fs.MkdirAll(project+"/nfc/V1_0/Android.bp", 0o755))

	_, err := NewWriter(fs, project).Sync("nfc/V1_0/Android.bp", "x")
	require.ErrorIs(t, err, ErrNotAFile)

	var we *WriteError
	require.ErrorAs(t, err, &we)
	assert.Equal(t, "read", we.Op)
	assert.Equal(t, "nfc/V1_0/Android.bp", we.Path)
}

func TestDiff(t *testing.T) {
	fs := memfs.New()
	w := NewWriter(fs, project)

	fd, err := w.Diff("nfc/V1_0/Android.bp", "a\nb\n")
	require.NoError(t, err)
	require.NotNil(t, fd)
	assert.Equal(t, "/dev/null", fd.OrigName)

	require.NoError(t, util.WriteFile(fs, project+"/nfc/V1_0/Android.bp", []byte("a\nb\n"), 0o644))
	fd, err = w.Diff("nfc/V1_0/Android.bp", "a\nb\n")
	require.NoError(t, err)
	assert.Nil(t, fd, "matching content has no diff")

	fd, err = w.Diff("nfc/V1_0/Android.bp", "a\nc\n")
	require.NoError(t, err)
	require.NotNil(t, fd)
	assert.Equal(t, "a/"+project+"/nfc/V1_0/Android.bp", fd.OrigName)

	got, err := util.ReadFile(fs, project+"/nfc/V1_0/Android.bp")
	require.NoError(t, err)
	assert.Equal(t, "a\nb\n", string(got), "Diff must never write")
}

func TestUnifiedDiff_Hunk(t *testing.T) {
	before := "1\n2\n3\n4\n5\n6\n7\n8\n9\n"
	after := "1\n2\n3\n4\nFIVE\n6\n7\n8\n9\n"

	fd := UnifiedDiff("Android.bp", before, after, true)
	require.Len(t, fd.Hunks, 1)
	h := fd.Hunks[0]

	assert.Equal(t, int32(2), h.OrigStartLine)
	assert.Equal(t, int32(7), h.OrigLines)
	assert.Equal(t, int32(2), h.NewStartLine)
	assert.Equal(t, int32(7), h.NewLines)
	assert.Equal(t, " 2\n 3\n 4\n-5\n+FIVE\n 6\n 7\n 8\n", string(h.Body))
}

func TestUnifiedDiff_NewFile(t *testing.T) {
	fd := UnifiedDiff("Android.bp", "", "x\ny", false)
	h := fd.Hunks[0]

	assert.Equal(t, int32(0), h.OrigStartLine)
	assert.Equal(t, int32(0), h.OrigLines)
	assert.Equal(t, int32(1), h.NewStartLine)
	assert.Equal(t, int32(2), h.NewLines)
	assert.Equal(t, "+x\n+y\n", string(h.Body))
}

func TestFormatDiffs(t *testing.T) {
	out, err := FormatDiffs(nil)
	require.NoError(t, err)
	assert.Empty(t, out)

	out, err = FormatDiffs([]*diff.FileDiff{UnifiedDiff("Android.bp", "old\n", "new\n", true)})
	require.NoError(t, err)
	assert.Contains(t, out, "--- a/Android.bp")
	assert.Contains(t, out, "+++ b/Android.bp")
	assert.Contains(t, out, "@@ -1")
	assert.Contains(t, out, "-old\n+new\n")
}
