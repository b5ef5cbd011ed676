// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package vcs

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(name), 0o755))
	require.NoError(t, os.WriteFile(name, []byte(content), 0o644))
}

// setupRepo creates a repository with one committed manifest under
// project/.
func setupRepo(t *testing.T) (string, *git.Worktree) {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	wt, err := repo.Worktree()
	require.NoError(t, err)

	writeFile(t, filepath.Join(dir, "project", "Android.bp"), "root\n")
	writeFile(t, filepath.Join(dir, "project", "nfc", "V1_0", "Android.bp"), "nfc\n")
	_, err = wt.Add("project")
	require.NoError(t, err)
	_, err = wt.Commit("initial", &git.CommitOptions{
		Author: &object.Signature{Name: "test", Email: "test@example.com", When: time.Now()},
	})
	require.NoError(t, err)
	return dir, wt
}

func TestOpen_NotRepository(t *testing.T) {
	_, err := Open(t.TempDir())
	assert.ErrorIs(t, err, ErrNotRepository)
}

func TestOpen_DetectsParent(t *testing.T) {
	dir, _ := setupRepo(t)
	r, err := Open(filepath.Join(dir, "project", "nfc"))
	require.NoError(t, err)

	want, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	got, err := filepath.EvalSymlinks(r.Root())
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestPending(t *testing.T) {
	dir, _ := setupRepo(t)
	project := filepath.Join(dir, "project")
	r, err := Open(project)
	require.NoError(t, err)

	changes, err := r.Pending(project, []string{"Android.bp", "nfc/V1_0/Android.bp"})
	require.NoError(t, err)
	assert.Empty(t, changes, "committed manifests are not pending")

	writeFile(t, filepath.Join(project, "nfc", "V1_0", "Android.bp"), "nfc v2\n")
	writeFile(t, filepath.Join(project, "vibrator", "V1_0", "Android.bp"), "vibrator\n")

	changes, err = r.Pending(project, []string{"Android.bp", "nfc/V1_0/Android.bp", "vibrator/V1_0/Android.bp"})
	require.NoError(t, err)
	require.Len(t, changes, 2)
	assert.Equal(t, "nfc/V1_0/Android.bp", changes[0].Path)
	assert.Equal(t, git.Modified, changes[0].Worktree)
	assert.False(t, changes[0].Untracked())
	assert.Equal(t, "vibrator/V1_0/Android.bp", changes[1].Path)
	assert.True(t, changes[1].Untracked())
	assert.Equal(t, "?? vibrator/V1_0/Android.bp", changes[1].String())

	all, err := r.Pending(project, nil)
	require.NoError(t, err)
	assert.Equal(t, changes, all)
}

func TestPending_OutsideWorktree(t *testing.T) {
	dir, _ := setupRepo(t)
	r, err := Open(dir)
	require.NoError(t, err)

	_, err = r.Pending(t.TempDir(), nil)
	assert.Error(t, err)
}
