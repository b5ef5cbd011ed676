// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/halbuild/pkg/ux"
	"github.com/AleutianAI/halbuild/services/halbuild/halerr"
	"github.com/AleutianAI/halbuild/services/halbuild/vcs"
)

// pendingManifests returns the generated manifests under the project root
// that git reports as uncommitted. ok is false outside a repository.
func (a *app) pendingManifests() (changes []vcs.Change, ok bool, err error) {
	repo, err := vcs.Open(a.projectDir())
	if errors.Is(err, vcs.ErrNotRepository) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	all, err := repo.Pending(a.projectDir(), nil)
	if err != nil {
		return nil, true, err
	}
	for _, ch := range all {
		if path.Base(ch.Path) == a.cfg.ManifestName {
			changes = append(changes, ch)
		}
	}
	return changes, true, nil
}

func newStatusCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the review lock and uncommitted manifests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context(), &c.global, c.stdout, c.stderr)
			if err != nil {
				return err
			}
			defer a.Close()

			present, err := a.orch.ReviewLock().Exists()
			if err != nil {
				return halerr.New(halerr.KindIO, "status", a.cfg.ReviewLockPath(), err)
			}
			if present {
				a.printer.FileStatus(a.cfg.ReviewLockPath(), ux.IconWarning, "review pending")
			} else {
				a.printer.FileStatus(a.cfg.ReviewLockPath(), ux.IconSuccess, "no review pending")
			}

			changes, inRepo, err := a.pendingManifests()
			switch {
			case err != nil:
				return halerr.New(halerr.KindIO, "git status", a.cfg.ProjectRoot, err)
			case !inRepo:
				a.printer.Info(a.cfg.ProjectRoot + " is not under git")
			case len(changes) == 0:
				a.printer.Success("all manifests committed")
			default:
				for _, ch := range changes {
					state := "modified"
					if ch.Untracked() {
						state = "untracked"
					}
					a.printer.FileStatus(ch.Path, ux.IconPending, state)
				}
			}
			return nil
		},
	}
}

func newAckCmd(c *cli) *cobra.Command {
	var yes, force bool
	cmd := &cobra.Command{
		Use:   "ack",
		Short: "Acknowledge reviewed manifests by removing the review lock",
		Long: `ack removes the review lock created by a run that changed manifests.
It refuses while generated manifests are still uncommitted unless --force
is given, and asks for confirmation on a terminal unless --yes is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context(), &c.global, c.stdout, c.stderr)
			if err != nil {
				return err
			}
			defer a.Close()

			review := a.orch.ReviewLock()
			present, err := review.Exists()
			if err != nil {
				return halerr.New(halerr.KindIO, "ack", review.Path(), err)
			}
			if !present {
				a.printer.Success("no review pending")
				return nil
			}

			changes, inRepo, err := a.pendingManifests()
			if err != nil {
				return halerr.New(halerr.KindIO, "git status", a.cfg.ProjectRoot, err)
			}
			if len(changes) > 0 && !force {
				steps := []string{"cd $ANDROID_BUILD_TOP/" + a.cfg.ProjectRoot}
				for _, ch := range changes {
					steps = append(steps, "git add "+ch.Path)
				}
				steps = append(steps, "git commit", "halbuild ack  (or: halbuild ack --force)")
				return halerr.New(halerr.KindUnacknowledgedLock, "ack", review.Path(),
					fmt.Errorf("%d generated manifest(s) are not committed", len(changes)), steps...)
			}
			if !inRepo {
				a.printer.Warning(a.cfg.ProjectRoot + " is not under git; skipping the commit check")
			}

			if !yes {
				if !c.interactive {
					return halerr.New(halerr.KindConfiguration, "ack", review.Path(),
						errors.New("confirmation required but stdin is not a terminal"),
						"re-run with --yes")
				}
				ok, err := c.confirm("Remove the review lock?",
					"Only continue once the regenerated manifests are reviewed and committed.")
				if err != nil {
					return halerr.New(halerr.KindIO, "ack", review.Path(), err)
				}
				if !ok {
					a.printer.Info("review lock kept")
					return exitStatus(halerr.ExitUnacknowledged)
				}
			}

			if err := review.Remove(); err != nil {
				return halerr.New(halerr.KindIO, "ack", review.Path(), err)
			}
			a.printer.Success("review lock removed")
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	cmd.Flags().BoolVar(&force, "force", false, "remove the lock even if manifests are uncommitted")
	return cmd
}

// huhConfirm asks a yes/no question on the terminal.
func huhConfirm(title, description string) (bool, error) {
	var ok bool
	err := huh.NewConfirm().
		Title(title).
		Description(description).
		Affirmative("Remove").
		Negative("Keep").
		Value(&ok).
		Run()
	return ok, err
}

func isTerminalReader(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && ux.IsTerminal(f)
}
