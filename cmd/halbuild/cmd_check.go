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
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/halbuild/pkg/ux"
	"github.com/AleutianAI/halbuild/services/halbuild/halerr"
	"github.com/AleutianAI/halbuild/services/halbuild/manifest"
	"github.com/AleutianAI/halbuild/services/halbuild/syncer"
)

func newCheckCmd(c *cli) *cobra.Command {
	var (
		hal      string
		showDiff bool
	)
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify that manifests are current without writing anything",
		Long: `check renders every manifest in memory and compares it with the file on
disk. It exits 1 when any manifest is stale or the review lock is present,
which makes it suitable as a presubmit step.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if err := syncer.ValidateTarget(hal); err != nil {
				return err
			}
			a, err := openApp(ctx, &c.global, c.stdout, c.stderr)
			if err != nil {
				return err
			}
			defer a.Close()

			var rep *syncer.CheckReport
			err = ux.WithSpinner(a.printer, "checking build manifests", func() error {
				var checkErr error
				rep, checkErr = a.orch.Check(ctx, hal)
				return checkErr
			})
			if err != nil {
				return err
			}
			for _, s := range rep.Stale {
				a.printer.FileStatus(s.Path, ux.IconWarning, "stale")
			}
			if showDiff && len(rep.Stale) > 0 {
				out, err := manifest.FormatDiffs(rep.Diffs())
				if err != nil {
					return halerr.New(halerr.KindIO, "print diff", "", err)
				}
				if _, err := io.WriteString(a.printer.Out(), out); err != nil {
					return halerr.New(halerr.KindIO, "print diff", "", err)
				}
			}
			if rep.LockPresent {
				a.printer.Warning(fmt.Sprintf("review lock %s is present", a.cfg.ReviewLockPath()))
			}
			if !rep.UpToDate() {
				a.printer.Notice(ux.IconWarning,
					fmt.Sprintf("%d stale manifest(s) across %d package(s)", len(rep.Stale), rep.Packages),
					[]string{"halbuild", "review and commit the changed manifests", "halbuild ack"})
				return exitStatus(halerr.ExitDirty)
			}
			a.printer.Success(fmt.Sprintf("%d package(s) up to date", rep.Packages))
			return nil
		},
	}
	cmd.Flags().StringVar(&hal, "hal", "", "check only this package, e.g. nfc@1.0")
	cmd.Flags().BoolVar(&showDiff, "diff", false, "print a unified diff for stale manifests")
	return cmd
}
