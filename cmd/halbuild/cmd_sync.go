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
	"context"
	"fmt"

	"github.com/AleutianAI/halbuild/pkg/ux"
	"github.com/AleutianAI/halbuild/services/halbuild/halerr"
	"github.com/AleutianAI/halbuild/services/halbuild/syncer"
)

// runSync regenerates target ("" for everything) and reports the outcome.
func (c *cli) runSync(ctx context.Context, target string) error {
	if err := syncer.ValidateTarget(target); err != nil {
		return err
	}
	a, err := openApp(ctx, &c.global, c.stdout, c.stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	var rep *syncer.Report
	err = ux.WithSpinner(a.printer, "syncing build manifests", func() error {
		var runErr error
		rep, runErr = a.orch.Run(ctx, target)
		return runErr
	})
	printChanged(a.printer, rep)
	if err != nil {
		if rep != nil && rep.LockCreated {
			a.printer.Warning(fmt.Sprintf("review lock created at %s for the manifests written before the failure", rep.LockPath))
		}
		return err
	}

	a.printer.Summary(len(rep.Changed), rep.Packages)
	if rep.State == syncer.StateDirty {
		a.printer.Notice(ux.IconWarning,
			fmt.Sprintf("%d manifest(s) changed; review them and clear %s", len(rep.Changed), rep.LockPath),
			a.orch.ReviewSteps(rep))
		return exitStatus(halerr.ExitDirty)
	}
	a.printer.Success("manifests up to date")
	return nil
}

func printChanged(p *ux.Printer, rep *syncer.Report) {
	if rep == nil {
		return
	}
	for _, path := range rep.Changed {
		p.FileStatus(path, ux.IconWarning, "updated")
	}
}
