// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package syncer

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/AleutianAI/halbuild/services/halbuild/catalog"
	"github.com/AleutianAI/halbuild/services/halbuild/hal"
	"github.com/AleutianAI/halbuild/services/halbuild/halerr"
	"github.com/AleutianAI/halbuild/services/halbuild/lock"
	"github.com/AleutianAI/halbuild/services/halbuild/render"
	"github.com/AleutianAI/halbuild/services/halbuild/specparse"
)

// buildTopVar is how remediation steps refer to the build top.
const buildTopVar = "$ANDROID_BUILD_TOP"

// classify maps an error from a lower layer onto the halerr taxonomy and
// attaches remediation. Errors that are already classified pass through.
func (o *Orchestrator) classify(op, subject string, err error) error {
	if err == nil {
		return nil
	}
	var he *halerr.Error
	if errors.As(err, &he) {
		return err
	}

	var (
		syntax     *specparse.SyntaxError
		unresolved *render.UnresolvedError
		runLocked  *lock.RunLockError
	)
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return halerr.New(halerr.KindIO, op, subject, err,
			"the run was interrupted; manifests written so far are kept",
			"re-run halbuild")

	case errors.Is(err, hal.ErrInvalidName), errors.Is(err, hal.ErrInvalidVersion):
		return invalidTarget(op, subject, err)

	case errors.Is(err, render.ErrTemplateNotFound):
		return halerr.New(halerr.KindConfiguration, op, subject, err,
			fmt.Sprintf("check the template path %s", o.templatePath),
			"run `halbuild template` to install the built-in template")

	case errors.Is(err, catalog.ErrRootNotFound):
		return halerr.New(halerr.KindDiscovery, op, subject, err,
			fmt.Sprintf("check that %s/%s exists", buildTopVar, o.interfaceRoot),
			"set ANDROID_BUILD_TOP or --build-top to the root of the source tree")

	case errors.Is(err, catalog.ErrPackageNotFound), errors.Is(err, specparse.ErrSpecDirNotFound):
		steps := []string{"run `halbuild list` to see discovered packages"}
		if id, perr := hal.ParsePackageID(subject); perr == nil {
			steps = append([]string{
				fmt.Sprintf("check that %s/%s/%s exists", buildTopVar, o.interfaceRoot, hal.SpecDir(id)),
			}, steps...)
		}
		return halerr.New(halerr.KindDiscovery, op, subject, err, steps...)

	case errors.As(err, &syntax):
		return halerr.New(halerr.KindSpecParse, op, subject, err,
			fmt.Sprintf("fix %s line %d: %s", syntax.File, syntax.Line, syntax.Reason),
			"re-run halbuild")

	case errors.Is(err, hal.ErrInvalidRef), errors.Is(err, specparse.ErrSyntax):
		return halerr.New(halerr.KindSpecParse, op, subject, err,
			"fix the import declarations of "+subject,
			"re-run halbuild")

	case errors.As(err, &unresolved):
		return halerr.New(halerr.KindTemplate, op, subject, err,
			fmt.Sprintf("remove %s from %s", strings.Join(unresolved.Tokens, ", "), o.templatePath),
			"supported placeholders: "+strings.Join(render.Placeholders, " "))

	case errors.As(err, &runLocked):
		steps := []string{"wait for the other halbuild run to finish"}
		if runLocked.Holder != nil {
			steps = append(steps, fmt.Sprintf("it is pid %d on %s (%s)",
				runLocked.Holder.PID, runLocked.Holder.Host, runLocked.Holder.Reason))
		}
		return halerr.New(halerr.KindIO, op, subject, err, steps...)
	}

	return halerr.New(halerr.KindIO, op, subject, err,
		"check permissions and free space under "+buildTopVar+"/"+o.projectRoot,
		"re-run halbuild")
}

// ValidateTarget checks a run target ("" for every package) without any
// configuration or filesystem access. Callers use it to reject a bad
// package name before opening caches or locks.
func ValidateTarget(target string) error {
	if target == "" {
		return nil
	}
	if _, err := hal.ParsePackageID(target); err != nil {
		return invalidTarget("parse target", target, err)
	}
	return nil
}

func invalidTarget(op, subject string, err error) error {
	return halerr.New(halerr.KindInvalidPackageName, op, subject, err,
		"pass the package as <name>@<major>.<minor>, e.g. --hal vibrator@1.0",
		"run `halbuild list` to see discovered packages")
}

// ReviewSteps lists what an operator does after a Dirty run: inspect the
// diff, clear the lock, then commit and upload the changed manifests.
func (o *Orchestrator) ReviewSteps(rep *Report) []string {
	lockName := path.Base(o.review.Path())
	steps := []string{
		"cd " + buildTopVar + "/" + o.projectRoot,
		"git diff",
		"rm " + lockName,
	}
	for _, p := range rep.Changed {
		steps = append(steps, "git add "+p)
	}
	return append(steps, "git commit", "repo upload .")
}

func (o *Orchestrator) unacknowledged() error {
	lockName := path.Base(o.review.Path())
	return halerr.New(halerr.KindUnacknowledgedLock, "report", o.review.Path(),
		errors.New("no manifest changed but the review lock is still present"),
		"cd "+buildTopVar+"/"+o.projectRoot,
		"review and commit the manifests generated by the previous run",
		"rm "+lockName+"  (or: halbuild ack)",
	)
}
