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
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/halbuild/pkg/ux"
	"github.com/AleutianAI/halbuild/services/halbuild/halerr"
)

// version is set at link time.
var version = "dev"

// globalFlags are the persistent flags shared by every command.
type globalFlags struct {
	configFile string
	buildTop   string
	workers    int
	logLevel   string
	logJSON    bool
	noCache    bool
}

// cli holds the streams and flag state of one invocation.
type cli struct {
	global globalFlags
	stdout io.Writer
	stderr io.Writer
	stdin  io.Reader

	// interactive is true when stdin is a terminal.
	interactive bool

	// confirm asks a yes/no question. Replaced in tests.
	confirm func(title, description string) (bool, error)
}

// exitStatus ends a command with a non-zero code after the command has
// already reported the outcome.
type exitStatus int

func (e exitStatus) Error() string { return fmt.Sprintf("exit status %d", int(e)) }

// usageError marks flag and argument errors.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

// newRootCmd builds the command tree. The root command itself performs a
// sync run.
func newRootCmd(c *cli) *cobra.Command {
	var hal string

	root := &cobra.Command{
		Use:   "halbuild",
		Short: "Regenerate HAL test build manifests",
		Long: `halbuild regenerates the build manifests of the HAL test tree from the
interface specs under the source tree.

When a manifest changes, halbuild creates a review lock in the project root
and exits 1. Commit the manifests, remove the lock (or run "halbuild ack")
and run halbuild again; it exits 2 while the lock is still present.

Exit codes: 0 clean, 1 manifests changed, 2 review lock not cleared,
3 failure, 4 invalid package name or usage.`,
		Version:       version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.runSync(cmd.Context(), hal)
		},
	}
	root.SetOut(c.stdout)
	root.SetErr(c.stderr)
	root.SetIn(c.stdin)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err: err}
	})

	pf := root.PersistentFlags()
	pf.StringVar(&c.global.configFile, "config", "", "config file (default $HALBUILD_CONFIG or <project>/halbuild.yaml)")
	pf.StringVar(&c.global.buildTop, "build-top", "", "source tree root (default $ANDROID_BUILD_TOP)")
	pf.IntVar(&c.global.workers, "workers", 0, "concurrent packages (default 4)")
	pf.StringVar(&c.global.logLevel, "log-level", "", "debug, info, warn or error")
	pf.BoolVar(&c.global.logJSON, "log-json", false, "log as JSON")
	pf.BoolVar(&c.global.noCache, "no-cache", false, "disable the import cache")

	root.Flags().StringVar(&hal, "hal", "", "regenerate only this package, e.g. nfc@1.0")

	root.AddCommand(
		newCheckCmd(c),
		newConfigCmd(c),
		newListCmd(c),
		newStatusCmd(c),
		newAckCmd(c),
		newTemplateCmd(c),
		newWatchCmd(c),
	)
	return root
}

// execute runs the command line and returns the process exit code.
func execute(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	c := &cli{
		stdin:       stdin,
		stdout:      stdout,
		stderr:      stderr,
		interactive: isTerminalReader(stdin),
		confirm:     huhConfirm,
	}
	return c.execute(ctx, args)
}

// execute runs args against a prepared cli.
func (c *cli) execute(ctx context.Context, args []string) int {
	root := newRootCmd(c)
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return halerr.ExitClean
	}

	var status exitStatus
	if errors.As(err, &status) {
		return int(status)
	}

	printer := ux.NewPrinter(c.stdout, c.stderr, outputMode(c.stdout))
	var usage usageError
	if errors.As(err, &usage) || (halerr.KindOf(err) == halerr.KindUnknown && isArgError(err)) {
		printer.Notice(ux.IconError, err.Error(), []string{"run `halbuild --help`"})
		return halerr.ExitUsage
	}
	printer.Notice(ux.IconError, err.Error(), halerr.RemediationOf(err))
	return halerr.ExitCode(err)
}

// isArgError recognises cobra's positional-argument and unknown-command
// errors, which do not pass through the flag error hook.
func isArgError(err error) bool {
	msg := err.Error()
	for _, p := range []string{"unknown command", "accepts ", "requires "} {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
