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
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/halbuild/services/halbuild/hal"
)

func newListCmd(c *cli) *cobra.Command {
	var (
		latest, deps bool
		constraint   string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the packages found in the interface tree",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, &c.global, c.stdout, c.stderr)
			if err != nil {
				return err
			}
			defer a.Close()

			var versions *semver.Constraints
			if constraint != "" {
				versions, err = semver.NewConstraint(constraint)
				if err != nil {
					return usageError{err: fmt.Errorf("--version %q: %w", constraint, err)}
				}
			}

			cat, err := a.orch.Discover(ctx)
			if err != nil {
				return err
			}
			if versions != nil {
				cat = filterVersions(cat, versions)
			}
			if latest {
				cat = latestVersions(cat)
			}

			out := a.printer.Out()
			for _, id := range cat {
				if !deps {
					fmt.Fprintln(out, id)
					continue
				}
				proj, err := a.orch.Dependencies(ctx, id)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s\t%s\n", id, strings.Join(proj.Driver, ","))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&latest, "latest", false, "show only the highest version of each package")
	cmd.Flags().BoolVar(&deps, "deps", false, "show the driver dependencies of each package")
	cmd.Flags().StringVar(&constraint, "version", "", `only versions matching a constraint, e.g. ">=1.1, <2"`)
	return cmd
}

// latestVersions keeps the highest version per package name, preserving
// catalog order.
func latestVersions(cat hal.Catalog) hal.Catalog {
	best := make(map[string]*semver.Version)
	bestID := make(map[string]hal.PackageID)
	var order []string
	for _, id := range cat {
		v, err := semver.NewVersion(id.Version)
		if err != nil {
			continue
		}
		cur, seen := best[id.Name]
		if !seen {
			order = append(order, id.Name)
		}
		if !seen || v.GreaterThan(cur) {
			best[id.Name] = v
			bestID[id.Name] = id
		}
	}
	out := make(hal.Catalog, 0, len(order))
	for _, name := range order {
		out = append(out, bestID[name])
	}
	return out
}

// filterVersions keeps packages whose version satisfies c.
func filterVersions(cat hal.Catalog, c *semver.Constraints) hal.Catalog {
	out := make(hal.Catalog, 0, len(cat))
	for _, id := range cat {
		if v, err := semver.NewVersion(id.Version); err == nil && c.Check(v) {
			out = append(out, id)
		}
	}
	return out
}
