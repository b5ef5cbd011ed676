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

	"github.com/spf13/cobra"

	"github.com/AleutianAI/halbuild/services/halbuild/halerr"
	"github.com/AleutianAI/halbuild/services/halbuild/render"
)

func newTemplateCmd(c *cli) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "template",
		Short: "Install the built-in manifest template",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context(), &c.global, c.stdout, c.stderr)
			if err != nil {
				return err
			}
			defer a.Close()

			err = render.WriteDefaultTemplate(a.fs, a.cfg.Template, force)
			if errors.Is(err, render.ErrTemplateExists) {
				return halerr.New(halerr.KindConfiguration, "install template", a.cfg.Template, err,
					"keep the existing template, or re-run with --force to replace it")
			}
			if err != nil {
				return halerr.New(halerr.KindIO, "install template", a.cfg.Template, err)
			}
			a.printer.Success("installed " + a.cfg.Template)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing template")
	return cmd
}
