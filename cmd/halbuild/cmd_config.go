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
	"github.com/spf13/cobra"

	"github.com/AleutianAI/halbuild/services/halbuild/halerr"
)

// newConfigCmd prints the effective configuration after defaults, the
// config file, the environment and flags have been merged.
func newConfigCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := loadConfig(&c.global)
			if err != nil {
				return err
			}
			data, err := cfg.Marshal()
			if err != nil {
				return halerr.New(halerr.KindConfiguration, "print config", "", err)
			}
			if _, err := c.stdout.Write(data); err != nil {
				return halerr.New(halerr.KindIO, "print config", "", err)
			}
			return nil
		},
	}
}
