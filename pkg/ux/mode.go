// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// Mode controls how rich terminal output is.
type Mode string

const (
	// ModeRich enables colors, icons and boxes.
	ModeRich Mode = "rich"

	// ModePlain prints prefixed plain text suitable for CI logs and scripts.
	ModePlain Mode = "plain"
)

// ModeEnv overrides output detection when set to "rich" or "plain".
const ModeEnv = "HALBUILD_OUTPUT"

// ParseMode converts a string to a Mode. Unknown values map to ModePlain.
func ParseMode(s string) Mode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "rich", "full", "color":
		return ModeRich
	default:
		return ModePlain
	}
}

// DetectMode picks the output mode for f.
//
// HALBUILD_OUTPUT wins when set. Otherwise rich output is used only when f
// is a terminal and NO_COLOR is unset.
func DetectMode(f *os.File) Mode {
	if env := os.Getenv(ModeEnv); env != "" {
		return ParseMode(env)
	}
	if os.Getenv("NO_COLOR") != "" {
		return ModePlain
	}
	if IsTerminal(f) {
		return ModeRich
	}
	return ModePlain
}

// IsTerminal reports whether f is attached to a terminal, including
// Cygwin/MSYS pseudo terminals.
func IsTerminal(f *os.File) bool {
	if f == nil {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
