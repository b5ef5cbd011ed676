// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ux provides terminal output styling for the halbuild CLI.
package ux

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Palette, deep teal on slate.
var (
	ColorTealBright  = lipgloss.Color("#2CD7C7")
	ColorTealPrimary = lipgloss.Color("#20B9B4")
	ColorTealDeep    = lipgloss.Color("#16858E")
	ColorSlate       = lipgloss.Color("#2C4A54")

	ColorSuccess = lipgloss.Color("#2CD7C7")
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
)

// Styles provides pre-configured lipgloss styles.
var Styles = struct {
	Title   lipgloss.Style
	Bold    lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Code    lipgloss.Style

	Box        lipgloss.Style
	WarningBox lipgloss.Style
	ErrorBox   lipgloss.Style
}{
	Title:   lipgloss.NewStyle().Bold(true).Foreground(ColorTealBright),
	Bold:    lipgloss.NewStyle().Bold(true),
	Muted:   lipgloss.NewStyle().Foreground(ColorSlate),
	Success: lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning: lipgloss.NewStyle().Foreground(ColorWarning),
	Error:   lipgloss.NewStyle().Foreground(ColorError),
	Code:    lipgloss.NewStyle().Foreground(ColorTealPrimary),

	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorTealDeep).
		Padding(0, 1),
	WarningBox: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorWarning).
		Padding(0, 1),
	ErrorBox: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorError).
		Padding(0, 1),
}

// Icon is a status glyph.
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconPending Icon = "○"
)

// Render returns the icon with its status color.
func (i Icon) Render() string {
	switch i {
	case IconSuccess:
		return Styles.Success.Render(string(i))
	case IconWarning:
		return Styles.Warning.Render(string(i))
	case IconError:
		return Styles.Error.Render(string(i))
	case IconPending:
		return Styles.Muted.Render(string(i))
	default:
		return string(i)
	}
}

// plainTag maps an icon to its plain-mode prefix.
func (i Icon) plainTag() string {
	switch i {
	case IconSuccess:
		return "OK"
	case IconWarning:
		return "WARN"
	case IconError:
		return "ERROR"
	case IconPending:
		return "PENDING"
	default:
		return string(i)
	}
}

// Printer writes styled status output. The zero value is not usable; use
// NewPrinter or Stdout.
type Printer struct {
	out  io.Writer
	err  io.Writer
	mode Mode
}

// NewPrinter returns a Printer writing status to out and failures to errOut.
func NewPrinter(out, errOut io.Writer, mode Mode) *Printer {
	return &Printer{out: out, err: errOut, mode: mode}
}

// Out returns the status stream.
func (p *Printer) Out() io.Writer { return p.out }

func (p *Printer) rich() bool { return p.mode == ModeRich }

// Success prints a success line.
func (p *Printer) Success(text string) { p.status(p.out, IconSuccess, Styles.Success, text) }

// Warning prints a warning line to the error stream.
func (p *Printer) Warning(text string) { p.status(p.err, IconWarning, Styles.Warning, text) }

func (p *Printer) status(w io.Writer, icon Icon, style lipgloss.Style, text string) {
	if !p.rich() {
		fmt.Fprintf(w, "%s: %s\n", icon.plainTag(), text)
		return
	}
	fmt.Fprintf(w, "%s %s\n", icon.Render(), style.Render(text))
}

// Info prints an informational line.
func (p *Printer) Info(text string) {
	if !p.rich() {
		fmt.Fprintln(p.out, text)
		return
	}
	fmt.Fprintf(p.out, "%s %s\n", Styles.Muted.Render("│"), text)
}

// FileStatus prints a path with a status icon and optional reason.
func (p *Printer) FileStatus(path string, status Icon, reason string) {
	if !p.rich() {
		if reason == "" {
			fmt.Fprintf(p.out, "%s\t%s\n", status.plainTag(), path)
		} else {
			fmt.Fprintf(p.out, "%s\t%s\t%s\n", status.plainTag(), path, reason)
		}
		return
	}
	if reason == "" {
		fmt.Fprintf(p.out, "%s %s\n", status.Render(), path)
		return
	}
	fmt.Fprintf(p.out, "%s %s %s\n", status.Render(), path, Styles.Muted.Render("("+reason+")"))
}

// Notice prints a titled block of remediation steps. Failures go to the
// error stream inside an error box; warnings use a warning box.
//
// Plain mode prints "title" followed by one indented line per step, which
// keeps the output grep-able in CI logs.
func (p *Printer) Notice(severity Icon, title string, steps []string) {
	w := p.out
	if severity == IconError || severity == IconWarning {
		w = p.err
	}

	if !p.rich() {
		fmt.Fprintf(w, "%s: %s\n", severity.plainTag(), title)
		for _, step := range steps {
			fmt.Fprintf(w, "    %s\n", step)
		}
		return
	}

	box := Styles.Box
	heading := Styles.Title
	switch severity {
	case IconError:
		box, heading = Styles.ErrorBox, Styles.Error.Bold(true)
	case IconWarning:
		box, heading = Styles.WarningBox, Styles.Warning.Bold(true)
	}

	lines := make([]string, 0, len(steps)+1)
	lines = append(lines, heading.Render(title))
	for _, step := range steps {
		lines = append(lines, Styles.Code.Render("  $ "+step))
	}
	fmt.Fprintln(w, box.Render(strings.Join(lines, "\n")))
}

// Summary prints "<changed> changed / <total> packages".
func (p *Printer) Summary(changed, total int) {
	if !p.rich() {
		fmt.Fprintf(p.out, "SUMMARY: changed=%d packages=%d\n", changed, total)
		return
	}
	changedStyle := Styles.Success
	if changed > 0 {
		changedStyle = Styles.Warning
	}
	fmt.Fprintf(p.out, "\n%s %s  %s %s\n",
		changedStyle.Render(fmt.Sprintf("%d", changed)), Styles.Muted.Render("changed"),
		Styles.Bold.Render(fmt.Sprintf("%d", total)), Styles.Muted.Render("packages"),
	)
}
