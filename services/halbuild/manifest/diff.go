// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package manifest

import (
	"bytes"
	"strings"

	"github.com/sourcegraph/go-diff/diff"
)

// diffContext is the number of unchanged lines kept around a change.
const diffContext = 3

// UnifiedDiff builds a single-hunk unified diff from before to after.
//
// Manifests are regenerated wholesale, so one hunk spanning the first to
// the last changed line is enough for review output. existed selects
// "/dev/null" as the original name for newly created files.
func UnifiedDiff(name, before, after string, existed bool) *diff.FileDiff {
	a, b := splitLines(before), splitLines(after)

	prefix := 0
	for prefix < len(a) && prefix < len(b) && a[prefix] == b[prefix] {
		prefix++
	}
	suffix := 0
	for suffix < len(a)-prefix && suffix < len(b)-prefix && a[len(a)-1-suffix] == b[len(b)-1-suffix] {
		suffix++
	}

	start := max(0, prefix-diffContext)
	endA := min(len(a), len(a)-suffix+diffContext)
	endB := min(len(b), len(b)-suffix+diffContext)

	var body bytes.Buffer
	for _, l := range a[start:prefix] {
		writeLine(&body, ' ', l)
	}
	for _, l := range a[prefix : len(a)-suffix] {
		writeLine(&body, '-', l)
	}
	for _, l := range b[prefix : len(b)-suffix] {
		writeLine(&body, '+', l)
	}
	for _, l := range a[len(a)-suffix : endA] {
		writeLine(&body, ' ', l)
	}

	hunk := &diff.Hunk{
		OrigStartLine: hunkStart(start, endA-start),
		OrigLines:     int32(endA - start),
		NewStartLine:  hunkStart(start, endB-start),
		NewLines:      int32(endB - start),
		Body:          body.Bytes(),
	}

	origName := "a/" + name
	if !existed {
		origName = "/dev/null"
	}
	return &diff.FileDiff{
		OrigName: origName,
		NewName:  "b/" + name,
		Hunks:    []*diff.Hunk{hunk},
	}
}

// hunkStart follows the unified format: an empty range starts at the line
// before it.
func hunkStart(start, length int) int32 {
	if length == 0 {
		return int32(start)
	}
	return int32(start + 1)
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

func writeLine(buf *bytes.Buffer, mark byte, line string) {
	buf.WriteByte(mark)
	buf.WriteString(line)
	if !strings.HasSuffix(line, "\n") {
		buf.WriteByte('\n')
	}
}

// FormatDiffs renders diffs in unified format, in the order given.
func FormatDiffs(diffs []*diff.FileDiff) (string, error) {
	if len(diffs) == 0 {
		return "", nil
	}
	out, err := diff.PrintMultiFileDiff(diffs)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
