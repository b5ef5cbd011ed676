// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"
)

func running(s *Spinner) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// =============================================================================
// Plain Mode Tests
// =============================================================================

func TestSpinner_PlainPrintsOnce(t *testing.T) {
	var buf bytes.Buffer
	spin := newSpinner(&buf, ModePlain, "syncing manifests")
	if running(spin) {
		t.Error("new spinner should not be running")
	}
	spin.Start()
	spin.Start()
	if !running(spin) {
		t.Error("spinner should be running after Start")
	}
	spin.Stop()
	spin.Stop()

	if got := buf.String(); got != "PENDING: syncing manifests\n" {
		t.Errorf("unexpected plain output %q", got)
	}
	if running(spin) {
		t.Error("spinner should not be running after Stop")
	}
}

// =============================================================================
// Rich Mode Tests
// =============================================================================

func TestSpinner_RichAnimatesAndClears(t *testing.T) {
	var buf bytes.Buffer
	spin := newSpinner(&buf, ModeRich, "syncing")
	spin.interval = 5 * time.Millisecond
	spin.Start()
	time.Sleep(30 * time.Millisecond)
	spin.Stop()

	out := buf.String()
	if strings.Count(out, "syncing") < 2 {
		t.Errorf("expected several frames in %q", out)
	}
	if !strings.Contains(out, spinnerFrames[0]) {
		t.Errorf("expected first frame in %q", out)
	}
	if !strings.HasSuffix(out, "\r\033[K") {
		t.Errorf("expected line clear at end of %q", out)
	}
}

func TestSpinner_StopWithoutStart(t *testing.T) {
	spin := newSpinner(&bytes.Buffer{}, ModeRich, "x")
	spin.Stop()
	if running(spin) {
		t.Error("spinner should not be running")
	}
}

// =============================================================================
// WithSpinner Tests
// =============================================================================

func TestWithSpinner_ReturnsFnError(t *testing.T) {
	p, out, errOut := newPlain()
	want := errors.New("boom")
	err := WithSpinner(p, "checking", func() error { return want })
	if !errors.Is(err, want) {
		t.Errorf("expected %v, got %v", want, err)
	}
	if out.Len() != 0 {
		t.Errorf("spinner must not write to stdout, got %q", out.String())
	}
	if !strings.Contains(errOut.String(), "PENDING: checking") {
		t.Errorf("expected pending line on stderr, got %q", errOut.String())
	}
}
