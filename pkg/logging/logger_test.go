// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"
)

// =============================================================================
// Level Tests
// =============================================================================

func TestLevel_String(t *testing.T) {
	tests := []struct {
		level Level
		want  string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{Level(42), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.level.String(); got != tt.want {
				t.Errorf("Level.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLevel_toSlogLevel(t *testing.T) {
	tests := []struct {
		level Level
		want  slog.Level
	}{
		{LevelDebug, slog.LevelDebug},
		{LevelInfo, slog.LevelInfo},
		{LevelWarn, slog.LevelWarn},
		{LevelError, slog.LevelError},
		{Level(42), slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := tt.level.toSlogLevel(); got != tt.want {
			t.Errorf("%v.toSlogLevel() = %v, want %v", tt.level, got, tt.want)
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{" warn ", LevelWarn, false},
		{"warning", LevelWarn, false},
		{"Error", LevelError, false},
		{"verbose", LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownLevel) {
					t.Fatalf("ParseLevel(%q) error = %v, want ErrUnknownLevel", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseLevel(%q) unexpected error: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

// =============================================================================
// Logger Tests
// =============================================================================

func TestNew_TextWriter(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Writer: &buf, Service: "halbuild"})
	defer logger.Close()

	logger.Info("Updating manifest", "path", "nfc/V1_0/Android.bp")

	out := buf.String()
	for _, want := range []string{"Updating manifest", "path=nfc/V1_0/Android.bp", "service=halbuild"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}
}

func TestNew_JSONWriter(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Writer: &buf, JSON: true})
	defer logger.Close()

	logger.Warn("cache disabled", "reason", "locked")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if record["msg"] != "cache disabled" {
		t.Errorf("msg = %v, want cache disabled", record["msg"])
	}
	if record["level"] != "WARN" {
		t.Errorf("level = %v, want WARN", record["level"])
	}
}

func TestNew_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Writer: &buf, Level: LevelWarn})
	defer logger.Close()

	logger.Debug("hidden")
	logger.Info("hidden too")
	logger.Error("visible")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("records below Warn leaked: %q", out)
	}
	if !strings.Contains(out, "visible") {
		t.Errorf("error record missing: %q", out)
	}
}

func TestNew_QuietDiscards(t *testing.T) {
	logger := New(Config{Quiet: true})
	defer logger.Close()

	if logger.slog == nil {
		t.Fatal("logger.slog is nil in quiet mode")
	}
	logger.Info("goes nowhere")
}

func TestNew_WithLogDir(t *testing.T) {
	dir := t.TempDir()
	logger := New(Config{LogDir: dir, Quiet: true})

	logger.Info("written to file")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 || !strings.HasPrefix(entries[0].Name(), "halbuild_") {
		t.Fatalf("expected one halbuild_*.log file, got %v", entries)
	}
}

func TestNew_WithLogDir_Unwritable(t *testing.T) {
	parent := t.TempDir()
	blocker := parent + "/file"
	if err := os.WriteFile(blocker, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	logger := New(Config{LogDir: blocker + "/logs", Quiet: true})
	defer logger.Close()

	if logger.file != nil {
		t.Error("file sink should be disabled when the directory cannot be created")
	}
}

func TestLogger_With(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Writer: &buf})
	defer logger.Close()

	child := logger.With("run_id", "r-1")
	child.Info("run started")

	if !strings.Contains(buf.String(), "run_id=r-1") {
		t.Errorf("child attributes missing: %q", buf.String())
	}
	if child.Slog() == logger.Slog() {
		t.Error("With should return a distinct slog.Logger")
	}
}

func TestLogger_CloseIdempotent(t *testing.T) {
	logger := New(Config{LogDir: t.TempDir(), Quiet: true})
	if err := logger.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestDefault(t *testing.T) {
	logger := Default()
	defer logger.Close()

	if logger.config.Level != LevelInfo {
		t.Errorf("Default level = %v, want LevelInfo", logger.config.Level)
	}
	if logger.config.Service != "halbuild" {
		t.Errorf("Default service = %v, want halbuild", logger.config.Service)
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	if got := expandPath("~/logs"); got != home+"/logs" {
		t.Errorf("expandPath(~/logs) = %q", got)
	}
	if got := expandPath("/var/log"); got != "/var/log" {
		t.Errorf("expandPath(/var/log) = %q", got)
	}
	if got := expandPath("~other"); got != "~other" {
		t.Errorf("expandPath(~other) = %q", got)
	}
}

// =============================================================================
// Multi Handler Tests
// =============================================================================

func TestMultiHandler_FanOut(t *testing.T) {
	var a, b bytes.Buffer
	h := &multiHandler{handlers: []slog.Handler{
		slog.NewTextHandler(&a, nil),
		slog.NewJSONHandler(&b, &slog.HandlerOptions{Level: slog.LevelError}),
	}}
	logger := slog.New(h.WithAttrs([]slog.Attr{slog.String("k", "v")}))

	logger.Info("info only")
	logger.Error("both")

	if !strings.Contains(a.String(), "info only") || !strings.Contains(a.String(), "both") {
		t.Errorf("text sink = %q", a.String())
	}
	if strings.Contains(b.String(), "info only") || !strings.Contains(b.String(), "both") {
		t.Errorf("json sink = %q", b.String())
	}
	if !strings.Contains(b.String(), `"k":"v"`) {
		t.Errorf("attrs not propagated: %q", b.String())
	}
}
