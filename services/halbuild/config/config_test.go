// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv isolates a test from the caller's environment.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{EnvBuildTop, EnvConfig, EnvWorkers, EnvLogLevel} {
		t.Setenv(k, "")
	}
}

func writeFile(t *testing.T, name, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(name), 0o755))
	require.NoError(t, os.WriteFile(name, []byte(content), 0o644))
}

func TestDefault_IsValidOnceBuildTopSet(t *testing.T) {
	cfg := Default()
	assert.ErrorIs(t, cfg.Validate(), ErrBuildTopUnset)

	cfg.BuildTop = t.TempDir()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, "test/vts-testcase/hal/repo_upload_lock", cfg.ReviewLockPath())
	assert.Equal(t, filepath.Join(cfg.BuildTop, "out", "halbuild", "run.lock"), cfg.RunLockPath())
	assert.Equal(t, "android.hardware", cfg.Conventions().Prefix)
}

func TestLoad_MissingBuildTop(t *testing.T) {
	clearEnv(t)
	_, err := Load(Overrides{})
	assert.ErrorIs(t, err, ErrBuildTopUnset)
}

func TestLoad_BuildTopMustExist(t *testing.T) {
	clearEnv(t)
	_, err := Load(Overrides{BuildTop: filepath.Join(t.TempDir(), "nope")})
	assert.ErrorIs(t, err, ErrBuildTopNotFound)
}

func TestLoad_Layering(t *testing.T) {
	clearEnv(t)
	top := t.TempDir()
	writeFile(t, filepath.Join(top, "test/vts-testcase/hal", FileName), `
workers: 2
exclude: ["**/default"]
log:
  level: debug
watch:
  debounce: 250ms
`)

	t.Run("file over defaults", func(t *testing.T) {
		t.Setenv(EnvBuildTop, top)
		cfg, err := Load(Overrides{})
		require.NoError(t, err)
		assert.Equal(t, top, cfg.BuildTop)
		assert.Equal(t, 2, cfg.Workers)
		assert.Equal(t, "debug", cfg.Log.Level)
		assert.Equal(t, []string{"**/default"}, cfg.Exclude)
		assert.Equal(t, 250*time.Millisecond, cfg.Watch.Debounce)
		assert.Equal(t, "hardware/interfaces", cfg.InterfaceRoot)
	})

	t.Run("env over file", func(t *testing.T) {
		t.Setenv(EnvBuildTop, top)
		t.Setenv(EnvWorkers, "8")
		t.Setenv(EnvLogLevel, "WARN")
		cfg, err := Load(Overrides{})
		require.NoError(t, err)
		assert.Equal(t, 8, cfg.Workers)
		assert.Equal(t, "warn", cfg.Log.Level)
	})

	t.Run("flags over env", func(t *testing.T) {
		t.Setenv(EnvBuildTop, filepath.Join(top, "ignored"))
		t.Setenv(EnvWorkers, "8")
		cfg, err := Load(Overrides{BuildTop: top, Workers: 3, NoCache: true, LogJSON: true})
		require.NoError(t, err)
		assert.Equal(t, top, cfg.BuildTop)
		assert.Equal(t, 3, cfg.Workers)
		assert.False(t, cfg.Cache.Enabled)
		assert.True(t, cfg.Log.JSON)
	})
}

func TestLoad_ExplicitFile(t *testing.T) {
	clearEnv(t)
	top := t.TempDir()
	file := filepath.Join(t.TempDir(), "custom.yaml")
	writeFile(t, file, "build_top: "+top+"\npackage_prefix: vendor.acme.hardware\n")

	cfg, err := Load(Overrides{File: file})
	require.NoError(t, err)
	assert.Equal(t, top, cfg.BuildTop)
	assert.Equal(t, "vendor.acme.hardware", cfg.PackagePrefix)

	_, err = Load(Overrides{File: filepath.Join(top, "missing.yaml")})
	assert.Error(t, err)
}

func TestLoad_UnknownKeyRejected(t *testing.T) {
	clearEnv(t)
	top := t.TempDir()
	file := filepath.Join(top, "bad.yaml")
	writeFile(t, file, "wokers: 2\n")

	_, err := Load(Overrides{File: file, BuildTop: top})
	assert.Error(t, err)
}

func TestLoad_BadWorkersEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvWorkers, "many")
	_, err := Load(Overrides{BuildTop: t.TempDir()})
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		valid  bool
	}{
		{"defaults", func(*Config) {}, true},
		{"zero workers", func(c *Config) { c.Workers = 0 }, false},
		{"absolute interface root", func(c *Config) { c.InterfaceRoot = "/hardware/interfaces" }, false},
		{"escaping project root", func(c *Config) { c.ProjectRoot = "../elsewhere" }, false},
		{"unclean template", func(c *Config) { c.Template = "a//b.bp" }, false},
		{"lock file with slash", func(c *Config) { c.LockFile = "a/lock" }, false},
		{"bad prefix", func(c *Config) { c.PackagePrefix = "android..hardware" }, false},
		{"vendor prefix", func(c *Config) { c.PackagePrefix = "vendor.acme" }, true},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, false},
		{"otlp without endpoint", func(c *Config) { c.Telemetry.Traces = "otlp" }, false},
		{"otlp with endpoint", func(c *Config) {
			c.Telemetry.Traces = "otlp"
			c.Telemetry.OTLPEndpoint = "localhost:4318"
		}, true},
		{"listen port only", func(c *Config) { c.Watch.Listen = ":9464" }, true},
		{"listen garbage", func(c *Config) { c.Watch.Listen = "nope" }, false},
		{"reserved segment with slash", func(c *Config) { c.ReservedSegments = []string{"a/b"} }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.BuildTop = "/top"
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalid), "want ErrInvalid, got %v", err)
			var verr *ValidationError
			assert.True(t, errors.As(err, &verr))
		})
	}
}

func TestMarshal_RoundTrip(t *testing.T) {
	cfg := Default()
	cfg.BuildTop = "/top"
	data, err := cfg.Marshal()
	require.NoError(t, err)
	assert.Contains(t, string(data), "interface_root: hardware/interfaces")
	assert.Contains(t, string(data), "lock_file: repo_upload_lock")
}
