// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads halbuild settings.
//
// Values are layered, later layers winning: built-in defaults, a YAML
// file, environment variables, then command-line overrides. The merged
// result is validated once with go-playground/validator.
package config

import (
	"path"
	"path/filepath"
	"time"

	"github.com/AleutianAI/halbuild/services/halbuild/catalog"
	"github.com/AleutianAI/halbuild/services/halbuild/hal"
	"github.com/AleutianAI/halbuild/services/halbuild/lock"
)

// Config is the complete halbuild configuration.
//
// Paths other than BuildTop are slash-separated and relative to BuildTop.
type Config struct {
	// BuildTop is the absolute root of the source tree.
	BuildTop string `yaml:"build_top" validate:"required"`

	// InterfaceRoot holds the interface spec tree, e.g. "hardware/interfaces".
	InterfaceRoot string `yaml:"interface_root" validate:"required,relpath"`

	// ProjectRoot holds the generated manifests and the review lock.
	ProjectRoot string `yaml:"project_root" validate:"required,relpath"`

	// Template is the manifest template path.
	Template string `yaml:"template" validate:"required,relpath"`

	// PackagePrefix is the first-party package namespace.
	PackagePrefix string `yaml:"package_prefix" validate:"required,halprefix"`

	// ManifestName is the file name of every generated manifest.
	ManifestName string `yaml:"manifest_name" validate:"required,basename"`

	// LockFile is the file name of the review lock inside ProjectRoot.
	LockFile string `yaml:"lock_file" validate:"required,basename"`

	// ReservedSegments are directory names never treated as packages.
	ReservedSegments []string `yaml:"reserved_segments" validate:"dive,basename"`

	// Exclude holds doublestar globs, relative to InterfaceRoot, pruned
	// from discovery.
	Exclude []string `yaml:"exclude"`

	// Workers bounds concurrent per-package work.
	Workers int `yaml:"workers" validate:"min=1,max=64"`

	// StateDir holds the run lock and the import cache.
	StateDir string `yaml:"state_dir" validate:"required,relpath"`

	Cache     CacheConfig     `yaml:"cache"`
	Log       LogConfig       `yaml:"log"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Watch     WatchConfig     `yaml:"watch"`
}

// CacheConfig controls the import cache.
type CacheConfig struct {
	Enabled  bool `yaml:"enabled"`
	InMemory bool `yaml:"in_memory"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `yaml:"json"`
	Dir   string `yaml:"dir"`
}

// TelemetryConfig selects the trace and metric exporters.
type TelemetryConfig struct {
	Traces       string `yaml:"traces" validate:"oneof=none stdout otlp"`
	Metrics      string `yaml:"metrics" validate:"oneof=none stdout prometheus"`
	OTLPEndpoint string `yaml:"otlp_endpoint" validate:"required_if=Traces otlp"`
}

// WatchConfig controls watch mode.
type WatchConfig struct {
	// Debounce is the quiet period after the last filesystem event.
	Debounce time.Duration `yaml:"debounce" validate:"min=0"`

	// MinInterval is the minimum time between two regenerations.
	MinInterval time.Duration `yaml:"min_interval" validate:"min=0"`

	// Listen is the status server address. Empty disables the server.
	Listen string `yaml:"listen" validate:"omitempty,hostname_port"`
}

// Default returns the built-in configuration. BuildTop is left empty.
func Default() Config {
	return Config{
		InterfaceRoot:    "hardware/interfaces",
		ProjectRoot:      "test/vts-testcase/hal",
		Template:         "test/vts-testcase/hal/script/build/template/vts_build_template.bp",
		PackagePrefix:    hal.DefaultPrefix,
		ManifestName:     hal.ManifestName,
		LockFile:         lock.DefaultReviewLockName,
		ReservedSegments: append([]string(nil), catalog.DefaultReservedSegments...),
		Workers:          4,
		StateDir:         "out/halbuild",
		Cache:            CacheConfig{Enabled: true},
		Log:              LogConfig{Level: "info"},
		Telemetry:        TelemetryConfig{Traces: "none", Metrics: "none"},
		Watch: WatchConfig{
			Debounce:    500 * time.Millisecond,
			MinInterval: 2 * time.Second,
		},
	}
}

// Conventions returns the path conventions this configuration describes.
func (c *Config) Conventions() hal.Conventions {
	return hal.Conventions{Prefix: c.PackagePrefix, ManifestName: c.ManifestName}
}

// StatePath is the absolute state directory.
func (c *Config) StatePath() string {
	return filepath.Join(c.BuildTop, filepath.FromSlash(c.StateDir))
}

// RunLockPath is the absolute path of the run lock file.
func (c *Config) RunLockPath() string {
	return filepath.Join(c.StatePath(), "run.lock")
}

// CachePath is the absolute directory of the import cache.
func (c *Config) CachePath() string {
	return filepath.Join(c.StatePath(), "cache")
}

// ReviewLockPath is the review lock path relative to BuildTop.
func (c *Config) ReviewLockPath() string {
	return path.Join(c.ProjectRoot, c.LockFile)
}
