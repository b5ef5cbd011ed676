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
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/halbuild/services/halbuild/hal"
)

// Environment variables read by Load.
const (
	EnvBuildTop = "ANDROID_BUILD_TOP"
	EnvConfig   = "HALBUILD_CONFIG"
	EnvWorkers  = "HALBUILD_WORKERS"
	EnvLogLevel = "HALBUILD_LOG_LEVEL"
)

// FileName is the config file looked up inside ProjectRoot when no file is
// named explicitly.
const FileName = "halbuild.yaml"

var (
	// ErrBuildTopUnset is returned when neither a flag, the environment nor
	// the config file names the build top.
	ErrBuildTopUnset = errors.New(EnvBuildTop + " is not set")

	// ErrBuildTopNotFound is returned when the build top is not a directory.
	ErrBuildTopNotFound = errors.New("build top is not a directory")

	// ErrInvalid is wrapped by every validation failure.
	ErrInvalid = errors.New("invalid configuration")
)

// =============================================================================
// Validation
// =============================================================================

var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("relpath", validateRelPath)
	_ = validate.RegisterValidation("basename", validateBaseName)
	_ = validate.RegisterValidation("halprefix", validatePrefix)
}

// validateRelPath accepts a clean, slash-separated path that stays inside
// the build top.
func validateRelPath(fl validator.FieldLevel) bool {
	p := fl.Field().String()
	if p == "" || strings.Contains(p, `\`) || path.IsAbs(p) {
		return false
	}
	clean := path.Clean(p)
	return clean == p && clean != "." && clean != ".." && !strings.HasPrefix(clean, "../")
}

func validateBaseName(fl validator.FieldLevel) bool {
	n := fl.Field().String()
	return n != "" && n != "." && n != ".." && !strings.ContainsAny(n, `/\`)
}

// validatePrefix accepts dotted identifiers such as "android.hardware".
func validatePrefix(fl validator.FieldLevel) bool {
	for _, part := range strings.Split(fl.Field().String(), ".") {
		if !hal.IsIdentifier(part) {
			return false
		}
	}
	return true
}

// ValidationError lists every field that failed validation.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%v: %s", ErrInvalid, strings.Join(e.Fields, "; "))
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalid
}

// Validate checks c against its struct tags.
func (c *Config) Validate() error {
	if c.BuildTop == "" {
		return ErrBuildTopUnset
	}
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
	}
	return &ValidationError{Fields: fields}
}

// =============================================================================
// Loading
// =============================================================================

// Overrides are command-line values. Zero values leave the lower layers
// untouched.
type Overrides struct {
	File     string
	BuildTop string
	Workers  int
	LogLevel string
	LogJSON  bool
	NoCache  bool
}

// Load builds the effective configuration.
//
// # Description
//
// Starts from Default, merges the config file, applies the environment and
// then the overrides, resolves BuildTop to an absolute directory and
// validates the result.
//
// The config file is the first of: Overrides.File, $HALBUILD_CONFIG, or
// <build_top>/<project_root>/halbuild.yaml when that file exists. A file
// named explicitly must exist.
//
// # Inputs
//
//   - o: Command-line overrides.
//
// # Outputs
//
//   - *Config: The validated configuration.
//   - error: ErrBuildTopUnset, ErrBuildTopNotFound, a *ValidationError, or a
//     file read/parse error.
func Load(o Overrides) (*Config, error) {
	cfg := Default()

	file := o.File
	if file == "" {
		file = os.Getenv(EnvConfig)
	}
	if file != "" {
		if err := cfg.mergeFile(file); err != nil {
			return nil, err
		}
	} else if top := firstNonEmpty(o.BuildTop, os.Getenv(EnvBuildTop)); top != "" {
		implicit := filepath.Join(top, filepath.FromSlash(cfg.ProjectRoot), FileName)
		if _, err := os.Stat(implicit); err == nil {
			if err := cfg.mergeFile(implicit); err != nil {
				return nil, err
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.apply(o)

	if cfg.BuildTop == "" {
		return nil, ErrBuildTopUnset
	}
	abs, err := filepath.Abs(cfg.BuildTop)
	if err != nil {
		return nil, fmt.Errorf("resolve build top: %w", err)
	}
	cfg.BuildTop = abs
	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrBuildTopNotFound, abs)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// mergeFile overlays the YAML document at name onto c. Unknown keys are
// rejected so typos surface instead of being ignored.
func (c *Config) mergeFile(name string) error {
	data, err := os.ReadFile(name)
	if err != nil {
		return fmt.Errorf("read config %s: %w", name, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config %s: %w", name, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvBuildTop); v != "" {
		c.BuildTop = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = strings.ToLower(v)
	}
	if v := os.Getenv(EnvWorkers); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not a number", ErrInvalid, EnvWorkers, v)
		}
		c.Workers = n
	}
	return nil
}

func (c *Config) apply(o Overrides) {
	if o.BuildTop != "" {
		c.BuildTop = o.BuildTop
	}
	if o.Workers != 0 {
		c.Workers = o.Workers
	}
	if o.LogLevel != "" {
		c.Log.Level = strings.ToLower(o.LogLevel)
	}
	if o.LogJSON {
		c.Log.JSON = true
	}
	if o.NoCache {
		c.Cache.Enabled = false
	}
}

// Marshal renders c as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
