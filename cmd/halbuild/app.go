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
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"

	"github.com/AleutianAI/halbuild/pkg/logging"
	"github.com/AleutianAI/halbuild/pkg/ux"
	"github.com/AleutianAI/halbuild/services/halbuild/catalog"
	"github.com/AleutianAI/halbuild/services/halbuild/config"
	"github.com/AleutianAI/halbuild/services/halbuild/halerr"
	"github.com/AleutianAI/halbuild/services/halbuild/lock"
	"github.com/AleutianAI/halbuild/services/halbuild/syncer"
	"github.com/AleutianAI/halbuild/services/halbuild/telemetry"
)

// app is everything a command needs once configuration is loaded.
type app struct {
	cfg     *config.Config
	fs      billy.Filesystem
	logger  *logging.Logger
	printer *ux.Printer
	orch    *syncer.Orchestrator

	cache     *catalog.BadgerCache
	telemetry *telemetry.Provider
}

// openApp loads configuration and wires the orchestrator.
//
// # Description
//
// Configuration problems are returned as halerr.KindConfiguration so the
// caller can exit before any discovery happens. The import cache is
// optional: when it cannot be opened the run proceeds uncached.
//
// # Inputs
//
//   - ctx: Passed to telemetry initialisation.
//   - g: Global flag values.
//   - stdout, stderr: Command output streams.
//
// # Outputs
//
//   - *app: Call Close when done.
//   - error: A *halerr.Error.
func openApp(ctx context.Context, g *globalFlags, stdout, stderr io.Writer) (*app, error) {
	printer := ux.NewPrinter(stdout, stderr, outputMode(stdout))

	cfg, err := loadConfig(g)
	if err != nil {
		return nil, err
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, configError(err)
	}
	logger := logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Log.Dir,
		Service: "halbuild",
		JSON:    cfg.Log.JSON,
		Writer:  stderr,
	})
	slog.SetDefault(logger.Slog())

	tel, err := telemetry.Setup(ctx, cfg.Telemetry, telemetry.Options{
		Version:  version,
		BuildTop: cfg.BuildTop,
		Output:   stderr,
	})
	if err != nil {
		_ = logger.Close()
		return nil, configError(err)
	}

	a := &app{
		cfg:       cfg,
		fs:        osfs.New(cfg.BuildTop),
		logger:    logger,
		printer:   printer,
		telemetry: tel,
	}

	copts := []catalog.Option{
		catalog.WithReservedSegments(cfg.ReservedSegments...),
		catalog.WithExcludes(cfg.Exclude...),
	}
	if cfg.Cache.Enabled {
		cache, err := catalog.OpenCache(catalog.CacheConfig{
			Path:     cfg.CachePath(),
			InMemory: cfg.Cache.InMemory,
			Logger:   logger.Slog(),
		})
		if err != nil {
			logger.Warn("import cache unavailable, continuing without it", slog.String("error", err.Error()))
		} else {
			a.cache = cache
			copts = append(copts, catalog.WithCache(cache))
		}
	}

	a.orch, err = syncer.New(a.fs, syncer.Settings{
		InterfaceRoot: cfg.InterfaceRoot,
		ProjectRoot:   cfg.ProjectRoot,
		Template:      cfg.Template,
		LockFile:      cfg.LockFile,
		Conventions:   cfg.Conventions(),
		Workers:       cfg.Workers,
	},
		syncer.WithCatalogOptions(copts...),
		syncer.WithRunLock(lock.NewRunLock(cfg.RunLockPath())),
		syncer.WithLogger(logger.Slog()),
	)
	if err != nil {
		a.Close()
		return nil, configError(err)
	}
	return a, nil
}

// Close releases the cache, flushes telemetry and closes the log file.
func (a *app) Close() {
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Warn("close import cache", slog.String("error", err.Error()))
		}
	}
	if a.telemetry != nil {
		if err := a.telemetry.Shutdown(context.Background()); err != nil {
			a.logger.Warn("telemetry shutdown", slog.String("error", err.Error()))
		}
	}
	_ = a.logger.Close()
}

// projectDir is the absolute project root.
func (a *app) projectDir() string {
	return filepath.Join(a.cfg.BuildTop, filepath.FromSlash(a.cfg.ProjectRoot))
}

// loadConfig merges defaults, the config file, the environment and g.
func loadConfig(g *globalFlags) (*config.Config, error) {
	cfg, err := config.Load(config.Overrides{
		File:     g.configFile,
		BuildTop: g.buildTop,
		Workers:  g.workers,
		LogLevel: g.logLevel,
		LogJSON:  g.logJSON,
		NoCache:  g.noCache,
	})
	if err != nil {
		return nil, configError(err)
	}
	return cfg, nil
}

// configError classifies a configuration failure.
func configError(err error) error {
	var he *halerr.Error
	if errors.As(err, &he) {
		return err
	}
	steps := []string{"run `halbuild --help` for the available flags"}
	var verr *config.ValidationError
	switch {
	case errors.Is(err, config.ErrBuildTopUnset):
		steps = []string{
			"export " + config.EnvBuildTop + "=/path/to/android/source",
			"or pass --build-top /path/to/android/source",
		}
	case errors.Is(err, config.ErrBuildTopNotFound):
		steps = []string{"check that " + config.EnvBuildTop + " points at an existing source tree"}
	case errors.As(err, &verr):
		steps = nil
		for _, f := range verr.Fields {
			steps = append(steps, "fix "+f)
		}
	case errors.Is(err, catalog.ErrInvalidPattern):
		steps = []string{"fix the exclude globs in " + config.FileName}
	}
	return halerr.New(halerr.KindConfiguration, "configure", "", err, steps...)
}

// outputMode detects rich output only for a real terminal.
func outputMode(w io.Writer) ux.Mode {
	if f, ok := w.(*os.File); ok {
		return ux.DetectMode(f)
	}
	return ux.ModePlain
}
