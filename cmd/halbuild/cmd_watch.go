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
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/halbuild/services/halbuild/halerr"
	"github.com/AleutianAI/halbuild/services/halbuild/watch"
)

func newWatchCmd(c *cli) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Regenerate manifests whenever interface specs change",
		Long: `watch runs a full sync, then watches the interface tree and the template
and runs again after every quiet period. With --listen it also serves
/healthz, /v1/halbuild/status and, when prometheus metrics are enabled,
/metrics. Stop it with Ctrl-C.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, &c.global, c.stdout, c.stderr)
			if err != nil {
				return err
			}
			defer a.Close()

			if listen == "" {
				listen = a.cfg.Watch.Listen
			}
			logger := a.logger.Slog()
			loop := watch.NewLoop(a.orch, a.cfg.Watch.MinInterval, logger)

			w, err := watch.New(
				[]string{filepath.Join(a.cfg.BuildTop, filepath.FromSlash(a.cfg.InterfaceRoot))},
				loop.Handle,
				watch.Options{
					Debounce: a.cfg.Watch.Debounce,
					Extra:    []string{filepath.Join(a.cfg.BuildTop, filepath.FromSlash(a.cfg.Template))},
					Logger:   logger,
				},
			)
			if err != nil {
				return halerr.New(halerr.KindIO, "watch", a.cfg.InterfaceRoot, err)
			}

			g, gctx := errgroup.WithContext(ctx)
			if listen != "" {
				router := watch.NewRouter(loop, a.telemetry.MetricsHandler())
				g.Go(func() error { return watch.Serve(gctx, listen, router, logger) })
			}
			g.Go(func() error {
				_ = loop.RunOnce(gctx)
				if err := w.Start(gctx); err != nil {
					return halerr.New(halerr.KindIO, "watch", a.cfg.InterfaceRoot, err)
				}
				a.printer.Info(fmt.Sprintf("watching %s (%d directories)", a.cfg.InterfaceRoot, len(w.Watched())))
				<-gctx.Done()
				w.Stop()
				return nil
			})

			if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "status server address, e.g. :9464")
	return cmd
}
