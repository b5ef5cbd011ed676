// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package watch

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// ServiceName names the status server in traces.
const ServiceName = "halbuild-watch"

// StatusSource reports loop state. *Loop implements it.
type StatusSource interface {
	Status() Status
}

// SetupRoutes registers the status endpoints on router. metrics may be
// nil, in which case /metrics is not served.
func SetupRoutes(router *gin.Engine, src StatusSource, metrics http.Handler) {
	router.GET("/healthz", HealthCheck)
	if metrics != nil {
		router.GET("/metrics", gin.WrapH(metrics))
	}

	v1 := router.Group("/v1/halbuild")
	{
		v1.GET("/status", HandleStatus(src))
	}
}

// HealthCheck answers liveness checks.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// HandleStatus serves the loop status. It answers 409 while a review is
// pending so that health checks can alert on it.
func HandleStatus(src StatusSource) gin.HandlerFunc {
	return func(c *gin.Context) {
		s := src.Status()
		code := http.StatusOK
		if s.ReviewPending {
			code = http.StatusConflict
		}
		c.JSON(code, s)
	}
}

// NewRouter returns a gin engine with tracing and the status routes.
func NewRouter(src StatusSource, metrics http.Handler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), otelgin.Middleware(ServiceName))
	SetupRoutes(router, src, metrics)
	return router
}

// Serve runs the status server on addr until ctx is done.
func Serve(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("status server listening", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
