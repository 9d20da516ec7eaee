// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package api exposes the model shelf over HTTP.
//
// # Routes
//
//	GET    /health
//	GET    /metrics
//	GET    /v1/models               ?query= filters by display name
//	POST   /v1/models               add a custom model
//	GET    /v1/models/:id
//	PUT    /v1/models/:id           edit a custom model
//	DELETE /v1/models/:id           delete files, and the descriptor if custom
//	POST   /v1/models/:id/download  start a background download
//	POST   /v1/models/:id/cancel
//	DELETE /v1/models/:id/files
//	GET    /v1/downloads
//	GET    /v1/selection
//	PUT    /v1/selection
//	GET    /v1/events               websocket stream of events
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/AleutianAI/modelshelf/pkg/events"
	"github.com/AleutianAI/modelshelf/services/library"
)

// Config wires a Server.
type Config struct {
	// Library serves every model route. Required.
	Library *library.Library

	// Emitter feeds /v1/events. The route is not registered when nil.
	Emitter *events.Emitter

	// Gatherer backs /metrics. Defaults to prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer

	// ServiceName names spans from the tracing middleware.
	ServiceName string

	Logger *slog.Logger
}

// Server is the HTTP front end.
type Server struct {
	library  *library.Library
	emitter  *events.Emitter
	logger   *slog.Logger
	router   *gin.Engine
	upgrader websocket.Upgrader
}

// NewServer builds the router and registers every route.
func NewServer(cfg Config) *Server {
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "modelshelf"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Server{
		library: cfg.Library,
		emitter: cfg.Emitter,
		logger:  cfg.Logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.ServiceName))
	s.router = router
	s.routes(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	return s
}

func (s *Server) routes(metrics http.Handler) {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/metrics", gin.WrapH(metrics))

	v1 := s.router.Group("/v1")
	{
		models := v1.Group("/models")
		{
			models.GET("", s.handleListModels)
			models.POST("", s.handleCreateModel)
			models.GET("/:id", s.handleGetModel)
			models.PUT("/:id", s.handleUpdateModel)
			models.DELETE("/:id", s.handleRemoveModel)
			models.POST("/:id/download", s.handleStartDownload)
			models.POST("/:id/cancel", s.handleCancelDownload)
			models.DELETE("/:id/files", s.handleDeleteFiles)
		}
		v1.GET("/downloads", s.handleListDownloads)
		v1.GET("/selection", s.handleGetSelection)
		v1.PUT("/selection", s.handleSetSelection)
		if s.emitter != nil {
			v1.GET("/events", s.handleEvents)
		}
	}
}

// Router returns the gin engine, mainly for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Run serves on addr until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("api stopped")
	return nil
}
