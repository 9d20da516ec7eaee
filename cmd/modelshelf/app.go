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
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/AleutianAI/modelshelf/cmd/modelshelf/internal/config"
	"github.com/AleutianAI/modelshelf/pkg/events"
	"github.com/AleutianAI/modelshelf/pkg/logging"
	"github.com/AleutianAI/modelshelf/services/downloader"
	"github.com/AleutianAI/modelshelf/services/fetch"
	"github.com/AleutianAI/modelshelf/services/library"
	"github.com/AleutianAI/modelshelf/services/modelstore"
)

const shutdownTimeout = 10 * time.Second

// app holds every component a command needs. Build it with openApp and
// release it with close.
type app struct {
	cfg      config.ShelfConfig
	logger   *logging.Logger
	log      *slog.Logger
	emitter  *events.Emitter
	store    *modelstore.Store
	coord    *downloader.Coordinator
	lib      *library.Library
	registry *prometheus.Registry
	closers  []func() error
}

// loadConfig resolves the config file and applies flag overrides.
func loadConfig(opts *globalOptions) (config.ShelfConfig, error) {
	path := opts.configPath
	if path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return config.ShelfConfig{}, err
		}
		path = p
	}

	cfg, created, err := config.Load(path)
	if err != nil {
		return config.ShelfConfig{}, err
	}
	if created && !opts.quiet {
		fmt.Fprintf(opts.errOut, "First run detected, created the config at %s\n", path)
	}

	if opts.dataDir != "" {
		cfg.DataDir = opts.dataDir
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	return cfg, nil
}

// openApp loads configuration and opens the store, fetchers, coordinator
// and library.
func openApp(ctx context.Context, opts *globalOptions) (*app, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}

	logger := logging.New(logging.Config{
		Level:   logging.ParseLevel(cfg.Log.Level),
		LogDir:  cfg.Log.Dir,
		Service: "modelshelf",
		JSON:    cfg.Log.JSON,
		Quiet:   opts.quiet,
		Output:  opts.errOut,
	})
	a := &app{
		cfg:      cfg,
		logger:   logger,
		log:      logger.Slog(),
		registry: prometheus.NewRegistry(),
	}
	a.emitter = events.NewEmitter(events.WithLogger(a.log))

	store, err := modelstore.Open(ctx, modelstore.Config{
		DataDir:          cfg.DataDir,
		TrustedVisionIDs: cfg.TrustedVisionIDs,
	}, modelstore.WithLogger(a.log), modelstore.WithPublisher(a.emitter))
	if err != nil {
		_ = logger.Close()
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	a.store = store
	a.closers = append(a.closers, store.Close)

	router, err := a.newRouter(ctx)
	if err != nil {
		_ = a.close()
		return nil, err
	}

	a.coord = downloader.New(router, store.Layout(),
		downloader.WithLogger(a.log),
		downloader.WithPublisher(a.emitter),
		downloader.WithRefresher(store),
		downloader.WithMetrics(downloader.NewMetrics(a.registry)),
		downloader.WithMinArtifactBytes(cfg.Download.MinArtifactBytes),
	)
	a.lib = library.New(store, a.coord, library.WithLogger(a.log))
	return a, nil
}

func (a *app) newRouter(ctx context.Context) (*fetch.Router, error) {
	dl := a.cfg.Download
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 30 * time.Second}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ResponseHeaderTimeout: dl.RequestTimeout,
		MaxIdleConnsPerHost:   dl.MaxParallel * 2,
	}
	token := fetch.NewToken([]byte(config.HFToken()), dl.TokenHosts...)
	a.closers = append(a.closers, token.Close)
	httpFetcher := fetch.NewHTTPFetcher(
		fetch.WithHTTPClient(&http.Client{Transport: transport}),
		fetch.WithUserAgent(dl.UserAgent),
		fetch.WithProgressInterval(dl.ProgressInterval),
		fetch.WithToken(token),
		fetch.WithHTTPLogger(a.log),
	)

	var gcs *fetch.GCSFetcher
	if a.cfg.GCS.Enabled {
		g, err := fetch.NewGCSFetcher(ctx, fetch.GCSConfig{
			CredentialsFile:  a.cfg.GCS.CredentialsFile,
			ProgressInterval: dl.ProgressInterval,
			Logger:           a.log,
		})
		if err != nil {
			return nil, fmt.Errorf("gcs: %w", err)
		}
		gcs = g
		a.closers = append(a.closers, g.Close)
	}
	return fetch.NewDefaultRouter(httpFetcher, gcs), nil
}

// close stops in-flight downloads and releases resources in reverse order.
func (a *app) close() error {
	var errs []error
	if a.coord != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		errs = append(errs, a.coord.Shutdown(ctx))
		cancel()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	errs = append(errs, a.logger.Close())
	return errors.Join(errs...)
}

// withApp opens the app for the duration of fn.
func withApp(ctx context.Context, opts *globalOptions, fn func(*app) error) (err error) {
	a, err := openApp(ctx, opts)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(a)
}
