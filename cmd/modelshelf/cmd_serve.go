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
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/modelshelf/pkg/telemetry"
	"github.com/AleutianAI/modelshelf/services/api"
	"github.com/AleutianAI/modelshelf/services/modelstore"
)

func newServeCmd(opts *globalOptions) *cobra.Command {
	var (
		addr    string
		noWatch bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the catalog and downloads over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return withApp(ctx, opts, func(a *app) error {
				shutdown, err := telemetry.Init(ctx, telemetryConfig(a, opts))
				if err != nil {
					return err
				}
				defer func() {
					sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
					defer cancel()
					if err := shutdown(sctx); err != nil {
						a.log.Warn("telemetry shutdown failed", "error", err)
					}
				}()

				if addr == "" {
					addr = a.cfg.Server.Addr
				}
				srv := api.NewServer(api.Config{
					Library:     a.lib,
					Emitter:     a.emitter,
					Gatherer:    a.registry,
					ServiceName: "modelshelf",
					Logger:      a.log,
				})

				g, gctx := errgroup.WithContext(ctx)
				if !noWatch {
					watcher, err := modelstore.NewWatcher(a.store, modelstore.WithWatcherLogger(a.log))
					if err != nil {
						return err
					}
					g.Go(func() error { return watcher.Run(gctx) })
				}
				g.Go(func() error { return srv.Run(gctx, addr) })
				return g.Wait()
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default server.addr)")
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "do not watch the data directory for external changes")
	return cmd
}

func telemetryConfig(a *app, opts *globalOptions) telemetry.Config {
	cfg := telemetry.DefaultConfig()
	cfg.ServiceVersion = version
	cfg.Registerer = a.registry
	switch {
	case a.cfg.Telemetry.OTLPEndpoint != "":
		cfg.TraceExporter = telemetry.ExporterOTLP
		cfg.OTLPEndpoint = a.cfg.Telemetry.OTLPEndpoint
	case a.cfg.Telemetry.Stdout:
		cfg.TraceExporter = telemetry.ExporterStdout
		cfg.Output = opts.errOut
	}
	return cfg
}
