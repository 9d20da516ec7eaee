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
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/modelshelf/cmd/modelshelf/internal/progress"
	"github.com/AleutianAI/modelshelf/pkg/events"
	"github.com/AleutianAI/modelshelf/services/downloader"
	"github.com/AleutianAI/modelshelf/services/library"
)

// errNoModels is returned by pull when nothing was requested.
var errNoModels = errors.New("no models given; pass ids or --missing")

func newPullCmd(opts *globalOptions) *cobra.Command {
	var missing, force bool
	cmd := &cobra.Command{
		Use:   "pull [id...]",
		Short: "Download model artifacts",
		Long: `Download the primary file and, for vision models, the projector.

Several ids download in parallel up to download.max_parallel. Ctrl-C
cancels every download and removes partial files.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return withApp(ctx, opts, func(a *app) error {
				ids, err := pullTargets(a, args, missing, force)
				if err != nil {
					return err
				}
				renderer := progress.New(cmd.OutOrStdout(), opts.quiet || opts.jsonOut)
				if len(ids) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), mutedStyle.Render("Everything is already downloaded."))
					return nil
				}
				return pullAll(ctx, a, ids, renderer)
			})
		},
	}
	cmd.Flags().BoolVar(&missing, "missing", false, "download every downloadable model that is not on disk")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "download again even when the files exist")
	return cmd
}

// pullTargets resolves args and --missing into the ids to download.
func pullTargets(a *app, args []string, missing, force bool) ([]string, error) {
	if len(args) == 0 && !missing {
		return nil, errNoModels
	}

	var views []library.View
	if missing {
		views = a.lib.Views("")
	}
	for _, id := range args {
		v, err := a.lib.View(id)
		if err != nil {
			return nil, err
		}
		if !v.Model.IsDownloadable() {
			return nil, fmt.Errorf("%s: %w", id, library.ErrNotDownloadable)
		}
		views = append(views, v)
	}

	seen := make(map[string]struct{}, len(views))
	var ids []string
	for _, v := range views {
		if _, dup := seen[v.Model.ID]; dup || !v.Model.IsDownloadable() {
			continue
		}
		seen[v.Model.ID] = struct{}{}
		if !force && onDisk(v) {
			continue
		}
		ids = append(ids, v.Model.ID)
	}
	return ids, nil
}

// onDisk reports whether every artifact a download would fetch is present.
func onDisk(v library.View) bool {
	if !v.Readiness.Downloaded {
		return false
	}
	return !v.Model.HasProjector() || v.Readiness.VisionReady
}

// pullAll downloads ids with bounded parallelism and reports each through r.
// Every id runs to completion; the returned error joins the failures.
func pullAll(ctx context.Context, a *app, ids []string, r progress.Renderer) error {
	sub := a.emitter.Subscribe(func(ev *events.Event) {
		st, ok := ev.Data.(downloader.State)
		if !ok {
			return
		}
		r.Render(ev.ModelID, string(st.Artifact), st.Progress, st.DownloadedBytes, st.TotalBytes)
	}, events.TypeDownloadProgress)
	defer a.emitter.Unsubscribe(sub)

	var (
		mu   sync.Mutex
		errs []error
		g    errgroup.Group
	)
	g.SetLimit(a.cfg.Download.MaxParallel)
	for _, id := range ids {
		g.Go(func() error {
			err := a.lib.Download(ctx, id)
			switch {
			case err == nil:
				r.Complete(id, true, "downloaded")
				return nil
			case ctx.Err() != nil:
				r.Complete(id, false, "canceled")
			default:
				r.Complete(id, false, err.Error())
			}
			mu.Lock()
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}
