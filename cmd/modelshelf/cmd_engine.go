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
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/modelshelf/services/engine"
	"github.com/AleutianAI/modelshelf/services/modelstore"
)

func newCheckCmd(opts *globalOptions) *cobra.Command {
	var vision bool
	cmd := &cobra.Command{
		Use:   "check [id]",
		Short: "Check that a model's files are ready to load",
		Long:  "Check the given model, or the selected one, and print the files a runtime would load.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, func(a *app) error {
				req, err := loadRequest(a, args, vision)
				if err != nil {
					return err
				}
				if opts.jsonOut {
					return printJSON(cmd.OutOrStdout(), req)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%s %s is ready\n", successStyle.Render("✓"), req.ModelID)
				fmt.Fprintf(out, "  model:     %s\n", req.PrimaryPath)
				if req.ProjectorPath != "" {
					fmt.Fprintf(out, "  projector: %s\n", req.ProjectorPath)
				}
				fmt.Fprintf(out, "  context:   %d\n", req.ContextSize)
				fmt.Fprintf(out, "  template:  %s\n", req.Template)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&vision, "vision", false, "require the projector for image input")
	return cmd
}

func newGenerateCmd(opts *globalOptions) *cobra.Command {
	var (
		serverURL string
		system    string
		maxTokens int
		temp      float32
	)
	cmd := &cobra.Command{
		Use:   "generate [--model id] <prompt...>",
		Short: "Generate text with a running llama.cpp server",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			modelID, _ := cmd.Flags().GetString("model")
			return withApp(cmd.Context(), opts, func(a *app) error {
				var ids []string
				if modelID != "" {
					ids = []string{modelID}
				}
				req, err := loadRequest(a, ids, false)
				if err != nil {
					return err
				}

				if serverURL == "" {
					serverURL = a.cfg.Engine.LlamaServerURL
				}
				llama, err := engine.NewLlamaServer(serverURL, a.log)
				if err != nil {
					return err
				}
				session, err := llama.Load(cmd.Context(), req)
				if err != nil {
					return err
				}
				defer session.Close()

				params := engine.DefaultParams()
				if cmd.Flags().Changed("max-tokens") {
					params.MaxTokens = &maxTokens
				}
				if cmd.Flags().Changed("temperature") {
					params.Temperature = &temp
				}
				text, err := session.Generate(cmd.Context(), engine.Prompt{
					System: system,
					User:   strings.Join(args, " "),
				}, params)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), strings.TrimSpace(text))
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.String("model", "", "model id (default: the selected model)")
	f.StringVar(&serverURL, "server", "", "llama.cpp server URL (default engine.llama_server_url)")
	f.StringVar(&system, "system", "", "system prompt")
	f.IntVar(&maxTokens, "max-tokens", 512, "maximum tokens to generate")
	f.Float32Var(&temp, "temperature", 0.8, "sampling temperature")
	return cmd
}

// loadRequest resolves the model from args or the selection and prepares
// its load request.
func loadRequest(a *app, args []string, vision bool) (engine.LoadRequest, error) {
	var id string
	if len(args) > 0 {
		id = args[0]
	} else {
		id = a.store.SelectedID()
	}
	d, ok := a.store.Model(id)
	if !ok {
		return engine.LoadRequest{}, fmt.Errorf("%s: %w", id, modelstore.ErrModelNotFound)
	}
	req, err := engine.PrepareLoad(a.store.Layout(), d, a.cfg.Download.MinArtifactBytes)
	if err != nil {
		return engine.LoadRequest{}, err
	}
	if vision {
		if err := req.RequireVision(d); err != nil {
			return engine.LoadRequest{}, err
		}
	}
	return req, nil
}
