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
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/modelshelf/services/catalog"
)

func newListCmd(opts *globalOptions) *cobra.Command {
	var query string
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List catalog models with their download status",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, func(a *app) error {
				views := a.lib.Views(query)
				if opts.jsonOut {
					return printJSON(cmd.OutOrStdout(), views)
				}
				if len(views) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), mutedStyle.Render("No models match."))
					return nil
				}
				renderViews(cmd.OutOrStdout(), views)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&query, "query", "", "case-insensitive name filter")
	return cmd
}

func newShowCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, func(a *app) error {
				v, err := a.lib.View(args[0])
				if err != nil {
					return err
				}
				if opts.jsonOut {
					return printJSON(cmd.OutOrStdout(), v)
				}
				renderView(cmd.OutOrStdout(), v)
				return nil
			})
		},
	}
}

func newSelectCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "select <id>",
		Short: "Select the active model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, func(a *app) error {
				if err := a.store.Select(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s Selected %s\n", successStyle.Render("✓"), args[0])
				return nil
			})
		},
	}
}

func newAddCmd(opts *globalOptions) *cobra.Command {
	var (
		in          catalog.CustomInput
		interactive bool
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add or edit a custom model",
		Long: `Add a custom model from a direct .gguf URL, or edit one with --id.

Vision models are accepted only when their id is listed in
trusted_vision_ids; pass that id with --id.`,
		Example: `  modelshelf add --name "Phi 3 Mini" --url https://example.com/phi-3-mini.Q4_K_M.gguf
  modelshelf add --interactive`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, func(a *app) error {
				if in.ExistingID != "" {
					if existing, ok := a.store.Model(in.ExistingID); ok {
						prefill(&in, existing, cmd)
					}
				}
				if interactive || (in.PrimaryURL == "" && isatty.IsTerminal(os.Stdin.Fd())) {
					if err := runCustomForm(&in); err != nil {
						return err
					}
				}
				d, err := a.lib.SaveCustom(cmd.Context(), in)
				if err != nil {
					return err
				}
				if opts.jsonOut {
					return printJSON(cmd.OutOrStdout(), d)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s Saved %s (%s)\n", successStyle.Render("✓"), d.DisplayName, d.ID)
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&in.ExistingID, "id", "", "id to edit, or the id for a new model")
	f.StringVar(&in.Name, "name", "", "display name")
	f.StringVar(&in.PrimaryURL, "url", "", "direct URL of the .gguf model file")
	f.BoolVar(&in.SupportsVision, "vision", false, "model accepts images")
	f.StringVar(&in.ProjectorURL, "projector-url", "", "URL of the mmproj .gguf (vision only)")
	f.BoolVar(&in.SupportsOCR, "ocr", false, "model supports OCR")
	f.IntVar(&in.ContextSize, "context", 0, "context size in tokens (default 4096)")
	f.BoolVarP(&interactive, "interactive", "i", false, "fill in the fields with a form")
	return cmd
}

// prefill copies fields of an existing descriptor into in unless the
// matching flag was given.
func prefill(in *catalog.CustomInput, d catalog.Descriptor, cmd *cobra.Command) {
	changed := cmd.Flags().Changed
	if !changed("name") {
		in.Name = d.DisplayName
	}
	if !changed("url") {
		in.PrimaryURL = d.PrimaryURL
	}
	if !changed("vision") {
		in.SupportsVision = d.SupportsVision
	}
	if !changed("projector-url") {
		in.ProjectorURL = d.ProjectorURL
	}
	if !changed("ocr") {
		in.SupportsOCR = d.SupportsOCR
	}
	if !changed("context") {
		in.ContextSize = d.DefaultContext
	}
}

func newImportCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <path>",
		Short: "Import a local .gguf file as a new model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, func(a *app) error {
				d, err := a.lib.ImportLocalModel(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if opts.jsonOut {
					return printJSON(cmd.OutOrStdout(), d)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s Imported %s as %s\n", successStyle.Render("✓"), d.DisplayName, d.ID)
				return nil
			})
		},
	}
}

func newImportProjectorCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import-projector <id> <path>",
		Short: "Attach a local mmproj .gguf file to a model",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, func(a *app) error {
				d, err := a.lib.ImportProjector(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s Projector %s attached to %s\n",
					successStyle.Render("✓"), d.ProjectorFilename, d.ID)
				return nil
			})
		},
	}
}

func newRemoveCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete a model's files, and its entry when it is custom",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, func(a *app) error {
				removed, err := a.lib.RemoveModel(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				msg := "Deleted files of " + args[0]
				if removed {
					msg = "Removed " + args[0]
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", successStyle.Render("✓"), msg)
				return nil
			})
		},
	}
}

func newDeleteFilesCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete-files <id>",
		Short: "Delete a model's downloaded files and keep its entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, func(a *app) error {
				if err := a.lib.DeleteFiles(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s Deleted files of %s\n", successStyle.Render("✓"), args[0])
				return nil
			})
		},
	}
}
