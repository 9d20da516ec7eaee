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
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var (
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#E74C3C")).Bold(true)
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#2CD7C7")).Bold(true)
	headerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#2C4A54")).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#7F8C8D"))
)

const version = "1.0.0"

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	configPath string
	dataDir    string
	logLevel   string
	quiet      bool
	jsonOut    bool

	out    io.Writer
	errOut io.Writer
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	opts := &globalOptions{out: out, errOut: errOut}

	root := &cobra.Command{
		Use:   "modelshelf",
		Short: "Manage local GGUF models",
		Long: `modelshelf keeps a catalog of built-in and custom GGUF models,
downloads their artifacts, and tracks which model is selected.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.SetErr(errOut)

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "config file (default ~/.modelshelf/config.yaml)")
	flags.StringVar(&opts.dataDir, "data-dir", "", "override the data directory")
	flags.StringVar(&opts.logLevel, "log-level", "", "debug, info, warn or error")
	flags.BoolVarP(&opts.quiet, "quiet", "q", false, "suppress logs and progress output")
	flags.BoolVar(&opts.jsonOut, "json", false, "print machine-readable JSON")

	root.AddCommand(
		newListCmd(opts),
		newShowCmd(opts),
		newSelectCmd(opts),
		newAddCmd(opts),
		newImportCmd(opts),
		newImportProjectorCmd(opts),
		newRemoveCmd(opts),
		newDeleteFilesCmd(opts),
		newPullCmd(opts),
		newServeCmd(opts),
		newCheckCmd(opts),
		newGenerateCmd(opts),
	)
	return root
}
