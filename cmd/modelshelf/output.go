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
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/AleutianAI/modelshelf/cmd/modelshelf/internal/progress"
	"github.com/AleutianAI/modelshelf/services/catalog"
	"github.com/AleutianAI/modelshelf/services/downloader"
	"github.com/AleutianAI/modelshelf/services/library"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// statusText summarizes readiness and the current download state.
func statusText(v library.View) string {
	st := v.Download
	switch {
	case st.IsDownloading:
		return fmt.Sprintf("downloading %.0f%%", st.Progress*100)
	case st.Phase == downloader.PhaseFailed:
		return "failed: " + st.Error
	case v.Readiness.VisionReady:
		return "ready (vision)"
	case v.Readiness.Downloaded:
		return "ready"
	case v.Model.IsDownloadable():
		return "not downloaded"
	default:
		return "missing"
	}
}

func renderViews(w io.Writer, views []library.View) {
	rows := make([][]string, 0, len(views))
	for _, v := range views {
		mark := ""
		if v.Selected {
			mark = "*"
		}
		size := "-"
		if v.Readiness.DiskBytes > 0 {
			size = progress.FormatBytes(v.Readiness.DiskBytes)
		}
		rows = append(rows, []string{
			mark, v.Model.ID, v.Model.DisplayName, string(v.Model.Kind),
			string(v.Model.Source), statusText(v), size,
		})
	}

	t := table.New().
		Border(lipgloss.HiddenBorder()).
		Headers("", "ID", "NAME", "KIND", "SOURCE", "STATUS", "SIZE").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return lipgloss.NewStyle()
		})
	fmt.Fprintln(w, t.Render())
}

func renderView(w io.Writer, v library.View) {
	d := v.Model
	line := func(key, value string) {
		if value == "" {
			return
		}
		fmt.Fprintf(w, "%s %s\n", headerStyle.Render(fmt.Sprintf("%-16s", key+":")), value)
	}
	line("ID", d.ID)
	line("Name", d.DisplayName)
	line("Kind", string(d.Kind))
	line("Source", string(d.Source))
	line("Template", string(d.Template))
	line("Context", fmt.Sprint(d.ContextSize(catalog.DefaultContextSize)))
	line("Primary URL", d.PrimaryURL)
	line("Primary file", d.PrimaryFilename)
	line("Projector URL", d.ProjectorURL)
	line("Projector file", d.ProjectorFilename)
	caps := []string{}
	if d.SupportsVision {
		caps = append(caps, "vision")
	}
	if d.SupportsOCR {
		caps = append(caps, "ocr")
	}
	line("Capabilities", strings.Join(caps, ", "))
	line("Status", statusText(v))
	if v.Readiness.DiskBytes > 0 {
		line("On disk", progress.FormatBytes(v.Readiness.DiskBytes))
	}
	if v.Selected {
		line("Selected", "yes")
	}
}
