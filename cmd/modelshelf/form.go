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
	"errors"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/AleutianAI/modelshelf/services/catalog"
)

// customForm collects a CustomInput interactively. Fields already set in
// in are used as initial values.
func customForm(in *catalog.CustomInput) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Model name").
				Value(&in.Name).
				Validate(requireText),
			huh.NewInput().
				Title("Model URL").
				Description("Direct link to a .gguf file").
				Value(&in.PrimaryURL).
				Validate(validateURL),
		),
		huh.NewGroup(
			huh.NewConfirm().
				Title("Supports vision?").
				Value(&in.SupportsVision),
			huh.NewConfirm().
				Title("Supports OCR?").
				Value(&in.SupportsOCR),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Projector URL").
				Description("mmproj .gguf, leave empty to import one later").
				Value(&in.ProjectorURL).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return nil
					}
					return validateURL(s)
				}),
		).WithHideFunc(func() bool { return !in.SupportsVision }),
	)
}

// contextField wraps the numeric context size for a text input.
func contextField(in *catalog.CustomInput) (*huh.Form, func() error) {
	text := strconv.Itoa(in.ContextSize)
	if in.ContextSize <= 0 {
		text = strconv.Itoa(catalog.DefaultContextSize)
	}
	form := huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title("Context size").
			Value(&text).
			Validate(func(s string) error {
				_, err := parseContext(s)
				return err
			}),
	))
	apply := func() error {
		n, err := parseContext(text)
		if err != nil {
			return err
		}
		in.ContextSize = n
		return nil
	}
	return form, apply
}

func runCustomForm(in *catalog.CustomInput) error {
	if err := customForm(in).Run(); err != nil {
		return err
	}
	form, apply := contextField(in)
	if err := form.Run(); err != nil {
		return err
	}
	return apply()
}

func requireText(s string) error {
	if strings.TrimSpace(s) == "" {
		return catalog.ErrNameRequired
	}
	return nil
}

func validateURL(s string) error {
	s = strings.TrimSpace(s)
	lower := strings.ToLower(s)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return catalog.ErrInvalidURL
	}
	_, err := catalog.FilenameFromURL(s)
	return err
}

var errBadContext = errors.New("context size must be a positive integer")

func parseContext(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 {
		return 0, errBadContext
	}
	return n, nil
}
