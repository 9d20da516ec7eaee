// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package catalog

import "errors"

var (
	// ErrNameRequired indicates a custom model was submitted without a name.
	ErrNameRequired = errors.New("catalog: model name is required")

	// ErrInvalidURL indicates a URL that is not an absolute http(s) URL.
	ErrInvalidURL = errors.New("catalog: URL must be an absolute http or https URL")

	// ErrNoFilename indicates a URL whose path has no usable last segment.
	ErrNoFilename = errors.New("catalog: URL has no filename")

	// ErrNotGGUF indicates an import of a file without the .gguf extension.
	ErrNotGGUF = errors.New("catalog: only .gguf files can be imported")

	// ErrInvalidDescriptor wraps validation failures from Descriptor.Validate.
	ErrInvalidDescriptor = errors.New("catalog: invalid descriptor")
)
