// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package catalog defines the model descriptor data model and the closed set
// of built-in models.
//
// # Overview
//
// A Descriptor names one installable model: a primary weights file, and for
// vision models a secondary projector file. BuiltIns returns the defaults the
// store reconciles persisted entries against. Layout maps descriptors to
// files on disk and answers readiness questions by looking at the
// filesystem; readiness is never cached.
//
// Nothing in this package performs network I/O.
package catalog
