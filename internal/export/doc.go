// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export renders recorded transcripts as Markdown or JSON.
//
// # Usage
//
//	exporter, err := export.ForFormat("markdown", export.DefaultOptions())
//	data, err := exporter.Export(export.Transcript{Session: info, Entries: entries})
package export
