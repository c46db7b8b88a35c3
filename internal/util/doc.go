// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util holds the file and string helpers shared by config, the
// conversation window and the CLI.
//
// AtomicWriteFile backs config saves and transcript exports. TruncateRunes and
// TruncateRunesNoEllipsis count runes, which is what the conversation window
// measures turns in. TruncateWidth counts terminal columns for
// the /history preview.
package util
