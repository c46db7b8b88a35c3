// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package transcript records agent exchanges in a local SQLite database.
//
// A Store holds any number of sessions; each program run begins one Session
// and every exchange that reached the model is appended to it in order.
// Transcripts are write-only from the agent's point of view: they are never
// read back into conversation history.
package transcript
