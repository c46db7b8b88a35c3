// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package agent answers user text with a model, keeping an optional bounded
// conversation history between calls.
//
// An Agent holds a ModelClient, an optional conversation.Manager and a fixed
// system prompt. Each call sends the system prompt, the retained history and
// the new user text; a successful call adds both the user and assistant turns
// to history, a failed call leaves history exactly as it was.
package agent
