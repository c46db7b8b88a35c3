// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the rigrun-agent programs and their shared runtime.
//
// # Programs
//
//   - hello: one stateless request, "say hello World"
//   - advisor: three career questions over a sliding-window history
//   - chat: interactive REPL with line editing and input history
//
// Supporting commands inspect the environment: status, models, config and
// transcript.
//
// # Runtime
//
// NewRuntime turns a config.Config into a ready agent: it builds the Ollama
// client, picks the conversation manager, opens the transcript when one is
// configured and starts the Prometheus listener when metrics.listen is set.
// Runtime.Ask streams tokens to a terminal-aware Printer.
//
// # Exit codes
//
// Errors are printed with a hint and mapped to exit codes by category:
//
//	0   success
//	1   general error
//	2   usage or empty input
//	3   configuration
//	5   Ollama unreachable
//	7   model or transcript session not found
//	8   timeout
//	130 interrupted
package cli
