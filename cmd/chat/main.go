// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Command chat starts an interactive chat session with conversation history.
//
// Usage:
//
//	chat [--config PATH] [--model NAME] [--host URL]
package main

import "github.com/jeranaias/rigrun-agent/internal/cli"

func main() {
	cli.Run(cli.RunChat)
}
