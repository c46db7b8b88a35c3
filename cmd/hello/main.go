// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Command hello asks the model to say hello once, without conversation history.
//
// Usage:
//
//	hello [--config PATH] [--model NAME] [--host URL]
package main

import "github.com/jeranaias/rigrun-agent/internal/cli"

func main() {
	cli.Run(cli.RunHello)
}
