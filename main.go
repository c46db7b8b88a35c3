// rigrun-agent - conversational agent for a local Ollama model.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"os"

	"github.com/jeranaias/rigrun-agent/internal/cli"
)

func main() {
	os.Exit(cli.Main(os.Args[1:]))
}
