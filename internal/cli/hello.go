// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"

	"github.com/jeranaias/rigrun-agent/internal/config"
)

// HelloPrompt is the single prompt sent by the hello program.
const HelloPrompt = "say hello World"

// RunHello asks a stateless agent with no system prompt to say hello and
// prints the reply.
func RunHello(opts GlobalOptions) int {
	profile := Profile{
		Program: "hello",
		Manager: config.ManagerNone,
	}
	return runProgram(opts, profile, func(ctx context.Context, rt *Runtime) error {
		_, err := rt.Ask(ctx, HelloPrompt)
		return err
	})
}
