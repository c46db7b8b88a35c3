// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversation turns.
//
// This package defines the core domain types shared by the model client,
// the conversation managers and the agent.
//
// # Key Types
//
//   - Turn: Single conversation entry with a role and text content
//   - Role: Turn role enumeration (user, assistant, system)
//   - Exchange: One completed (or failed) request/response pair, as recorded
//     by a transcript
//
// # Usage
//
//	history := []model.Turn{
//	    model.NewUserTurn("Hello!"),
//	    model.NewAssistantTurn("Hi, how can I help?"),
//	}
//	fmt.Println(history[1].Preview(40))
package model
