// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package conversation

import (
	"github.com/jeranaias/rigrun-agent/internal/model"
)

// Manager maintains the turns used as context for the next request.
// Implementations must be safe for concurrent use.
type Manager interface {
	// Append adds a turn to the end of history.
	Append(turn model.Turn)

	// Context returns a copy of history, oldest first.
	Context() []model.Turn

	// Reduce shrinks history by one step after the backend reported a
	// context overflow. It returns false when there is nothing left to shrink.
	Reduce() bool

	// Restore replaces history with turns, typically a snapshot taken
	// before a failed exchange.
	Restore(turns []model.Turn)

	// Len returns the number of turns held.
	Len() int
}

// Null is a Manager that retains nothing.
type Null struct{}

// Append discards the turn.
func (Null) Append(model.Turn) {}

// Context always returns an empty history.
func (Null) Context() []model.Turn { return []model.Turn{} }

// Reduce always reports there is nothing to reduce.
func (Null) Reduce() bool { return false }

// Restore discards the turns.
func (Null) Restore([]model.Turn) {}

// Len always returns zero.
func (Null) Len() int { return 0 }

var (
	_ Manager = Null{}
	_ Manager = (*SlidingWindow)(nil)
)
