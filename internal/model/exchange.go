// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "time"

// Exchange is one call to an agent: the user text, the model's reply (empty
// when the call failed) and timing.
type Exchange struct {
	Model     string
	UserText  string
	Response  string
	Err       error
	StartedAt time.Time
	Duration  time.Duration

	// Reductions counts how many times history was reduced after the
	// backend reported a context overflow.
	Reductions int
}

// Succeeded returns true if the exchange produced a response.
func (e Exchange) Succeeded() bool {
	return e.Err == nil
}

// ErrorText returns the error message, or "" on success.
func (e Exchange) ErrorText() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}
