// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package conversation keeps the bounded history an agent sends to the model.
//
// SlidingWindow retains the most recent turns up to a fixed count and, when
// the backend rejects a request as too large, shrinks history one step at a
// time: oversized assistant turns are truncated first, then whole turns are
// evicted oldest-first. Null keeps nothing.
package conversation
