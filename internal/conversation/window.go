// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package conversation

import (
	"fmt"
	"regexp"
	"sync"

	"github.com/jeranaias/rigrun-agent/internal/model"
	"github.com/jeranaias/rigrun-agent/internal/util"
)

// =============================================================================
// CONFIGURATION
// =============================================================================

const (
	DefaultWindowSize        = 20
	DefaultTruncateThreshold = 2000
	DefaultTruncatedLength   = 500
)

// WindowConfig holds configuration for a SlidingWindow.
type WindowConfig struct {
	// WindowSize is the maximum number of turns kept (default: 20)
	WindowSize int

	// ShouldTruncateResults enables truncating long assistant turns in Reduce
	ShouldTruncateResults bool

	// TruncateThreshold is the rune count above which an assistant turn
	// may be truncated (default: 2000)
	TruncateThreshold int

	// TruncatedLength is the number of runes kept from a truncated turn
	// (default: 500)
	TruncatedLength int
}

// DefaultWindowConfig returns the default window configuration.
func DefaultWindowConfig() WindowConfig {
	return WindowConfig{
		WindowSize:            DefaultWindowSize,
		ShouldTruncateResults: true,
		TruncateThreshold:     DefaultTruncateThreshold,
		TruncatedLength:       DefaultTruncatedLength,
	}
}

// =============================================================================
// SLIDING WINDOW
// =============================================================================

// SlidingWindow keeps at most WindowSize turns, evicting the oldest first.
type SlidingWindow struct {
	mu     sync.Mutex
	config WindowConfig
	turns  []model.Turn
}

// NewSlidingWindow creates an empty window. Non-positive settings fall back
// to their defaults.
func NewSlidingWindow(config WindowConfig) *SlidingWindow {
	if config.WindowSize <= 0 {
		config.WindowSize = DefaultWindowSize
	}
	if config.TruncateThreshold <= 0 {
		config.TruncateThreshold = DefaultTruncateThreshold
	}
	if config.TruncatedLength <= 0 || config.TruncatedLength >= config.TruncateThreshold {
		config.TruncatedLength = min(DefaultTruncatedLength, config.TruncateThreshold/2)
	}
	return &SlidingWindow{
		config: config,
		turns:  make([]model.Turn, 0, config.WindowSize+1),
	}
}

// Config returns the effective window configuration.
func (w *SlidingWindow) Config() WindowConfig {
	return w.config
}

// Append adds turn and evicts from the front until the window fits.
func (w *SlidingWindow) Append(turn model.Turn) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.turns = append(w.turns, turn)
	if over := len(w.turns) - w.config.WindowSize; over > 0 {
		w.evict(over)
	}
}

// Context returns a copy of the window, oldest first.
func (w *SlidingWindow) Context() []model.Turn {
	w.mu.Lock()
	defer w.mu.Unlock()
	return model.CloneTurns(w.turns)
}

// Reduce truncates the oldest oversized assistant turn when truncation is
// enabled, and otherwise evicts the oldest turn.
func (w *SlidingWindow) Reduce() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.turns) == 0 {
		return false
	}

	if w.config.ShouldTruncateResults {
		for i, turn := range w.turns {
			if turn.Role != model.RoleAssistant {
				continue
			}
			if truncated, ok := w.truncate(turn); ok {
				w.turns[i].Content = truncated
				return true
			}
		}
	}

	w.evict(1)
	return true
}

// Restore replaces the window with a copy of turns, keeping only the most
// recent WindowSize of them.
func (w *SlidingWindow) Restore(turns []model.Turn) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if over := len(turns) - w.config.WindowSize; over > 0 {
		turns = turns[over:]
	}
	w.turns = append(w.turns[:0], turns...)
}

// Len returns the number of turns in the window.
func (w *SlidingWindow) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.turns)
}

// evict drops the n oldest turns. Caller must hold mu.
func (w *SlidingWindow) evict(n int) {
	n = min(n, len(w.turns))
	// Shift down so the backing array does not grow without bound.
	copied := copy(w.turns, w.turns[n:])
	clear(w.turns[copied:])
	w.turns = w.turns[:copied]
}

// truncate shortens a turn above the threshold, appending a marker with
// the number of runes removed. A turn that already ends in a marker is left
// alone so repeated reductions make progress by evicting instead.
func (w *SlidingWindow) truncate(turn model.Turn) (string, bool) {
	length := turn.RuneLen()
	if length <= w.config.TruncateThreshold || truncatedPattern.MatchString(turn.Content) {
		return turn.Content, false
	}
	removed := length - w.config.TruncatedLength
	return util.TruncateRunesNoEllipsis(turn.Content, w.config.TruncatedLength) + TruncationMarker(removed), true
}

var truncatedPattern = regexp.MustCompile(`\n\[\.\.\. truncated \d+ characters\]$`)

// TruncationMarker returns the suffix appended to a truncated turn.
func TruncationMarker(removed int) string {
	return fmt.Sprintf("\n[... truncated %d characters]", removed)
}
