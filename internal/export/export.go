// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jeranaias/rigrun-agent/internal/transcript"
)

// =============================================================================
// EXPORT INTERFACE
// =============================================================================

// Transcript is one recorded session with its exchanges in order.
type Transcript struct {
	Session transcript.SessionInfo
	Entries []transcript.Entry
}

// Exporter converts a transcript to a file format.
type Exporter interface {
	// Export returns the encoded transcript.
	Export(t Transcript) ([]byte, error)

	// FileExtension returns the file extension, including the dot.
	FileExtension() string
}

// ErrEmptySession is returned when a session has no id.
var ErrEmptySession = errors.New("transcript has no session")

// =============================================================================
// EXPORT OPTIONS
// =============================================================================

// Options configures export behavior.
type Options struct {
	// IncludeMetadata adds a front-matter block and per-exchange stats.
	IncludeMetadata bool

	// IncludeTimestamps adds a timestamp to each exchange heading.
	IncludeTimestamps bool

	// IncludeFailures keeps exchanges that ended in an error.
	IncludeFailures bool

	// Now stamps the export; time.Now when nil.
	Now func() time.Time
}

// DefaultOptions returns default export options.
func DefaultOptions() *Options {
	return &Options{
		IncludeMetadata:   true,
		IncludeTimestamps: true,
		IncludeFailures:   true,
	}
}

func (o *Options) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// Formats lists the names accepted by ForFormat.
var Formats = []string{"markdown", "json"}

// ForFormat returns the exporter for a format name ("markdown", "md" or
// "json").
func ForFormat(name string, opts *Options) (Exporter, error) {
	switch strings.ToLower(name) {
	case "markdown", "md":
		return NewMarkdownExporter(opts), nil
	case "json":
		return NewJSONExporter(opts), nil
	default:
		return nil, fmt.Errorf("unknown export format %q (want one of %s)", name, strings.Join(Formats, ", "))
	}
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// filterEntries drops failed exchanges unless opts keeps them.
func filterEntries(entries []transcript.Entry, opts *Options) []transcript.Entry {
	if opts.IncludeFailures {
		return entries
	}
	kept := make([]transcript.Entry, 0, len(entries))
	for _, e := range entries {
		if e.Error == "" {
			kept = append(kept, e)
		}
	}
	return kept
}

// formatDuration formats a duration for display.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
	return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
}

// formatTimestamp formats a timestamp for display.
func formatTimestamp(t time.Time) string {
	return t.Format("2006-01-02 15:04:05")
}

// formatShortTimestamp formats a timestamp for inline display.
func formatShortTimestamp(t time.Time) string {
	return t.Format("15:04:05")
}
