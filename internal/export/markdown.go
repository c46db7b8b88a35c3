// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jeranaias/rigrun-agent/internal/transcript"
)

// =============================================================================
// MARKDOWN EXPORTER
// =============================================================================

// MarkdownExporter exports transcripts to Markdown with YAML front matter.
type MarkdownExporter struct {
	options *Options
}

// NewMarkdownExporter creates a new Markdown exporter.
func NewMarkdownExporter(opts *Options) *MarkdownExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &MarkdownExporter{options: opts}
}

// frontMatter is the metadata block at the top of a Markdown export.
type frontMatter struct {
	Session   string `yaml:"session"`
	Model     string `yaml:"model"`
	Date      string `yaml:"date"`
	Exchanges int    `yaml:"exchanges"`
	Exported  string `yaml:"exported"`
	Generator string `yaml:"generator"`
}

// Export converts a transcript to Markdown.
func (e *MarkdownExporter) Export(t Transcript) ([]byte, error) {
	if t.Session.ID == "" {
		return nil, ErrEmptySession
	}
	entries := filterEntries(t.Entries, e.options)

	var sb strings.Builder

	if e.options.IncludeMetadata {
		meta, err := yaml.Marshal(frontMatter{
			Session:   t.Session.ID,
			Model:     t.Session.Model,
			Date:      t.Session.StartedAt.Format(time.RFC3339),
			Exchanges: len(entries),
			Exported:  e.options.now().Format(time.RFC3339),
			Generator: "rigrun-agent",
		})
		if err != nil {
			return nil, fmt.Errorf("failed to encode front matter: %w", err)
		}
		sb.WriteString("---\n")
		sb.Write(meta)
		sb.WriteString("---\n\n")
	}

	fmt.Fprintf(&sb, "# Conversation with %s\n\n", escapeMarkdown(t.Session.Model))

	if e.options.IncludeMetadata {
		fmt.Fprintf(&sb, "- **Started**: %s\n", formatTimestamp(t.Session.StartedAt))
		fmt.Fprintf(&sb, "- **Exchanges**: %d\n", len(entries))
		sb.WriteString("\n")
	}

	if t.Session.SystemPrompt != "" {
		sb.WriteString("## System Prompt\n\n")
		sb.WriteString(quote(t.Session.SystemPrompt))
		sb.WriteString("\n\n")
	}

	sb.WriteString("## Conversation\n\n")
	if len(entries) == 0 {
		sb.WriteString("*No exchanges recorded.*\n")
	}

	for i, entry := range entries {
		if i > 0 {
			sb.WriteString("---\n\n")
		}
		e.writeEntry(&sb, entry)
	}

	return []byte(sb.String()), nil
}

func (e *MarkdownExporter) writeEntry(sb *strings.Builder, entry transcript.Entry) {
	heading := fmt.Sprintf("### %d. User", entry.Seq)
	if e.options.IncludeTimestamps {
		heading += fmt.Sprintf(" <sub>%s</sub>", formatShortTimestamp(entry.StartedAt))
	}
	sb.WriteString(heading + "\n\n")
	sb.WriteString(strings.TrimSpace(entry.UserText))
	sb.WriteString("\n\n")

	if entry.Error != "" {
		fmt.Fprintf(sb, "**Error** (`%s`): %s\n\n", entry.Outcome, entry.Error)
		return
	}

	sb.WriteString("### Assistant\n\n")
	sb.WriteString(strings.TrimSpace(entry.Response))
	sb.WriteString("\n\n")

	if e.options.IncludeMetadata {
		if stats := formatStats(entry); stats != "" {
			sb.WriteString(stats)
			sb.WriteString("\n\n")
		}
	}
}

// FileExtension returns the file extension for Markdown.
func (e *MarkdownExporter) FileExtension() string {
	return ".md"
}

// =============================================================================
// FORMATTING HELPERS
// =============================================================================

// formatStats formats the duration and reduction count of an exchange.
func formatStats(entry transcript.Entry) string {
	var parts []string
	if entry.Duration > 0 {
		parts = append(parts, "Duration: "+formatDuration(entry.Duration))
	}
	if entry.Reductions > 0 {
		parts = append(parts, fmt.Sprintf("History reductions: %d", entry.Reductions))
	}
	if len(parts) == 0 {
		return ""
	}
	return fmt.Sprintf("<sub>%s</sub>", strings.Join(parts, " | "))
}

// quote renders text as a Markdown blockquote.
func quote(text string) string {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight("> "+line, " ")
	}
	return strings.Join(lines, "\n")
}

// escapeMarkdown escapes characters that would break formatting in headings.
func escapeMarkdown(s string) string {
	s = strings.ReplaceAll(s, "#", "\\#")
	s = strings.ReplaceAll(s, "*", "\\*")
	s = strings.ReplaceAll(s, "_", "\\_")
	s = strings.ReplaceAll(s, "[", "\\[")
	s = strings.ReplaceAll(s, "]", "\\]")
	return s
}
