// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"time"
)

// =============================================================================
// JSON EXPORTER
// =============================================================================

// JSONExporter exports transcripts as indented JSON.
type JSONExporter struct {
	options *Options
}

// NewJSONExporter creates a new JSON exporter.
func NewJSONExporter(opts *Options) *JSONExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &JSONExporter{options: opts}
}

type jsonTranscript struct {
	Session      string         `json:"session"`
	Model        string         `json:"model"`
	SystemPrompt string         `json:"system_prompt,omitempty"`
	StartedAt    time.Time      `json:"started_at"`
	ExportedAt   time.Time      `json:"exported_at"`
	Exchanges    []jsonExchange `json:"exchanges"`
}

type jsonExchange struct {
	Seq        int       `json:"seq"`
	Model      string    `json:"model"`
	User       string    `json:"user"`
	Assistant  string    `json:"assistant,omitempty"`
	Error      string    `json:"error,omitempty"`
	Outcome    string    `json:"outcome"`
	StartedAt  time.Time `json:"started_at,omitzero"`
	DurationMs int64     `json:"duration_ms"`
	Reductions int       `json:"reductions,omitempty"`
}

// Export converts a transcript to JSON.
func (e *JSONExporter) Export(t Transcript) ([]byte, error) {
	if t.Session.ID == "" {
		return nil, ErrEmptySession
	}

	out := jsonTranscript{
		Session:      t.Session.ID,
		Model:        t.Session.Model,
		SystemPrompt: t.Session.SystemPrompt,
		StartedAt:    t.Session.StartedAt,
		ExportedAt:   e.options.now(),
		Exchanges:    []jsonExchange{},
	}
	for _, entry := range filterEntries(t.Entries, e.options) {
		out.Exchanges = append(out.Exchanges, jsonExchange{
			Seq:        entry.Seq,
			Model:      entry.Model,
			User:       entry.UserText,
			Assistant:  entry.Response,
			Error:      entry.Error,
			Outcome:    entry.Outcome,
			StartedAt:  entry.StartedAt,
			DurationMs: entry.Duration.Milliseconds(),
			Reductions: entry.Reductions,
		})
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// FileExtension returns the file extension for JSON.
func (e *JSONExporter) FileExtension() string {
	return ".json"
}
