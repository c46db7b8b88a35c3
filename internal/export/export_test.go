// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/jeranaias/rigrun-agent/internal/transcript"
)

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func sampleTranscript() Transcript {
	start := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	return Transcript{
		Session: transcript.SessionInfo{
			ID:           "c0ffee",
			Model:        "llama3",
			SystemPrompt: "You are a career advisor.\nBe brief.",
			StartedAt:    start,
			Exchanges:    3,
		},
		Entries: []transcript.Entry{
			{Seq: 1, Model: "llama3", UserText: "What jobs pay well?", Response: "Engineering.", Outcome: "ok", StartedAt: start, Duration: 1500 * time.Millisecond},
			{Seq: 2, Model: "llama3", UserText: "Which is easiest?", Error: "model not found", Outcome: "model_not_found", StartedAt: start.Add(time.Minute)},
			{Seq: 3, Model: "llama3", UserText: "Summarize.", Response: "Study hard.", Outcome: "ok", StartedAt: start.Add(2 * time.Minute), Duration: 80 * time.Millisecond, Reductions: 2},
		},
	}
}

func testOptions() *Options {
	opts := DefaultOptions()
	opts.Now = func() time.Time { return fixedNow }
	return opts
}

func TestForFormat(t *testing.T) {
	tests := []struct {
		name    string
		wantExt string
		wantErr bool
	}{
		{"markdown", ".md", false},
		{"MD", ".md", false},
		{"json", ".json", false},
		{"html", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exporter, err := ForFormat(tt.name, nil)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantExt, exporter.FileExtension())
		})
	}
}

func TestMarkdownExporter_Export(t *testing.T) {
	data, err := NewMarkdownExporter(testOptions()).Export(sampleTranscript())
	require.NoError(t, err)
	out := string(data)

	require.True(t, strings.HasPrefix(out, "---\n"))
	parts := strings.SplitN(out, "---\n", 3)
	require.Len(t, parts, 3)

	var meta frontMatter
	require.NoError(t, yaml.Unmarshal([]byte(parts[1]), &meta))
	assert.Equal(t, "c0ffee", meta.Session)
	assert.Equal(t, "llama3", meta.Model)
	assert.Equal(t, 3, meta.Exchanges)
	assert.Equal(t, fixedNow.Format(time.RFC3339), meta.Exported)

	assert.Contains(t, out, "# Conversation with llama3")
	assert.Contains(t, out, "> You are a career advisor.\n> Be brief.")
	assert.Contains(t, out, "### 1. User <sub>10:00:00</sub>\n\nWhat jobs pay well?")
	assert.Contains(t, out, "### Assistant\n\nEngineering.")
	assert.Contains(t, out, "<sub>Duration: 1.50s</sub>")
	assert.Contains(t, out, "**Error** (`model_not_found`): model not found")
	assert.Contains(t, out, "<sub>Duration: 80ms | History reductions: 2</sub>")
}

func TestMarkdownExporter_WithoutMetadata(t *testing.T) {
	opts := testOptions()
	opts.IncludeMetadata = false
	opts.IncludeTimestamps = false
	opts.IncludeFailures = false

	data, err := NewMarkdownExporter(opts).Export(sampleTranscript())
	require.NoError(t, err)
	out := string(data)

	assert.False(t, strings.HasPrefix(out, "---"))
	assert.NotContains(t, out, "<sub>")
	assert.NotContains(t, out, "Which is easiest?")
	assert.Contains(t, out, "### 3. User\n\nSummarize.")
}

func TestMarkdownExporter_EmptyTranscript(t *testing.T) {
	tr := sampleTranscript()
	tr.Entries = nil

	data, err := NewMarkdownExporter(testOptions()).Export(tr)
	require.NoError(t, err)
	assert.Contains(t, string(data), "*No exchanges recorded.*")

	_, err = NewMarkdownExporter(nil).Export(Transcript{})
	assert.ErrorIs(t, err, ErrEmptySession)
}

func TestJSONExporter_Export(t *testing.T) {
	data, err := NewJSONExporter(testOptions()).Export(sampleTranscript())
	require.NoError(t, err)

	var doc jsonTranscript
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "c0ffee", doc.Session)
	assert.True(t, fixedNow.Equal(doc.ExportedAt))
	require.Len(t, doc.Exchanges, 3)
	assert.Equal(t, int64(1500), doc.Exchanges[0].DurationMs)
	assert.Equal(t, "model_not_found", doc.Exchanges[1].Outcome)
	assert.Empty(t, doc.Exchanges[1].Assistant)
	assert.Equal(t, 2, doc.Exchanges[2].Reductions)
}

func TestJSONExporter_EmptyExchangesIsArray(t *testing.T) {
	tr := sampleTranscript()
	tr.Entries = nil

	data, err := NewJSONExporter(testOptions()).Export(tr)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"exchanges": []`)
}
