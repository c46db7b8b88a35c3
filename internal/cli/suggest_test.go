// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import "testing"

func TestSuggestCommand(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"helo", "hello"},
		{"advsior", "advisor"},
		{"chta", "chat"},
		{"modles", "models"},
		{"transcrpt", "transcript"},
		{"STATUS", ""},
		{"hello", ""},
		{"x", ""},
		{"kubernetes", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := SuggestCommand(tt.input); got != tt.want {
				t.Errorf("SuggestCommand(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSuggestSlashCommand(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"/histroy", "/history"},
		{"/rest", "/reset"},
		{"/qiut", "/quit"},
		{"/x", ""},
		{"/bogus", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := SuggestSlashCommand(tt.input); got != tt.want {
				t.Errorf("SuggestSlashCommand(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestLevenshteinDistance(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "abc", 3},
		{"abc", "", 3},
		{"kitten", "sitting", 3},
		{"chat", "chat", 0},
		{"chat", "chta", 2},
	}
	for _, tt := range tests {
		if got := levenshteinDistance(tt.a, tt.b); got != tt.want {
			t.Errorf("levenshteinDistance(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}
