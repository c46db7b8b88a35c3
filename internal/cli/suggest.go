// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// suggest.go - "Did you mean" suggestions for mistyped commands.
package cli

import (
	"strings"
)

// topLevelCommands lists the commands and aliases Main accepts.
var topLevelCommands = []string{
	"hello", "advisor", "chat", "status", "models", "config",
	"transcript", "transcripts", "version", "help",
}

// slashCommands lists the commands accepted inside chat.
var slashCommands = []string{
	"/help", "/history", "/reset", "/clear", "/model", "/quit", "/exit",
}

// SuggestCommand returns the top-level command closest to input, or "".
func SuggestCommand(input string) string {
	return suggest(strings.ToLower(input), topLevelCommands)
}

// SuggestSlashCommand returns the chat command closest to input, or "".
func SuggestSlashCommand(input string) string {
	return suggest(strings.ToLower(input), slashCommands)
}

// suggest picks the candidate with the smallest edit distance, allowing
// one edit for inputs up to three characters, two up to eight and three
// beyond. An exact match yields "".
func suggest(input string, candidates []string) string {
	if len(strings.TrimPrefix(input, "/")) < 2 {
		return ""
	}

	maxDistance := 1
	if len(input) >= 4 {
		maxDistance = 2
	}
	if len(input) > 8 {
		maxDistance = 3
	}

	best, bestDistance := "", maxDistance+1
	for _, candidate := range candidates {
		d := levenshteinDistance(input, candidate)
		if d == 0 {
			return ""
		}
		if d < bestDistance {
			best, bestDistance = candidate, d
		}
	}
	return best
}

// levenshteinDistance is the number of single-byte insertions, deletions
// or substitutions turning s1 into s2.
func levenshteinDistance(s1, s2 string) int {
	if len(s1) == 0 {
		return len(s2)
	}
	if len(s2) == 0 {
		return len(s1)
	}

	prev := make([]int, len(s2)+1)
	curr := make([]int, len(s2)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(s1); i++ {
		curr[0] = i
		for j := 1; j <= len(s2); j++ {
			cost := 1
			if s1[i-1] == s2[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(s2)]
}
