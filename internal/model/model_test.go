// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"errors"
	"testing"
)

// =============================================================================
// ROLE TESTS
// =============================================================================

func TestRole_Valid(t *testing.T) {
	for _, r := range []Role{RoleUser, RoleAssistant, RoleSystem} {
		if !r.Valid() {
			t.Errorf("%q should be valid", r)
		}
	}
	for _, r := range []Role{"tool", "User", ""} {
		if r.Valid() {
			t.Errorf("%q should not be valid", r)
		}
	}
}

func TestRole_DisplayName(t *testing.T) {
	if RoleUser.DisplayName() != "You" {
		t.Errorf("DisplayName() = %q, want 'You'", RoleUser.DisplayName())
	}
	if Role("other").DisplayName() != "other" {
		t.Errorf("unknown role should display as itself")
	}
}

// =============================================================================
// TURN TESTS
// =============================================================================

func TestNewTurns(t *testing.T) {
	if got := NewUserTurn("hi"); got.Role != RoleUser || got.Content != "hi" {
		t.Errorf("NewUserTurn = %+v", got)
	}
	if got := NewAssistantTurn("hello"); got.Role != RoleAssistant {
		t.Errorf("NewAssistantTurn role = %q", got.Role)
	}
	if got := NewSystemTurn("be nice"); got.Role != RoleSystem {
		t.Errorf("NewSystemTurn role = %q", got.Role)
	}
}

func TestTurn_RuneLen(t *testing.T) {
	turn := NewUserTurn("héllo")
	if turn.RuneLen() != 5 {
		t.Errorf("RuneLen() = %d, want 5", turn.RuneLen())
	}
}

func TestTurn_Preview(t *testing.T) {
	tests := []struct {
		name    string
		content string
		width   int
		want    string
	}{
		{"fits", "short", 10, "short"},
		{"flattens newlines", "a\nb\tc", 10, "a b c"},
		{"truncates", "abcdefghij", 6, "abc..."},
		{"wide chars", "日本語テキスト", 7, "日本..."},
		{"zero width", "anything", 0, ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := NewUserTurn(tc.content).Preview(tc.width)
			if got != tc.want {
				t.Errorf("Preview(%d) = %q, want %q", tc.width, got, tc.want)
			}
		})
	}
}

func TestCloneTurns_Independent(t *testing.T) {
	orig := []Turn{NewUserTurn("a"), NewAssistantTurn("b")}
	clone := CloneTurns(orig)
	clone[0].Content = "changed"

	if orig[0].Content != "a" {
		t.Error("CloneTurns should not share backing storage")
	}
	if got := CloneTurns(nil); got == nil || len(got) != 0 {
		t.Errorf("CloneTurns(nil) = %v, want empty non-nil", got)
	}
}

// =============================================================================
// EXCHANGE TESTS
// =============================================================================

func TestExchange_ErrorText(t *testing.T) {
	ok := Exchange{Response: "fine"}
	if !ok.Succeeded() || ok.ErrorText() != "" {
		t.Errorf("successful exchange reported error %q", ok.ErrorText())
	}

	failed := Exchange{Err: errors.New("boom")}
	if failed.Succeeded() || failed.ErrorText() != "boom" {
		t.Errorf("ErrorText() = %q, want 'boom'", failed.ErrorText())
	}
}
