// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jeranaias/rigrun-agent/internal/metrics"
	"github.com/jeranaias/rigrun-agent/internal/model"
)

// =============================================================================
// CHAT RESPONSE TESTS
// =============================================================================

func TestChatResponse_TokensPerSecond(t *testing.T) {
	tests := []struct {
		name         string
		evalCount    int
		evalDuration int64
		want         float64
	}{
		{"normal", 100, int64(time.Second), 100.0},
		{"zero duration", 100, 0, 0.0},
		{"fast", 1000, int64(100 * time.Millisecond), 10000.0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp := &ChatResponse{
				EvalCount:    tc.evalCount,
				EvalDuration: tc.evalDuration,
			}

			got := resp.TokensPerSecond()

			// Allow small floating point differences
			if tc.want != 0 && (got < tc.want*0.99 || got > tc.want*1.01) {
				t.Errorf("TokensPerSecond() = %f, want %f", got, tc.want)
			}
			if tc.want == 0 && got != 0 {
				t.Errorf("TokensPerSecond() = %f, want 0", got)
			}
		})
	}
}

func TestChatResponse_TotalTime(t *testing.T) {
	resp := &ChatResponse{TotalDuration: int64(2 * time.Second)}

	if total := resp.TotalTime(); total != 2*time.Second {
		t.Errorf("TotalTime() = %v, want 2s", total)
	}
}

func TestModelInfo_FormatSize(t *testing.T) {
	tests := []struct {
		size int64
		want string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1024, "1.0 KB"},
		{1024 * 1024, "1.0 MB"},
		{2 * 1024 * 1024 * 1024, "2.0 GB"},
	}

	for _, tc := range tests {
		m := &ModelInfo{Size: tc.size}
		if got := m.FormatSize(); got != tc.want {
			t.Errorf("FormatSize(%d) = %q, want %q", tc.size, got, tc.want)
		}
	}
}

// =============================================================================
// ERROR TESTS
// =============================================================================

func TestClientError_IsMatchesSentinelByType(t *testing.T) {
	err := &ClientError{Type: ErrTypeModelNotFound, Message: "model foo not found"}

	if !errors.Is(err, ErrModelNotFound) {
		t.Error("expected detailed error to match ErrModelNotFound")
	}
	if errors.Is(err, ErrConnection) {
		t.Error("model-not-found error must not match ErrConnection")
	}

	wrapped := errors.Join(errors.New("context"), err)
	if !IsModelNotFound(wrapped) {
		t.Error("expected wrapped error to match ErrModelNotFound")
	}
}

func TestClientError_Unwrap(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := &ClientError{Type: ErrTypeConnection, Message: "cannot reach Ollama", Cause: cause}

	if !errors.Is(err, cause) {
		t.Error("expected Unwrap to expose the cause")
	}
	if got := err.Error(); got != "cannot reach Ollama: dial tcp: refused" {
		t.Errorf("Error() = %q", got)
	}
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		message string
		want    ErrorType
	}{
		{"404", 404, "", ErrTypeModelNotFound},
		{"model not found text", 400, `model "llama9" not found, try pulling it first`, ErrTypeModelNotFound},
		{"context length", 400, "input exceeds the context length", ErrTypeContextExceeded},
		{"too many tokens", 500, "too many tokens in prompt", ErrTypeContextExceeded},
		{"gateway timeout", 504, "", ErrTypeTimeout},
		{"service unavailable", 503, "", ErrTypeConnection},
		{"other", 500, "kaboom", ErrTypeInvalidResponse},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := classifyStatus(tc.status, "status", tc.message, "llama3")
			var clientErr *ClientError
			if !errors.As(err, &clientErr) {
				t.Fatalf("classifyStatus returned %T, want *ClientError", err)
			}
			if clientErr.Type != tc.want {
				t.Errorf("Type = %v, want %v", clientErr.Type, tc.want)
			}
		})
	}
}

func TestClassifyTransportError_CancelPassesThrough(t *testing.T) {
	err := classifyTransportError(context.Canceled, DefaultBaseURL)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if isRetryable(err) {
		t.Error("cancellation must not be retryable")
	}

	err = classifyTransportError(context.DeadlineExceeded, DefaultBaseURL)
	if !IsTimeout(err) {
		t.Errorf("expected timeout, got %v", err)
	}
}

func TestOutcome(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, metrics.OutcomeOK},
		{ErrConnection, metrics.OutcomeConnection},
		{ErrTimeout, metrics.OutcomeTimeout},
		{ErrModelNotFound, metrics.OutcomeModelNotFound},
		{ErrContextExceeded, metrics.OutcomeContextExceeded},
		{NewValidationError("bad"), metrics.OutcomeValidation},
		{errors.New("plain"), metrics.OutcomeError},
	}

	for _, tc := range tests {
		if got := Outcome(tc.err); got != tc.want {
			t.Errorf("Outcome(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

// =============================================================================
// MESSAGE BUILDING TESTS
// =============================================================================

func TestBuildMessages(t *testing.T) {
	history := []model.Turn{
		model.NewSystemTurn("be brief"),
		model.NewUserTurn("hi"),
		model.NewAssistantTurn(""),
		model.NewAssistantTurn("hello"),
	}

	msgs, err := BuildMessages("how are you", history)
	if err != nil {
		t.Fatalf("BuildMessages() error = %v", err)
	}

	want := []Message{
		{Role: "system", Content: "be brief"},
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello"},
		{Role: "user", Content: "how are you"},
	}
	if len(msgs) != len(want) {
		t.Fatalf("len(msgs) = %d, want %d", len(msgs), len(want))
	}
	for i := range want {
		if msgs[i] != want[i] {
			t.Errorf("msgs[%d] = %+v, want %+v", i, msgs[i], want[i])
		}
	}
}

func TestBuildMessages_Validation(t *testing.T) {
	if _, err := BuildMessages("   ", nil); !IsValidation(err) {
		t.Errorf("blank prompt: expected validation error, got %v", err)
	}

	bad := []model.Turn{{Role: model.Role("tool"), Content: "x"}}
	if _, err := BuildMessages("hi", bad); !IsValidation(err) {
		t.Errorf("unknown role: expected validation error, got %v", err)
	}
}

// =============================================================================
// STREAM READER TESTS
// =============================================================================

func TestStreamReader_Process(t *testing.T) {
	body := strings.Join([]string{
		`{"model":"llama3","message":{"role":"assistant","content":"Hel"},"done":false}`,
		``,
		`not json`,
		`{"model":"llama3","message":{"role":"assistant","content":"lo"},"done":false}`,
		`{"model":"llama3","message":{"role":"assistant","content":""},"done":true,"done_reason":"stop","eval_count":2,"total_duration":1000}`,
	}, "\n")

	reader := NewStreamReader(strings.NewReader(body))
	var chunks []StreamChunk
	err := reader.Process(context.Background(), func(c StreamChunk) {
		chunks = append(chunks, c)
	})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}
	last := chunks[2]
	if !last.Done || last.DoneReason != "stop" || last.CompletionTokens != 2 {
		t.Errorf("final chunk = %+v", last)
	}
	var text strings.Builder
	for _, c := range chunks {
		text.WriteString(c.Content)
		if c.Model != "llama3" {
			t.Errorf("chunk model = %q, want llama3", c.Model)
		}
	}
	if text.String() != "Hello" {
		t.Errorf("content = %q, want %q", text.String(), "Hello")
	}
}

func TestStreamReader_ErrorLine(t *testing.T) {
	body := `{"message":{"content":"a"},"done":false}` + "\n" +
		`{"error":"prompt exceeds the context window"}` + "\n"

	reader := NewStreamReader(strings.NewReader(body))
	err := reader.Process(context.Background(), func(StreamChunk) {})
	if !IsContextExceeded(err) {
		t.Errorf("expected context exceeded, got %v", err)
	}
}

func TestStreamReader_EndsWithoutDone(t *testing.T) {
	body := `{"message":{"content":"partial"},"done":false}`

	reader := NewStreamReader(strings.NewReader(body))
	err := reader.Process(context.Background(), func(StreamChunk) {})
	if !errors.Is(err, ErrInvalidResponse) {
		t.Errorf("expected invalid response, got %v", err)
	}
}

func TestStreamReader_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	reader := NewStreamReader(strings.NewReader(`{"done":true}`))
	if err := reader.Process(ctx, func(StreamChunk) {}); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
