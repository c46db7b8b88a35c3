// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/rigrun-agent/internal/conversation"
	"github.com/jeranaias/rigrun-agent/internal/model"
	"github.com/jeranaias/rigrun-agent/internal/ollama"
)

// =============================================================================
// TEST DOUBLES
// =============================================================================

type call struct {
	prompt  string
	history []model.Turn
}

// stubClient returns reply or the next queued error, recording every call.
type stubClient struct {
	mu     sync.Mutex
	reply  string
	errs   []error
	calls  []call
	tokens []string
}

func (s *stubClient) Invoke(_ context.Context, prompt string, history []model.Turn) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call{prompt: prompt, history: model.CloneTurns(history)})
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		return "", err
	}
	return s.reply, nil
}

func (s *stubClient) Model() string { return "stub" }

// streamingStub also implements StreamingClient.
type streamingStub struct {
	stubClient
}

func (s *streamingStub) InvokeStream(ctx context.Context, prompt string, history []model.Turn, onToken func(string)) (string, error) {
	text, err := s.Invoke(ctx, prompt, history)
	if err != nil {
		return "", err
	}
	for _, tok := range s.tokens {
		onToken(tok)
	}
	return text, nil
}

type memoryRecorder struct {
	exchanges []model.Exchange
	ctxErrs   []error
}

func (m *memoryRecorder) Record(ctx context.Context, ex model.Exchange) error {
	m.exchanges = append(m.exchanges, ex)
	m.ctxErrs = append(m.ctxErrs, ctx.Err())
	return nil
}

func newAgent(t *testing.T, client ModelClient, opts ...Option) *Agent {
	t.Helper()
	a, err := New(client, opts...)
	require.NoError(t, err)
	return a
}

// =============================================================================
// TESTS
// =============================================================================

func TestNew_RequiresClient(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
}

func TestRespond_ReturnsClientTextUnchanged(t *testing.T) {
	client := &stubClient{reply: "  hello World\n"}
	a := newAgent(t, client)

	got, err := a.Respond(context.Background(), "say hello World")

	require.NoError(t, err)
	assert.Equal(t, "  hello World\n", got)
	assert.Equal(t, "stub", a.ModelName())
}

func TestRespond_NoManagerIsStateless(t *testing.T) {
	client := &stubClient{reply: "ok"}
	a := newAgent(t, client, WithSystemPrompt("be helpful"))

	for _, q := range []string{"one", "two", "three"} {
		_, err := a.Respond(context.Background(), q)
		require.NoError(t, err)
	}

	require.Len(t, client.calls, 3)
	for _, c := range client.calls {
		assert.Equal(t, []model.Turn{model.NewSystemTurn("be helpful")}, c.history)
	}
	assert.Empty(t, a.History())
}

func TestRespond_NoManagerNoSystemPrompt(t *testing.T) {
	client := &stubClient{reply: "hello World"}
	a := newAgent(t, client)

	_, err := a.Respond(context.Background(), "say hello World")
	require.NoError(t, err)

	require.Len(t, client.calls, 1)
	assert.Empty(t, client.calls[0].history)
	assert.Equal(t, "say hello World", client.calls[0].prompt)
}

func TestRespond_SystemPromptInEveryRequest(t *testing.T) {
	client := &stubClient{reply: "answer"}
	window := conversation.NewSlidingWindow(conversation.WindowConfig{WindowSize: 20, ShouldTruncateResults: true})
	a := newAgent(t, client, WithConversationManager(window), WithSystemPrompt("You are a career advisor."))

	questions := []string{"q1", "q2", "q3"}
	for _, q := range questions {
		_, err := a.Respond(context.Background(), q)
		require.NoError(t, err)
	}

	require.Len(t, client.calls, 3)
	for i, c := range client.calls {
		require.NotEmpty(t, c.history)
		assert.Equal(t, model.NewSystemTurn("You are a career advisor."), c.history[0])
		assert.Equal(t, questions[i], c.prompt)
		// system + two prior turns per earlier question
		assert.Len(t, c.history, 1+2*i)
	}

	history := a.History()
	require.Len(t, history, 6)
	assert.Equal(t, model.NewUserTurn("q3"), history[4])
	assert.Equal(t, model.NewAssistantTurn("answer"), history[5])
	assert.Equal(t, "You are a career advisor.", a.SystemPrompt())
}

func TestRespond_WindowBoundsHistory(t *testing.T) {
	client := &stubClient{reply: "r"}
	window := conversation.NewSlidingWindow(conversation.WindowConfig{WindowSize: 3})
	a := newAgent(t, client, WithConversationManager(window))

	for i := 0; i < 5; i++ {
		_, err := a.Respond(context.Background(), "q")
		require.NoError(t, err)
		assert.LessOrEqual(t, len(a.History()), 3)
	}
}

func TestRespond_ConnectionErrorLeavesHistoryUnchanged(t *testing.T) {
	client := &stubClient{reply: "fine"}
	window := conversation.NewSlidingWindow(conversation.DefaultWindowConfig())
	a := newAgent(t, client, WithConversationManager(window))

	_, err := a.Respond(context.Background(), "first")
	require.NoError(t, err)
	before := a.History()

	client.errs = []error{ollama.ErrConnection}
	got, err := a.Respond(context.Background(), "second")

	assert.Empty(t, got)
	assert.True(t, errors.Is(err, ollama.ErrConnection))
	assert.Same(t, ollama.ErrConnection, err, "client error must be returned unchanged")
	assert.Equal(t, before, a.History())
}

func TestRespond_ValidationSkipsClient(t *testing.T) {
	client := &stubClient{reply: "x"}
	window := conversation.NewSlidingWindow(conversation.DefaultWindowConfig())
	a := newAgent(t, client, WithConversationManager(window))

	for _, input := range []string{"", "   ", "\n\t"} {
		_, err := a.Respond(context.Background(), input)
		assert.True(t, ollama.IsValidation(err), "input %q", input)
	}
	assert.Empty(t, client.calls)
	assert.Empty(t, a.History())
}

func TestNormalizeInput(t *testing.T) {
	got, err := NormalizeInput("  café ")
	require.NoError(t, err)
	assert.Equal(t, "café", got)
}

func TestRespond_ReducesAndRetriesOnContextOverflow(t *testing.T) {
	client := &stubClient{reply: "short"}
	window := conversation.NewSlidingWindow(conversation.DefaultWindowConfig())
	rec := &memoryRecorder{}
	a := newAgent(t, client, WithConversationManager(window), WithRecorder(rec))

	long := strings.Repeat("z", 3000)
	window.Append(model.NewUserTurn("earlier"))
	window.Append(model.NewAssistantTurn(long))

	client.errs = []error{ollama.ErrContextExceeded}
	got, err := a.Respond(context.Background(), "next")

	require.NoError(t, err)
	assert.Equal(t, "short", got)
	require.Len(t, client.calls, 2)
	assert.Equal(t, long, client.calls[0].history[1].Content)
	assert.True(t, strings.HasSuffix(client.calls[1].history[1].Content, conversation.TruncationMarker(2500)))

	require.Len(t, rec.exchanges, 1)
	assert.Equal(t, 1, rec.exchanges[0].Reductions)
	assert.True(t, rec.exchanges[0].Succeeded())
}

func TestRespond_RecordsTimeoutAfterDeadline(t *testing.T) {
	client := &stubClient{errs: []error{ollama.ErrTimeout}}
	rec := &memoryRecorder{}
	a := newAgent(t, client, WithRecorder(rec))

	ctx, cancel := context.WithTimeout(context.Background(), -time.Second)
	defer cancel()
	_, err := a.Respond(ctx, "slow question")

	require.True(t, ollama.IsTimeout(err))
	require.Len(t, rec.exchanges, 1)
	assert.False(t, rec.exchanges[0].Succeeded())
	assert.NoError(t, rec.ctxErrs[0], "recording must not inherit the expired deadline")
}

func TestRespond_ContextOverflowWithoutManager(t *testing.T) {
	client := &stubClient{errs: []error{ollama.ErrContextExceeded}}
	a := newAgent(t, client)

	_, err := a.Respond(context.Background(), "hi")

	assert.True(t, ollama.IsContextExceeded(err))
	assert.Len(t, client.calls, 1)
}

func TestRespond_ReductionsAreBounded(t *testing.T) {
	errs := make([]error, 10)
	for i := range errs {
		errs[i] = ollama.ErrContextExceeded
	}
	client := &stubClient{errs: errs}
	window := conversation.NewSlidingWindow(conversation.WindowConfig{WindowSize: 20})
	for i := 0; i < 10; i++ {
		window.Append(model.NewUserTurn("old"))
	}
	before := window.Context()
	a := newAgent(t, client, WithConversationManager(window), WithMaxReductions(2))

	_, err := a.Respond(context.Background(), "hi")

	assert.True(t, ollama.IsContextExceeded(err))
	assert.Len(t, client.calls, 3)
	assert.Equal(t, before, a.History(), "failed call restores history")
}

func TestRespond_StopsWhenNothingLeftToReduce(t *testing.T) {
	client := &stubClient{errs: []error{ollama.ErrContextExceeded, ollama.ErrContextExceeded, ollama.ErrContextExceeded}}
	window := conversation.NewSlidingWindow(conversation.DefaultWindowConfig())
	window.Append(model.NewUserTurn("only"))
	a := newAgent(t, client, WithConversationManager(window))

	_, err := a.Respond(context.Background(), "hi")

	assert.True(t, ollama.IsContextExceeded(err))
	assert.Len(t, client.calls, 2)
	assert.Len(t, a.History(), 1)
}

func TestRespondStream(t *testing.T) {
	client := &streamingStub{stubClient{reply: "hello World", tokens: []string{"hello", " World"}}}
	window := conversation.NewSlidingWindow(conversation.DefaultWindowConfig())
	a := newAgent(t, client, WithConversationManager(window))

	var got []string
	text, err := a.RespondStream(context.Background(), "hi", func(tok string) { got = append(got, tok) })

	require.NoError(t, err)
	assert.Equal(t, "hello World", text)
	assert.Equal(t, []string{"hello", " World"}, got)
	assert.Len(t, a.History(), 2)
}

func TestRespondStream_FallsBackToInvoke(t *testing.T) {
	client := &stubClient{reply: "whole"}
	a := newAgent(t, client)

	var got []string
	text, err := a.RespondStream(context.Background(), "hi", func(tok string) { got = append(got, tok) })

	require.NoError(t, err)
	assert.Equal(t, "whole", text)
	assert.Equal(t, []string{"whole"}, got)
}

func TestReset(t *testing.T) {
	client := &stubClient{reply: "r"}
	window := conversation.NewSlidingWindow(conversation.DefaultWindowConfig())
	a := newAgent(t, client, WithConversationManager(window))

	_, err := a.Respond(context.Background(), "q")
	require.NoError(t, err)
	require.NotEmpty(t, a.History())

	a.Reset()
	assert.Empty(t, a.History())
}

func TestRespond_ConcurrentCallsAreSerialized(t *testing.T) {
	client := &stubClient{reply: "r"}
	window := conversation.NewSlidingWindow(conversation.WindowConfig{WindowSize: 100})
	a := newAgent(t, client, WithConversationManager(window))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = a.Respond(context.Background(), "q")
		}()
	}
	wg.Wait()

	history := a.History()
	require.Len(t, history, 20)
	for i := 0; i < len(history); i += 2 {
		assert.Equal(t, model.RoleUser, history[i].Role)
		assert.Equal(t, model.RoleAssistant, history[i+1].Role)
	}
}
