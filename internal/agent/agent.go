// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package agent

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/jeranaias/rigrun-agent/internal/conversation"
	"github.com/jeranaias/rigrun-agent/internal/metrics"
	"github.com/jeranaias/rigrun-agent/internal/model"
	"github.com/jeranaias/rigrun-agent/internal/ollama"
)

// DefaultMaxReductions bounds how many times history is reduced for a
// single call after context overflows.
const DefaultMaxReductions = 8

// =============================================================================
// CAPABILITIES
// =============================================================================

// ModelClient generates a reply to prompt given prior turns as context.
type ModelClient interface {
	Invoke(ctx context.Context, prompt string, history []model.Turn) (string, error)
}

// StreamingClient is a ModelClient that can also deliver tokens as they
// are generated.
type StreamingClient interface {
	ModelClient
	InvokeStream(ctx context.Context, prompt string, history []model.Turn, onToken func(string)) (string, error)
}

// Recorder persists completed exchanges.
type Recorder interface {
	Record(ctx context.Context, exchange model.Exchange) error
}

// =============================================================================
// OPTIONS
// =============================================================================

// Option configures an Agent.
type Option func(*Agent)

// WithConversationManager keeps history between calls using m.
func WithConversationManager(m conversation.Manager) Option {
	return func(a *Agent) { a.manager = m }
}

// WithSystemPrompt sets the instruction sent first in every request.
func WithSystemPrompt(prompt string) Option {
	return func(a *Agent) { a.systemPrompt = prompt }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Agent) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithRecorder persists every exchange that reached the model.
func WithRecorder(r Recorder) Option {
	return func(a *Agent) { a.recorder = r }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(r metrics.Recorder) Option {
	return func(a *Agent) {
		if r != nil {
			a.metrics = r
		}
	}
}

// WithMaxReductions bounds history reductions per call. Zero disables
// reduce-and-retry.
func WithMaxReductions(n int) Option {
	return func(a *Agent) {
		if n >= 0 {
			a.maxReductions = n
		}
	}
}

// WithModelName labels exchanges with the model identifier.
func WithModelName(name string) Option {
	return func(a *Agent) { a.modelName = name }
}

// =============================================================================
// AGENT
// =============================================================================

// Agent answers user text through a ModelClient. Calls are serialized.
type Agent struct {
	mu sync.Mutex

	client        ModelClient
	manager       conversation.Manager
	systemPrompt  string
	modelName     string
	maxReductions int

	logger   *slog.Logger
	recorder Recorder
	metrics  metrics.Recorder
}

// New creates an agent over client.
func New(client ModelClient, opts ...Option) (*Agent, error) {
	if client == nil {
		return nil, errors.New("agent: model client is required")
	}

	a := &Agent{
		client:        client,
		maxReductions: DefaultMaxReductions,
		logger:        slog.New(slog.DiscardHandler),
		metrics:       metrics.Noop{},
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.modelName == "" {
		if named, ok := client.(interface{ Model() string }); ok {
			a.modelName = named.Model()
		}
	}
	return a, nil
}

// Respond sends userText and returns the model's reply unchanged.
func (a *Agent) Respond(ctx context.Context, userText string) (string, error) {
	return a.respond(ctx, userText, nil)
}

// RespondStream is Respond with tokens delivered to onToken as they arrive.
// Clients without streaming support deliver the whole reply in one call.
func (a *Agent) RespondStream(ctx context.Context, userText string, onToken func(string)) (string, error) {
	if onToken == nil {
		onToken = func(string) {}
	}
	return a.respond(ctx, userText, onToken)
}

// History returns a copy of the retained turns, oldest first. It is empty
// when the agent has no conversation manager.
func (a *Agent) History() []model.Turn {
	if a.manager == nil {
		return []model.Turn{}
	}
	return a.manager.Context()
}

// SystemPrompt returns the instruction sent with every request.
func (a *Agent) SystemPrompt() string {
	return a.systemPrompt
}

// ModelName returns the model label used for exchanges.
func (a *Agent) ModelName() string {
	return a.modelName
}

// Reset clears the retained history.
func (a *Agent) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.manager != nil {
		a.manager.Restore(nil)
		a.metrics.SetHistoryTurns(0)
	}
}

func (a *Agent) respond(ctx context.Context, userText string, onToken func(string)) (string, error) {
	prompt, err := NormalizeInput(userText)
	if err != nil {
		a.metrics.ObserveExchange(ollama.Outcome(err), 0)
		return "", err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	exchange := model.Exchange{
		Model:     a.modelName,
		UserText:  prompt,
		StartedAt: time.Now(),
	}

	text, err := a.exchange(ctx, prompt, onToken, &exchange)

	exchange.Response = text
	exchange.Err = err
	exchange.Duration = time.Since(exchange.StartedAt)
	a.finish(ctx, exchange)

	return text, err
}

// exchange runs one call against the client, reducing history and retrying
// while the backend reports a context overflow. Caller must hold mu.
func (a *Agent) exchange(ctx context.Context, prompt string, onToken func(string), ex *model.Exchange) (string, error) {
	userTurn := model.NewUserTurn(prompt)

	var snapshot []model.Turn
	if a.manager != nil {
		snapshot = a.manager.Context()
		a.manager.Append(userTurn)
	}

	for {
		prior := a.priorContext(userTurn)
		text, err := a.invoke(ctx, prompt, a.requestContext(prior), onToken)
		if err == nil {
			if a.manager != nil {
				a.manager.Append(model.NewAssistantTurn(text))
				a.metrics.SetHistoryTurns(a.manager.Len())
			}
			return text, nil
		}

		if a.manager == nil || !ollama.IsContextExceeded(err) ||
			ex.Reductions >= a.maxReductions || len(prior) == 0 || !a.manager.Reduce() {
			if a.manager != nil {
				a.manager.Restore(snapshot)
			}
			return "", err
		}

		ex.Reductions++
		a.metrics.IncReductions()
		a.logger.Info("context window exceeded, reduced history",
			"model", a.modelName,
			"reductions", ex.Reductions,
			"history_turns", a.manager.Len(),
		)
	}
}

// priorContext returns retained history without the in-flight user turn.
func (a *Agent) priorContext(userTurn model.Turn) []model.Turn {
	if a.manager == nil {
		return nil
	}
	history := a.manager.Context()
	if n := len(history); n > 0 && history[n-1] == userTurn {
		history = history[:n-1]
	}
	return history
}

// requestContext prepends the system instruction to prior turns.
func (a *Agent) requestContext(prior []model.Turn) []model.Turn {
	if a.systemPrompt == "" {
		return prior
	}
	turns := make([]model.Turn, 0, len(prior)+1)
	turns = append(turns, model.NewSystemTurn(a.systemPrompt))
	return append(turns, prior...)
}

func (a *Agent) invoke(ctx context.Context, prompt string, history []model.Turn, onToken func(string)) (string, error) {
	if onToken == nil {
		return a.client.Invoke(ctx, prompt, history)
	}
	if streamer, ok := a.client.(StreamingClient); ok {
		return streamer.InvokeStream(ctx, prompt, history, onToken)
	}
	text, err := a.client.Invoke(ctx, prompt, history)
	if err == nil {
		onToken(text)
	}
	return text, err
}

// finish records metrics, logs and persists a completed exchange.
func (a *Agent) finish(ctx context.Context, ex model.Exchange) {
	a.metrics.ObserveExchange(ollama.Outcome(ex.Err), ex.Duration.Seconds())

	if ex.Succeeded() {
		a.logger.Debug("exchange complete",
			"model", ex.Model,
			"duration", ex.Duration,
			"response_runes", len([]rune(ex.Response)),
		)
	} else {
		a.logger.Warn("exchange failed",
			"model", ex.Model,
			"duration", ex.Duration,
			"reductions", ex.Reductions,
			"error", ex.Err,
		)
	}

	if a.recorder == nil || errors.Is(ex.Err, context.Canceled) {
		return
	}
	// A timed-out exchange is still recorded after the caller's deadline.
	if err := a.recorder.Record(context.WithoutCancel(ctx), ex); err != nil {
		a.logger.Warn("failed to record exchange", "error", err)
	}
}

// NormalizeInput NFC-normalizes and trims user text, rejecting text that is
// empty afterwards with an ollama validation error.
func NormalizeInput(text string) (string, error) {
	normalized := strings.TrimSpace(norm.NFC.String(text))
	if normalized == "" {
		return "", ollama.NewValidationError("user text must not be empty")
	}
	return normalized, nil
}
