// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/jeranaias/rigrun-agent/internal/metrics"
	"github.com/jeranaias/rigrun-agent/internal/model"
)

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

const (
	DefaultBaseURL    = "http://localhost:11434"
	DefaultModel      = "llama3"
	DefaultTimeout    = 60 * time.Second
	DefaultMaxRetries = 2
	DefaultRetryDelay = 500 * time.Millisecond

	maxRetryDelay = 30 * time.Second
)

// ClientConfig holds configuration options for the Ollama client.
type ClientConfig struct {
	// BaseURL is the Ollama API base URL (default: http://localhost:11434)
	BaseURL string

	// Model is the model identifier sent with every chat request (default: "llama3")
	Model string

	// Timeout bounds how long a request may wait for a response (default: 60s).
	// For streaming requests it bounds the wait for headers and the idle gap
	// between chunks, not the whole reply.
	Timeout time.Duration

	// MaxRetries for connection and timeout failures. Zero disables retry.
	MaxRetries int

	// RetryDelay before the first retry; doubles per attempt up to 30s (default: 500ms)
	RetryDelay time.Duration

	// RequestsPerSecond limits outgoing requests. Zero means unlimited.
	RequestsPerSecond float64

	// KeepAlive controls how long Ollama keeps the model loaded (e.g. "5m")
	KeepAlive string

	// Options are passed through as model parameters when non-nil
	Options *Options
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() *ClientConfig {
	return &ClientConfig{
		BaseURL:    DefaultBaseURL,
		Model:      DefaultModel,
		Timeout:    DefaultTimeout,
		MaxRetries: DefaultMaxRetries,
		RetryDelay: DefaultRetryDelay,
	}
}

// Option customizes a Client.
type Option func(*Client)

// WithLogger sets the structured logger used for request diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(recorder metrics.Recorder) Option {
	return func(c *Client) {
		if recorder != nil {
			c.metrics = recorder
		}
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client handles communication with the Ollama API.
// The configuration is copied at construction and never changes afterwards.
//
// The Client is thread-safe for concurrent use.
type Client struct {
	config       ClientConfig
	httpClient   *http.Client
	streamClient *http.Client
	limiter      *rate.Limiter
	logger       *slog.Logger
	metrics      metrics.Recorder
}

// NewClient creates a new Ollama client with default configuration.
func NewClient() *Client {
	return NewClientWithConfig(DefaultConfig())
}

// NewClientWithConfig creates a new Ollama client with custom configuration.
func NewClientWithConfig(config *ClientConfig, opts ...Option) *Client {
	cfg := *DefaultConfig()
	if config != nil {
		cfg = *config
	}

	// Fill in defaults for any zero values
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}

	c := &Client{
		config: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		// SECURITY: TLS not required - Ollama runs locally over HTTP.
		// Streaming responses can outlive Timeout; ChatStream enforces an idle deadline instead.
		streamClient: &http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				ResponseHeaderTimeout: cfg.Timeout,
			},
		},
		logger:  slog.New(slog.DiscardHandler),
		metrics: metrics.Noop{},
	}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	for _, opt := range opts {
		opt(c)
	}
	return c
}

// =============================================================================
// HEALTH CHECK
// =============================================================================

// CheckRunning verifies that Ollama is reachable and running.
func (c *Client) CheckRunning(ctx context.Context) error {
	resp, err := c.roundTrip(ctx, c.httpClient, http.MethodGet, "/", nil)
	if err != nil {
		return err
	}
	drainAndClose(resp.Body)
	return nil
}

// =============================================================================
// MODEL OPERATIONS
// =============================================================================

// ListModels retrieves all available models from Ollama.
func (c *Client) ListModels(ctx context.Context) ([]ModelInfo, error) {
	resp, err := c.roundTrip(ctx, c.httpClient, http.MethodGet, "/api/tags", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result ListModelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, classifyDecodeError(err, c.config.BaseURL)
	}
	return result.Models, nil
}

// GetModel retrieves information about a specific model.
func (c *Client) GetModel(ctx context.Context, name string) (*ShowModelResponse, error) {
	resp, err := c.roundTrip(ctx, c.httpClient, http.MethodPost, "/api/show", ShowModelRequest{Name: name})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result ShowModelResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, classifyDecodeError(err, c.config.BaseURL)
	}
	return &result, nil
}

// ModelExists checks if a model is available locally. Only a not-found
// answer yields false without an error.
func (c *Client) ModelExists(ctx context.Context, name string) (bool, error) {
	_, err := c.GetModel(ctx, name)
	if err == nil {
		return true, nil
	}
	if IsModelNotFound(err) {
		return false, nil
	}
	return false, err
}

// =============================================================================
// CHAT OPERATIONS
// =============================================================================

// Chat sends a non-streaming chat request with the configured model.
// Connection and timeout failures are retried per the client configuration.
func (c *Client) Chat(ctx context.Context, messages []Message) (*ChatResponse, error) {
	req := c.newChatRequest(messages, false)

	var result *ChatResponse
	err := c.retry(ctx, "chat", func() error {
		resp, err := c.roundTrip(ctx, c.httpClient, http.MethodPost, "/api/chat", req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		var decoded ChatResponse
		if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
			return classifyDecodeError(err, c.config.BaseURL)
		}
		result = &decoded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// errStreamIdle is the cancellation cause when a stream goes quiet for
// longer than the configured timeout.
var errStreamIdle = errors.New("stream idle")

// ChatStream sends a streaming chat request and calls the callback for each
// chunk, synchronously and in order. A request is only retried if it failed
// before any chunk was delivered. The stream fails with a timeout when no
// data arrives for the configured Timeout.
func (c *Client) ChatStream(ctx context.Context, messages []Message, callback StreamCallback) error {
	req := c.newChatRequest(messages, true)

	delivered := false
	err := c.retry(ctx, "chat_stream", func() error {
		attemptCtx, cancel := context.WithCancelCause(ctx)
		defer cancel(nil)
		idle := time.AfterFunc(c.config.Timeout, func() { cancel(errStreamIdle) })
		defer idle.Stop()

		resp, err := c.roundTrip(attemptCtx, c.streamClient, http.MethodPost, "/api/chat", req)
		if err != nil {
			return c.streamError(attemptCtx, err)
		}
		defer resp.Body.Close()
		idle.Reset(c.config.Timeout)

		reader := NewStreamReader(resp.Body)
		err = reader.Process(attemptCtx, func(chunk StreamChunk) {
			delivered = true
			idle.Stop()
			callback(chunk)
			idle.Reset(c.config.Timeout)
		})
		if err == nil {
			return nil
		}
		err = c.streamError(attemptCtx, err)
		if delivered {
			return &permanentError{err: err}
		}
		return err
	})

	var perm *permanentError
	if errors.As(err, &perm) {
		return perm.err
	}
	return err
}

// streamError classifies a failed streaming attempt, reporting an idle
// deadline as a timeout.
func (c *Client) streamError(attemptCtx context.Context, err error) error {
	if errors.Is(context.Cause(attemptCtx), errStreamIdle) {
		return &ClientError{
			Type:    ErrTypeTimeout,
			Message: "no data from " + c.config.BaseURL + " for " + c.config.Timeout.String(),
			Cause:   errStreamIdle,
		}
	}
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return err
	}
	return classifyTransportError(err, c.config.BaseURL)
}

// Invoke sends prompt with history as ordered context and returns the
// generated text. A leading system turn in history becomes the system message.
func (c *Client) Invoke(ctx context.Context, prompt string, history []model.Turn) (string, error) {
	messages, err := BuildMessages(prompt, history)
	if err != nil {
		return "", err
	}

	c.logger.Debug("invoking model", "model", c.config.Model, "messages", len(messages))
	resp, err := c.Chat(ctx, messages)
	if err != nil {
		return "", err
	}
	c.logger.Debug("model responded",
		"model", c.config.Model,
		"eval_count", resp.EvalCount,
		"tokens_per_sec", resp.TokensPerSecond(),
		"total", resp.TotalTime(),
	)
	return resp.Message.Content, nil
}

// InvokeStream is Invoke with streaming: onToken receives each content
// fragment as it arrives, and the concatenated text is returned.
func (c *Client) InvokeStream(ctx context.Context, prompt string, history []model.Turn, onToken func(string)) (string, error) {
	messages, err := BuildMessages(prompt, history)
	if err != nil {
		return "", err
	}

	var text strings.Builder
	err = c.ChatStream(ctx, messages, func(chunk StreamChunk) {
		if chunk.Content == "" {
			return
		}
		text.WriteString(chunk.Content)
		if onToken != nil {
			onToken(chunk.Content)
		}
	})
	if err != nil {
		return "", err
	}
	return text.String(), nil
}

// BuildMessages converts history plus the new prompt into wire messages.
// Empty history turns are skipped; the prompt itself must not be blank.
func BuildMessages(prompt string, history []model.Turn) ([]Message, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, NewValidationError("prompt must not be empty")
	}

	messages := make([]Message, 0, len(history)+1)
	for _, turn := range history {
		if !turn.Role.Valid() {
			return nil, NewValidationError("history contains unknown role " + string(turn.Role))
		}
		if turn.Content == "" {
			continue
		}
		messages = append(messages, Message{Role: turn.Role.String(), Content: turn.Content})
	}
	messages = append(messages, Message{Role: model.RoleUser.String(), Content: prompt})
	return messages, nil
}

// =============================================================================
// UTILITY METHODS
// =============================================================================

// Config returns a copy of the client configuration.
func (c *Client) Config() ClientConfig {
	return c.config
}

// Model returns the configured model identifier.
func (c *Client) Model() string {
	return c.config.Model
}

// =============================================================================
// TRANSPORT
// =============================================================================

func (c *Client) newChatRequest(messages []Message, stream bool) ChatRequest {
	return ChatRequest{
		Model:     c.config.Model,
		Messages:  messages,
		Stream:    stream,
		Options:   c.config.Options,
		KeepAlive: c.config.KeepAlive,
	}
}

// roundTrip performs one HTTP request and returns the response only on 200.
// Every other outcome is classified into a ClientError and recorded.
func (c *Client) roundTrip(ctx context.Context, httpc *http.Client, method, path string, payload any) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil, ctx.Err()
			}
			return nil, &ClientError{Type: ErrTypeTimeout, Message: "rate limit wait exceeds deadline", Cause: err}
		}
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, &ClientError{Type: ErrTypeValidation, Message: "failed to marshal request", Cause: err}
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, body)
	if err != nil {
		return nil, &ClientError{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := httpc.Do(req)
	if err != nil {
		err = classifyTransportError(err, c.config.BaseURL)
		c.observe(path, err, start)
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr OllamaError
		_ = json.NewDecoder(io.LimitReader(resp.Body, 64*1024)).Decode(&apiErr)
		drainAndClose(resp.Body)

		err = classifyStatus(resp.StatusCode, resp.Status, apiErr.Error, c.config.Model)
		c.observe(path, err, start)
		return nil, err
	}

	c.observe(path, nil, start)
	return resp, nil
}

func (c *Client) observe(path string, err error, start time.Time) {
	elapsed := time.Since(start)
	c.metrics.ObserveRequest(c.config.Model, path, Outcome(err), elapsed.Seconds())
	if err != nil {
		c.logger.Debug("model request failed", "path", path, "elapsed", elapsed, "error", err)
	}
}

// permanentError marks a failure that must not be retried.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// retry runs fn until it succeeds, fails with a non-retryable error, or
// MaxRetries retries have been spent. Backoff doubles from RetryDelay.
func (c *Client) retry(ctx context.Context, op string, fn func() error) error {
	delay := c.config.RetryDelay
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		var perm *permanentError
		if errors.As(err, &perm) || !isRetryable(err) || attempt >= c.config.MaxRetries {
			return err
		}

		c.metrics.IncRetries(c.config.Model)
		c.logger.Warn("retrying model request",
			"op", op,
			"attempt", attempt+1,
			"max_retries", c.config.MaxRetries,
			"delay", delay,
			"error", err,
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}

		delay *= 2
		if delay > maxRetryDelay {
			delay = maxRetryDelay
		}
	}
}

// Helper to drain response body
func drainAndClose(r io.ReadCloser) {
	io.Copy(io.Discard, r)
	r.Close()
}
