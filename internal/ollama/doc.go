// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ollama provides the HTTP client for communicating with Ollama API.
//
// The Client is the model backend of the agent: it turns a prompt plus
// ordered history into one /api/chat round trip and returns the generated
// text. Failures are classified into ClientError values so callers can use
// errors.Is against the exported sentinels.
//
// # Key Types
//
//   - Client: HTTP client for Ollama API communication
//   - ClientConfig: Endpoint, model identifier, timeout, retry and rate limit
//   - ClientError: Classified failure (connection, timeout, model not found, ...)
//   - StreamReader: Line-delimited JSON reader for streaming responses
//
// # Usage
//
//	client := ollama.NewClientWithConfig(&ollama.ClientConfig{
//	    BaseURL: "http://localhost:11434",
//	    Model:   "llama3",
//	})
//	text, err := client.Invoke(ctx, "say hello World", nil)
//	if errors.Is(err, ollama.ErrModelNotFound) {
//	    log.Fatal("pull the model first: ollama pull llama3")
//	}
//
// Streaming delivers tokens as they arrive and still returns the full text:
//
//	text, err := client.InvokeStream(ctx, prompt, history, func(tok string) {
//	    fmt.Print(tok)
//	})
//
// # Retries
//
// Connection and timeout failures are retried MaxRetries times with
// exponential backoff starting at RetryDelay. Every other failure is returned
// on the first attempt.
package ollama
