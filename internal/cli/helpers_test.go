// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jeranaias/rigrun-agent/internal/ollama"
)

// fakeOllama serves /api/chat with scripted replies and records requests.
type fakeOllama struct {
	*httptest.Server

	mu       sync.Mutex
	requests []ollama.ChatRequest

	// reply returns the text for the nth request (0-based) or a non-200
	// status with an error message.
	reply func(n int, req ollama.ChatRequest) (string, int)
}

func newFakeOllama(t *testing.T, reply func(n int, req ollama.ChatRequest) (string, int)) *fakeOllama {
	t.Helper()
	f := &fakeOllama{reply: reply}
	f.Server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.Close)
	return f
}

// echoReplies answers request n with "answer n+1".
func echoReplies(n int, _ ollama.ChatRequest) (string, int) {
	return fmt.Sprintf("answer %d", n+1), http.StatusOK
}

func (f *fakeOllama) handle(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/":
		fmt.Fprint(w, "Ollama is running")
		return
	case "/api/tags":
		json.NewEncoder(w).Encode(ollama.ListModelsResponse{Models: []ollama.ModelInfo{
			{Name: "llama3:latest", Size: 4_700_000_000},
			{Name: "qwen2.5:7b", Size: 4_400_000_000},
		}})
		return
	case "/api/show":
		var req ollama.ShowModelRequest
		json.NewDecoder(r.Body).Decode(&req)
		if !strings.HasPrefix(req.Name, "llama3") {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprintf(w, `{"error":"model '%s' not found"}`, req.Name)
			return
		}
		json.NewEncoder(w).Encode(ollama.ShowModelResponse{})
		return
	case "/api/chat":
	default:
		http.NotFound(w, r)
		return
	}

	var req ollama.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	n := len(f.requests)
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	text, status := f.reply(n, req)
	if status != http.StatusOK {
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]string{"error": text})
		return
	}

	enc := json.NewEncoder(w)
	if !req.Stream {
		enc.Encode(ollama.ChatResponse{Model: req.Model, Message: ollama.Message{Role: "assistant", Content: text}, Done: true})
		return
	}
	for _, word := range strings.SplitAfter(text, " ") {
		enc.Encode(ollama.ChatResponse{Model: req.Model, Message: ollama.Message{Role: "assistant", Content: word}})
		w.(http.Flusher).Flush()
	}
	enc.Encode(ollama.ChatResponse{Model: req.Model, Done: true, DoneReason: "stop"})
}

func (f *fakeOllama) Requests() []ollama.ChatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ollama.ChatRequest(nil), f.requests...)
}

// isolateEnv clears AGENT_* variables and moves HOME and the working
// directory to temporary locations.
func isolateEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"AGENT_CONFIG", "AGENT_OLLAMA_HOST", "AGENT_MODEL_ID", "AGENT_WINDOW_SIZE",
		"AGENT_SYSTEM_PROMPT", "AGENT_TRANSCRIPT_PATH", "AGENT_METRICS_LISTEN", "AGENT_LOG_LEVEL",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())
}

// writeTestConfig writes a TOML config pointing at host with retries off.
func writeTestConfig(t *testing.T, host string, extra string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agent.toml")
	content := fmt.Sprintf(`[model]
host = %q
model_id = "llama3"
timeout_secs = 5
max_retries = 0
retry_delay_ms = 1

[log]
level = "error"
%s`, host, extra)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

// testOptions returns options that capture output.
func testOptions(configPath string) (GlobalOptions, *bytes.Buffer, *bytes.Buffer) {
	var out, errOut bytes.Buffer
	return GlobalOptions{ConfigPath: configPath, Out: &out, ErrOut: &errOut}, &out, &errOut
}
