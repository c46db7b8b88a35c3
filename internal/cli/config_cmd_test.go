// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/rigrun-agent/internal/config"
)

func TestConfigCommand_InitSetGet(t *testing.T) {
	isolateEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "agent.toml")

	opts, out, errOut := testOptions(path)
	require.Equal(t, ExitSuccess, RunConfig(opts, []string{"init"}), errOut.String())
	assert.Contains(t, out.String(), path)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	opts, _, errOut = testOptions(path)
	assert.Equal(t, ExitUsageError, RunConfig(opts, []string{"init"}))
	assert.Contains(t, errOut.String(), "already exists")

	opts, _, errOut = testOptions(path)
	require.Equal(t, ExitSuccess, RunConfig(opts, []string{"init", "--force"}), errOut.String())

	opts, _, errOut = testOptions(path)
	require.Equal(t, ExitSuccess, RunConfig(opts, []string{"set", "conversation.window_size", "6"}), errOut.String())
	opts, _, errOut = testOptions(path)
	require.Equal(t, ExitSuccess, RunConfig(opts, []string{"set", "agent.system_prompt", "Be", "brief"}), errOut.String())

	cfg, err := config.LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, 6, cfg.Conversation.WindowSize)
	assert.Equal(t, "Be brief", cfg.Agent.SystemPrompt)

	opts, out, errOut = testOptions(path)
	require.Equal(t, ExitSuccess, RunConfig(opts, []string{"get", "conversation.window_size"}), errOut.String())
	assert.Equal(t, "6\n", out.String())
}

func TestConfigCommand_SetRejectsInvalidValues(t *testing.T) {
	isolateEnv(t)
	path := writeTestConfig(t, "http://localhost:11434", "")

	opts, _, _ := testOptions(path)
	assert.Equal(t, ExitConfigError, RunConfig(opts, []string{"set", "conversation.window_size", "0"}))

	opts, _, _ = testOptions(path)
	assert.Equal(t, ExitUsageError, RunConfig(opts, []string{"set", "conversation.nope", "1"}))

	opts, _, _ = testOptions(path)
	assert.Equal(t, ExitUsageError, RunConfig(opts, []string{"set", "model.host"}))

	yamlPath := filepath.Join(t.TempDir(), "agent.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("model:\n  model_id: llama3\n"), 0600))
	opts, _, _ = testOptions(yamlPath)
	assert.Equal(t, ExitConfigError, RunConfig(opts, []string{"set", "model.model_id", "qwen"}))
}

func TestConfigCommand_SetDoesNotPersistEnvironment(t *testing.T) {
	isolateEnv(t)
	path := writeTestConfig(t, "http://localhost:11434", "")
	t.Setenv("AGENT_MODEL_ID", "from-env")

	opts, _, errOut := testOptions(path)
	require.Equal(t, ExitSuccess, RunConfig(opts, []string{"set", "log.level", "debug"}), errOut.String())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "from-env")
	assert.Contains(t, string(data), `level = "debug"`)
}

func TestConfigCommand_ShowAndPath(t *testing.T) {
	isolateEnv(t)
	path := writeTestConfig(t, "http://gpu:11434", "\n[transcript]\npath = \"/tmp/t.db\"\n")

	opts, out, errOut := testOptions(path)
	require.Equal(t, ExitSuccess, RunConfig(opts, []string{"show"}), errOut.String())
	shown := out.String()
	for _, want := range []string{"[model]", "http://gpu:11434", "[conversation]", "sliding_window", "/tmp/t.db", "(none)", path} {
		assert.Contains(t, shown, want)
	}

	opts, out, _ = testOptions(path)
	require.Equal(t, ExitSuccess, RunConfig(opts, []string{"path"}))
	assert.Equal(t, path, strings.TrimSpace(out.String()))

	opts, _, _ = testOptions(path)
	assert.Equal(t, ExitUsageError, RunConfig(opts, []string{"frobnicate"}))
}

func TestConfigCommand_PathDefaultsToUserConfig(t *testing.T) {
	isolateEnv(t)

	opts, out, _ := testOptions("")
	require.Equal(t, ExitSuccess, RunConfig(opts, []string{"path"}))

	want, err := config.ConfigPathTOML()
	require.NoError(t, err)
	assert.Equal(t, want, strings.TrimSpace(out.String()))
}
