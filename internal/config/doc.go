// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for the
// agent programs.
//
// Supports TOML, YAML and JSON configuration formats, with sensible defaults,
// .env files, environment variable overrides, and validation.
//
// # Key Types
//
//   - Config: Main configuration structure with all settings
//   - ModelConfig: Ollama endpoint, model and retry settings
//   - ConversationConfig: History manager selection and window limits
//
// # Configuration Precedence
//
// The configuration file is the first that exists of:
//   - $AGENT_CONFIG
//   - ./agent.toml
//   - ~/.rigrun-agent/config.toml
//
// Built-in defaults fill anything the file leaves out, and environment
// variables (AGENT_*, also read from ./.env) override both.
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    return err
//	}
//	client := ollama.NewClientWithConfig(cfg.ClientConfig())
package config
