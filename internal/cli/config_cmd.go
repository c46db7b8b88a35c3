// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// config_cmd.go - Configuration subcommands.
//
//	config show          Show the effective configuration
//	config get KEY       Print one value (dot notation)
//	config set KEY VAL   Update the configuration file
//	config init          Write a default configuration file
//	config path          Print the configuration file path
package cli

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/jeranaias/rigrun-agent/internal/config"
)

const configUsage = "config [show|get KEY|set KEY VALUE|init [--force]|path]"

// RunConfig handles the config command.
func RunConfig(opts GlobalOptions, args []string) int {
	return runCommand(opts, func() error {
		return handleConfig(opts, NewArgParser(args, "force"))
	})
}

func handleConfig(opts GlobalOptions, args *ArgParser) error {
	out := opts.stdout()

	switch args.Subcommand() {
	case "", "show":
		return handleConfigShow(opts, out)
	case "get":
		return handleConfigGet(opts, out, args.Positional(1))
	case "set":
		if args.PositionalCount() < 3 {
			return &UsageError{Message: "config set requires a key and a value", Usage: configUsage}
		}
		return handleConfigSet(opts, out, args.Positional(1), JoinPositionalArgs(args, 2))
	case "init":
		return handleConfigInit(opts, out, args.BoolFlag("force"))
	case "path":
		path, err := configFilePath(opts)
		if err != nil {
			return &ConfigError{Err: err}
		}
		fmt.Fprintln(out, path)
		return nil
	default:
		return &UsageError{Message: "unknown config subcommand: " + args.Subcommand(), Usage: configUsage}
	}
}

// configFilePath returns the file config set and init write to.
func configFilePath(opts GlobalOptions) (string, error) {
	if opts.ConfigPath != "" {
		return opts.ConfigPath, nil
	}
	path, err := config.ResolvePath()
	if err != nil {
		return "", err
	}
	if path != "" {
		return path, nil
	}
	return config.ConfigPathTOML()
}

func handleConfigShow(opts GlobalOptions, out io.Writer) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	section := func(name string) {
		fmt.Fprintln(out, TitleStyle.Render("["+name+"]"))
	}
	value := func(key string, v any) {
		fmt.Fprintf(out, "  %s%v\n", LabelStyle.Width(26).Render(key+":"), v)
	}

	section("model")
	value("host", cfg.Model.Host)
	value("model_id", cfg.Model.ModelID)
	value("timeout_secs", cfg.Model.TimeoutSecs)
	value("max_retries", cfg.Model.MaxRetries)
	value("retry_delay_ms", cfg.Model.RetryDelayMs)
	value("requests_per_second", cfg.Model.RequestsPerSecond)
	fmt.Fprintln(out)

	section("conversation")
	value("manager", cfg.Conversation.Manager)
	value("window_size", cfg.Conversation.WindowSize)
	value("should_truncate_results", cfg.Conversation.ShouldTruncateResults)
	value("truncate_threshold", cfg.Conversation.TruncateThreshold)
	value("truncated_length", cfg.Conversation.TruncatedLength)
	fmt.Fprintln(out)

	section("agent")
	value("system_prompt", displayOrNone(cfg.Agent.SystemPrompt))
	fmt.Fprintln(out)

	section("transcript")
	value("path", displayOrNone(cfg.Transcript.Path))
	fmt.Fprintln(out)

	section("metrics")
	value("listen", displayOrNone(cfg.Metrics.Listen))
	fmt.Fprintln(out)

	section("log")
	value("level", cfg.Log.Level)
	fmt.Fprintln(out)

	if path, err := configFilePath(opts); err == nil {
		fmt.Fprintf(out, "Config file: %s\n", DimStyle.Render(path))
	}
	return nil
}

func handleConfigGet(opts GlobalOptions, out io.Writer, key string) error {
	if key == "" {
		return &UsageError{Message: "config get requires a key", Usage: configUsage}
	}
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	v, err := cfg.Get(key)
	if err != nil {
		return &UsageError{Message: err.Error(), Usage: configUsage}
	}
	fmt.Fprintln(out, v)
	return nil
}

// handleConfigSet updates a single key in the TOML configuration file.
// Environment overrides are not applied, so they are never written back.
func handleConfigSet(opts GlobalOptions, out io.Writer, key, value string) error {
	path, err := configFilePath(opts)
	if err != nil {
		return &ConfigError{Err: err}
	}
	if ext := strings.ToLower(filepath.Ext(path)); ext != ".toml" {
		return &ConfigError{Err: fmt.Errorf("config set only writes TOML files, not %s", path)}
	}

	cfg := config.Default()
	if _, err := os.Stat(path); err == nil {
		if err := config.LoadTOML(cfg, path); err != nil {
			return &ConfigError{Err: err}
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return &ConfigError{Err: err}
	}

	if err := cfg.Set(key, value); err != nil {
		return &UsageError{Message: err.Error(), Usage: configUsage}
	}
	if err := cfg.Validate(); err != nil {
		return &ConfigError{Err: err}
	}
	if err := config.SaveTOML(cfg, path); err != nil {
		return &ConfigError{Err: err}
	}

	fmt.Fprintf(out, "%s %s = %s\n", SuccessStyle.Render("[OK]"), key, value)
	return nil
}

func handleConfigInit(opts GlobalOptions, out io.Writer, force bool) error {
	path := opts.ConfigPath
	if path == "" {
		var err error
		if path, err = config.ConfigPathTOML(); err != nil {
			return &ConfigError{Err: err}
		}
	}

	if _, err := os.Stat(path); err == nil && !force {
		return &UsageError{
			Message: "configuration file already exists: " + path,
			Usage:   "config init --force",
		}
	}
	if err := config.SaveTOML(config.Default(), path); err != nil {
		return &ConfigError{Err: err}
	}

	fmt.Fprintf(out, "%s wrote %s\n", SuccessStyle.Render("[OK]"), path)
	return nil
}

func displayOrNone(s string) string {
	if s == "" {
		return DimStyle.Render("(none)")
	}
	return s
}
