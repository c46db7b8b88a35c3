// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - Command dispatch for rigrun-agent.
package cli

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

const usageText = `rigrun-agent - conversational agent for a local Ollama model

Usage:
  rigrun-agent [global flags] <command> [args]

Commands:
  hello                     Ask the model to say hello (no history)
  advisor                   Run the career advisor conversation
  chat                      Interactive chat with conversation history
  status                    Check Ollama and the configured model
  models                    List installed models
  config [show|get|set|init|path]
                            Inspect or edit configuration
  transcript [list|show ID|export ID]
                            Inspect or export recorded transcripts
  version                   Show version information
  help                      Show this help

Global flags:
  --config PATH             Configuration file (TOML, YAML or JSON)
  --model NAME              Override model.model_id
  --host URL                Override model.host

Environment:
  AGENT_CONFIG, AGENT_OLLAMA_HOST, AGENT_MODEL_ID, AGENT_WINDOW_SIZE,
  AGENT_SYSTEM_PROMPT, AGENT_TRANSCRIPT_PATH, AGENT_METRICS_LISTEN,
  AGENT_LOG_LEVEL

Version: %s
`

// PrintUsage prints the usage/help text.
func PrintUsage(w io.Writer) {
	fmt.Fprintf(w, usageText, Version)
}

// PrintVersion prints version information.
func PrintVersion(w io.Writer) {
	fmt.Fprintf(w, "rigrun-agent version %s\n", Version)
	fmt.Fprintf(w, "  Git commit: %s\n", GitCommit)
	fmt.Fprintf(w, "  Build date: %s\n", BuildDate)
	fmt.Fprintf(w, "  Go:         %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// Main runs the command named by args and returns the process exit code.
func Main(args []string) int {
	return MainWithOptions(args, GlobalOptions{})
}

// MainWithOptions is Main with output redirected by base.
func MainWithOptions(args []string, base GlobalOptions) int {
	opts, remaining, err := parseGlobalFlags(args, base)
	if err != nil {
		DisplayError(opts.stderr(), err, nil)
		return ExitCode(err)
	}

	if len(remaining) == 0 {
		PrintUsage(opts.stderr())
		return ExitUsageError
	}

	cmd, rest := strings.ToLower(remaining[0]), remaining[1:]
	switch cmd {
	case "hello":
		return RunHello(opts)
	case "advisor":
		return RunAdvisor(opts)
	case "chat":
		return RunChat(opts)
	case "status", "s":
		return RunStatus(opts)
	case "models":
		return RunModels(opts)
	case "config":
		return RunConfig(opts, rest)
	case "transcript", "transcripts":
		return RunTranscript(opts, rest)
	case "version", "--version", "-V":
		PrintVersion(opts.stdout())
		return ExitSuccess
	case "help", "--help", "-h":
		PrintUsage(opts.stdout())
		return ExitSuccess
	default:
		err := &UsageError{
			Message: "unknown command: " + remaining[0],
			Usage:   "rigrun-agent help",
		}
		if suggestion := SuggestCommand(cmd); suggestion != "" {
			err.Message += " (did you mean '" + suggestion + "'?)"
		}
		DisplayError(opts.stderr(), err, nil)
		return ExitCode(err)
	}
}

// parseGlobalFlags extracts --config, --model and --host from anywhere
// before "--" and returns the remaining arguments in order.
func parseGlobalFlags(args []string, base GlobalOptions) (GlobalOptions, []string, error) {
	opts := base
	remaining := make([]string, 0, len(args))

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			remaining = append(remaining, args[i:]...)
			break
		}

		name, value, hasValue := strings.Cut(arg, "=")
		var target *string
		switch name {
		case "--config", "-c":
			target = &opts.ConfigPath
		case "--model", "-m":
			target = &opts.Model
		case "--host":
			target = &opts.Host
		default:
			remaining = append(remaining, arg)
			continue
		}

		if !hasValue {
			if i+1 >= len(args) {
				return opts, nil, &UsageError{Message: name + " requires a value", Usage: "rigrun-agent " + name + " VALUE <command>"}
			}
			i++
			value = args[i]
		}
		*target = value
	}
	return opts, remaining, nil
}

// Run is the entry point used by the single-purpose binaries.
func Run(run func(GlobalOptions) int) {
	opts, remaining, err := parseGlobalFlags(os.Args[1:], GlobalOptions{})
	if err == nil && len(remaining) > 0 {
		err = &UsageError{Message: "unexpected argument: " + remaining[0], Usage: "[--config PATH] [--model NAME] [--host URL]"}
	}
	if err != nil {
		DisplayError(os.Stderr, err, nil)
		os.Exit(ExitCode(err))
	}
	os.Exit(run(opts))
}
