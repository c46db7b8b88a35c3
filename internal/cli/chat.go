// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Interactive chat mode for rigrun-agent.
//
// Commands:
//
//	/help, /h           Show available commands
//	/history            Show retained conversation turns
//	/reset, /clear, /c  Clear conversation history
//	/model              Show the current model
//	/quit, /q, /exit    Exit chat
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"

	"github.com/jeranaias/rigrun-agent/internal/config"
)

// =============================================================================
// LINE INPUT
// =============================================================================

// LineReader reads one line of user input.
type LineReader interface {
	ReadLine(prompt string) (string, error)
	Close() error
}

// ChatCLI provides input history and line editing for interactive chat.
type ChatCLI struct {
	line        *liner.State
	historyFile string
}

// NewChatCLI creates a ChatCLI and loads saved input history.
func NewChatCLI() *ChatCLI {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	configDir, err := config.ConfigDir()
	if err != nil {
		configDir = os.TempDir()
	}

	c := &ChatCLI{
		line:        line,
		historyFile: filepath.Join(configDir, "chat_history"),
	}
	c.LoadHistory()
	return c
}

// LoadHistory loads input history from file.
func (c *ChatCLI) LoadHistory() {
	if f, err := os.Open(c.historyFile); err == nil {
		_, _ = c.line.ReadHistory(f)
		f.Close()
	}
}

// ReadLine prompts for a line and adds non-empty input to history.
func (c *ChatCLI) ReadLine(prompt string) (string, error) {
	input, err := c.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		c.line.AppendHistory(input)
	}
	return input, nil
}

// SaveHistory persists input history with owner-only permissions.
func (c *ChatCLI) SaveHistory() {
	if err := os.MkdirAll(filepath.Dir(c.historyFile), 0700); err != nil {
		return
	}
	f, err := os.OpenFile(c.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return
	}
	defer f.Close()
	_, _ = c.line.WriteHistory(f)
}

// Close saves history and restores the terminal.
func (c *ChatCLI) Close() error {
	c.SaveHistory()
	return c.line.Close()
}

// =============================================================================
// CHAT LOOP
// =============================================================================

// chatPrompt is the input prompt shown before each line.
const chatPrompt = "you> "

// RunChat starts an interactive conversation using the configured manager
// and system prompt.
func RunChat(opts GlobalOptions) int {
	profile := Profile{
		Program:             "chat",
		UseConfiguredPrompt: true,
		Interactive:         true,
	}
	return runProgram(opts, profile, func(ctx context.Context, rt *Runtime) error {
		input := NewChatCLI()
		defer input.Close()
		return chatLoop(ctx, rt, input)
	})
}

// chatLoop reads lines until EOF or an exit command. Failed requests are
// reported and the loop continues; Ctrl+C cancels only the request in
// flight.
func chatLoop(ctx context.Context, rt *Runtime, input LineReader) error {
	printWelcome(rt)

	for {
		if ctx.Err() != nil {
			return nil
		}

		line, err := input.ReadLine(chatPrompt)
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Fprintln(rt.Printer.out)
				return nil
			}
			return fmt.Errorf("failed to read input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			if !handleSlashCommand(rt, line) {
				return nil
			}
			continue
		}
		if strings.EqualFold(line, "exit") || strings.EqualFold(line, "quit") {
			return nil
		}

		reqCtx, stop := notifyContext(ctx)
		_, err = rt.Ask(reqCtx, line)
		stop()
		if err != nil {
			if errors.Is(err, context.Canceled) {
				fmt.Fprintln(rt.Printer.errOut, WarningStyle.Render("[Cancelled]"))
				continue
			}
			rt.Printer.Error(err, rt.Config)
		}
	}
}

// handleSlashCommand runs a slash command and reports whether the loop
// should continue.
func handleSlashCommand(rt *Runtime, cmd string) bool {
	parts := strings.Fields(cmd)
	command := strings.ToLower(parts[0])

	switch command {
	case "/help", "/h", "/?", "/":
		printHelp(rt.Printer.out)
	case "/history":
		rt.Printer.History(rt.Agent.History())
	case "/reset", "/clear", "/c":
		rt.Agent.Reset()
		fmt.Fprintln(rt.Printer.out, SuccessStyle.Render("[Conversation cleared]"))
	case "/model", "/m":
		fmt.Fprintln(rt.Printer.out, RenderKeyValue("Model", rt.Agent.ModelName()))
	case "/quit", "/q", "/exit":
		return false
	default:
		hint := "type /help for commands"
		if suggestion := SuggestSlashCommand(command); suggestion != "" {
			hint = "did you mean " + suggestion + "?"
		}
		fmt.Fprintf(rt.Printer.errOut, "%s unknown command: %s (%s)\n",
			ErrorStyle.Render("[Error]"), command, hint)
	}
	return true
}

// printWelcome prints the banner shown when chat starts.
func printWelcome(rt *Runtime) {
	w := rt.Printer.out
	fmt.Fprintln(w, TitleStyle.Render("rigrun-agent chat"))
	fmt.Fprintln(w, RenderKeyValue("Model", rt.Agent.ModelName()))
	fmt.Fprintln(w, RenderKeyValue("Endpoint", rt.Config.Model.Host))
	fmt.Fprintln(w, RenderKeyValue("History", historyDescription(rt.Config)))
	fmt.Fprintln(w, DimStyle.Render("Type /help for commands, Ctrl+D to exit"))
	fmt.Fprintln(w)
}

func historyDescription(cfg *config.Config) string {
	if cfg.Conversation.Manager != config.ManagerSlidingWindow {
		return "off"
	}
	return fmt.Sprintf("last %d turns", cfg.Conversation.WindowSize)
}

// printHelp prints the available chat commands.
func printHelp(w io.Writer) {
	commands := []struct {
		cmd  string
		desc string
	}{
		{"/help, /h", "Show this help"},
		{"/history", "Show retained conversation turns"},
		{"/reset, /clear", "Clear conversation history"},
		{"/model", "Show the current model"},
		{"/quit, /q", "Exit chat"},
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, TitleStyle.Render("Available Commands"))
	for _, c := range commands {
		fmt.Fprintf(w, "  %s  %s\n", PromptStyle.Render(fmt.Sprintf("%-15s", c.cmd)), DimStyle.Render(c.desc))
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, DimStyle.Render("Tip: Ctrl+C cancels the current request, Ctrl+D exits"))
	fmt.Fprintln(w)
}
