// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/jeranaias/rigrun-agent/internal/config"
	"github.com/jeranaias/rigrun-agent/internal/ollama"
)

// statusTimeout bounds each status probe.
const statusTimeout = 5 * time.Second

// RunStatus reports whether Ollama is reachable and the configured model is
// installed. It exits non-zero when either check fails.
func RunStatus(opts GlobalOptions) int {
	return runCommand(opts, func() error {
		cfg, err := loadConfig(opts)
		if err != nil {
			return err
		}
		ctx, stop := notifyContext(context.Background())
		defer stop()
		return showStatus(ctx, opts.stdout(), cfg, ollama.NewClientWithConfig(cfg.ClientConfig()))
	})
}

func showStatus(ctx context.Context, out io.Writer, cfg *config.Config, client *ollama.Client) error {
	probeCtx, cancel := context.WithTimeout(ctx, statusTimeout)
	defer cancel()

	fmt.Fprintln(out, RenderKeyValue("Endpoint", cfg.Model.Host))
	if err := client.CheckRunning(probeCtx); err != nil {
		fmt.Fprintln(out, RenderKeyValue("Ollama", ErrorStyle.Render("Not running")))
		return err
	}
	fmt.Fprintln(out, RenderKeyValue("Ollama", SuccessStyle.Render("Running")))

	installed, err := client.ModelExists(probeCtx, cfg.Model.ModelID)
	if err != nil {
		fmt.Fprintln(out, RenderKeyValue("Model", cfg.Model.ModelID+" "+WarningStyle.Render("(unknown)")))
		return err
	}
	if !installed {
		fmt.Fprintln(out, RenderKeyValue("Model", cfg.Model.ModelID+" "+ErrorStyle.Render("(not installed)")))
		return &ollama.ClientError{Type: ollama.ErrTypeModelNotFound, Message: "model " + cfg.Model.ModelID + " is not installed"}
	}
	fmt.Fprintln(out, RenderKeyValue("Model", cfg.Model.ModelID+" "+SuccessStyle.Render("(installed)")))

	manager := cfg.Conversation.Manager
	if manager == config.ManagerSlidingWindow {
		manager = fmt.Sprintf("%s (%d turns)", manager, cfg.Conversation.WindowSize)
	}
	fmt.Fprintln(out, RenderKeyValue("History", manager))
	return nil
}

// RunModels lists the models installed on the Ollama server.
func RunModels(opts GlobalOptions) int {
	return runCommand(opts, func() error {
		cfg, err := loadConfig(opts)
		if err != nil {
			return err
		}
		ctx, stop := notifyContext(context.Background())
		defer stop()
		return listModels(ctx, opts.stdout(), cfg, ollama.NewClientWithConfig(cfg.ClientConfig()))
	})
}

func listModels(ctx context.Context, out io.Writer, cfg *config.Config, client *ollama.Client) error {
	models, err := client.ListModels(ctx)
	if err != nil {
		return err
	}
	if len(models) == 0 {
		fmt.Fprintln(out, DimStyle.Render("No models installed. Pull one with: ollama pull "+cfg.Model.ModelID))
		return nil
	}

	for _, m := range models {
		marker := " "
		if m.Name == cfg.Model.ModelID || m.Name == cfg.Model.ModelID+":latest" {
			marker = SuccessStyle.Render("*")
		}
		fmt.Fprintf(out, "%s %-32s %10s  %s\n", marker, m.Name, m.FormatSize(), DimStyle.Render(m.ModifiedAt.Format(time.DateOnly)))
	}
	return nil
}
