// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// transcript_cmd.go - Inspect recorded transcripts.
//
//	transcript list [--limit N]   List recorded sessions, newest first
//	transcript show ID            Show the exchanges of one session
//	transcript export ID [--format markdown|json] [--out FILE|DIR]
//	                              Write one session as Markdown or JSON;
//	                              a directory receives ID.md or ID.json
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/jeranaias/rigrun-agent/internal/export"
	"github.com/jeranaias/rigrun-agent/internal/transcript"
	"github.com/jeranaias/rigrun-agent/internal/util"
)

const transcriptUsage = "transcript [list [--limit N]|show ID|export ID [--format markdown|json] [--out FILE|DIR]]"

// RunTranscript handles the transcript command.
func RunTranscript(opts GlobalOptions, args []string) int {
	return runCommand(opts, func() error {
		cfg, err := loadConfig(opts)
		if err != nil {
			return err
		}
		if cfg.Transcript.Path == "" {
			return &ConfigError{Err: errors.New("transcript.path is not set")}
		}

		store, err := transcript.Open(cfg.Transcript.Path)
		if err != nil {
			return err
		}
		defer store.Close()

		ctx, stop := notifyContext(context.Background())
		defer stop()
		return handleTranscript(ctx, opts.stdout(), store, NewArgParser(args))
	})
}

func handleTranscript(ctx context.Context, out io.Writer, store *transcript.Store, args *ArgParser) error {
	switch args.Subcommand() {
	case "", "list":
		limit, err := args.FlagIntOrError("limit", 20)
		if err != nil {
			return &UsageError{Message: err.Error(), Usage: transcriptUsage}
		}
		return listTranscripts(ctx, out, store, limit)
	case "show":
		id := args.Positional(1)
		if id == "" {
			return &UsageError{Message: "transcript show requires a session ID", Usage: transcriptUsage}
		}
		return showTranscript(ctx, out, store, id)
	case "export":
		id := args.Positional(1)
		if id == "" {
			return &UsageError{Message: "transcript export requires a session ID", Usage: transcriptUsage}
		}
		exporter, err := export.ForFormat(args.FlagOrDefault("format", "markdown"), export.DefaultOptions())
		if err != nil {
			return &UsageError{Message: err.Error(), Usage: transcriptUsage}
		}
		return exportTranscript(ctx, out, store, id, exporter, args.Flag("out"))
	default:
		return &UsageError{Message: "unknown transcript subcommand: " + args.Subcommand(), Usage: transcriptUsage}
	}
}

func listTranscripts(ctx context.Context, out io.Writer, store *transcript.Store, limit int) error {
	sessions, err := store.Sessions(ctx, limit)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Fprintln(out, DimStyle.Render("No transcripts recorded in "+store.Path()))
		return nil
	}

	for _, s := range sessions {
		fmt.Fprintf(out, "%s  %s  %-20s %d exchange(s)\n",
			s.ID,
			DimStyle.Render(s.StartedAt.Format(time.DateTime)),
			util.TruncateRunes(s.Model, 20),
			s.Exchanges)
	}
	return nil
}

func showTranscript(ctx context.Context, out io.Writer, store *transcript.Store, id string) error {
	entries, err := store.Exchanges(ctx, id)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(out, DimStyle.Render("(no exchanges)"))
		return nil
	}

	for i, e := range entries {
		if i > 0 {
			fmt.Fprintln(out, RenderSeparator(70))
		}
		fmt.Fprintf(out, "%s %s  %s  %s\n",
			PromptStyle.Render(fmt.Sprintf("#%d", e.Seq)),
			DimStyle.Render(e.StartedAt.Format(time.DateTime)),
			e.Model,
			DimStyle.Render(e.Duration.Round(time.Millisecond).String()))
		fmt.Fprintln(out, RenderKeyValue("User", e.UserText))
		if e.Error != "" {
			fmt.Fprintln(out, RenderKeyValue("Error", ErrorStyle.Render(e.Outcome)+" "+e.Error))
			continue
		}
		if e.Reductions > 0 {
			fmt.Fprintln(out, RenderKeyValue("Reductions", fmt.Sprint(e.Reductions)))
		}
		fmt.Fprintln(out, e.Response)
	}
	return nil
}

func exportTranscript(ctx context.Context, out io.Writer, store *transcript.Store, id string, exporter export.Exporter, path string) error {
	info, err := store.Session(ctx, id)
	if err != nil {
		return err
	}
	entries, err := store.Exchanges(ctx, id)
	if err != nil {
		return err
	}

	data, err := exporter.Export(export.Transcript{Session: info, Entries: entries})
	if err != nil {
		return NewCommandError("transcript", "export "+id, err)
	}

	if path == "" {
		_, err = out.Write(data)
		return err
	}
	if st, err := os.Stat(path); err == nil && st.IsDir() {
		path = filepath.Join(path, id+exporter.FileExtension())
	}
	if err := util.AtomicWriteFile(path, data, 0600); err != nil {
		return NewCommandError("transcript", "write "+path, err)
	}
	fmt.Fprintln(out, SuccessStyle.Render("Exported "+id+" to "+path))
	return nil
}
