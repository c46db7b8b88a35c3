// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/jeranaias/rigrun-agent/internal/config"
	"github.com/jeranaias/rigrun-agent/internal/model"
	"github.com/jeranaias/rigrun-agent/internal/util"
)

// =============================================================================
// PRINTER
// =============================================================================

// Printer writes agent output. Tokens are streamed as they arrive and
// written unmodified, so piped output stays byte-exact. With output.markdown
// set on a color terminal, each reply is instead rendered as markdown once
// complete.
type Printer struct {
	out      io.Writer
	errOut   io.Writer
	markdown bool
	width    int
	renderer *glamour.TermRenderer

	// streamed tracks whether the current reply was written token by token
	streamed  bool
	endedLine bool
}

// NewPrinter creates a printer. Markdown rendering is used only when
// markdown is true and a renderer can be built.
func NewPrinter(out, errOut io.Writer, markdown bool, width int) *Printer {
	p := &Printer{out: out, errOut: errOut, width: width}
	if markdown {
		renderer, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(width),
		)
		if err == nil {
			p.renderer = renderer
			p.markdown = true
		}
	}
	return p
}

// NewStdPrinter creates a printer for stdout and stderr. Markdown rendering
// needs both the preference and a color-capable terminal.
func NewStdPrinter(preferMarkdown bool) *Printer {
	width := GetTerminalWidth()
	return NewPrinter(os.Stdout, os.Stderr, renderMarkdown(preferMarkdown, IsStdoutTTY(), ColorsEnabled()), min(width, 100))
}

// renderMarkdown decides between whole-reply markdown and token streaming.
func renderMarkdown(preferred, tty, colors bool) bool {
	return preferred && tty && colors
}

// Markdown reports whether replies are rendered as markdown.
func (p *Printer) Markdown() bool {
	return p.markdown
}

// TokenSink returns the callback for streamed tokens, or nil when replies
// are rendered whole.
func (p *Printer) TokenSink() func(string) {
	if p.markdown {
		return nil
	}
	p.streamed = false
	p.endedLine = true
	return func(token string) {
		p.streamed = true
		fmt.Fprint(p.out, token)
		p.endedLine = strings.HasSuffix(token, "\n")
	}
}

// Reply completes a reply: it renders text when it was not streamed and
// makes sure the output ends with a newline.
func (p *Printer) Reply(text string) {
	if p.Finish() {
		return
	}

	if p.markdown {
		if rendered, err := p.renderer.Render(text); err == nil {
			fmt.Fprint(p.out, rendered)
			return
		}
	}
	fmt.Fprint(p.out, text)
	if !strings.HasSuffix(text, "\n") {
		fmt.Fprintln(p.out)
	}
}

// Finish ends a streamed reply, including one cut short by an error. It
// reports whether anything had been streamed.
func (p *Printer) Finish() bool {
	if !p.streamed {
		return false
	}
	if !p.endedLine {
		fmt.Fprintln(p.out)
	}
	p.streamed = false
	return true
}

// Question prints the user text being sent, labelled with its position.
func (p *Printer) Question(index, total int, text string) {
	label := fmt.Sprintf("[%d/%d]", index, total)
	fmt.Fprintf(p.out, "%s %s\n", PromptStyle.Render(label), text)
}

// Separator prints a horizontal rule sized to the output width.
func (p *Printer) Separator() {
	fmt.Fprintln(p.out, RenderSeparator(p.width))
}

// Info prints a dim informational line to the error stream.
func (p *Printer) Info(format string, args ...any) {
	fmt.Fprintln(p.errOut, DimStyle.Render(fmt.Sprintf(format, args...)))
}

// Error prints a styled error with a hint to the error stream.
func (p *Printer) Error(err error, cfg *config.Config) {
	DisplayError(p.errOut, err, cfg)
}

// History prints one preview line per turn.
func (p *Printer) History(turns []model.Turn) {
	if len(turns) == 0 {
		fmt.Fprintln(p.out, DimStyle.Render("(no history)"))
		return
	}
	previewWidth := max(p.width-16, 20)
	for i, turn := range turns {
		label := util.TruncateWidth(fmt.Sprintf("%2d %s", i+1, turn.Role.DisplayName()), 14)
		fmt.Fprintln(p.out, RenderKeyValue(label, turn.Preview(previewWidth)))
	}
}
