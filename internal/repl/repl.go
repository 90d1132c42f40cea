// Package repl is the line-mode front end. Cells are read from an
// io.Reader and end at a blank line; lines starting with % are commands.
package repl

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"
	"strings"

	"github.com/randomizedcoder/go-interp-driver/internal/interpreter"
)

const (
	promptFirst = ">>> "
	promptMore  = "... "

	// maxLineSize bounds one input line.
	maxLineSize = 1024 * 1024
)

// Runner executes cells. *session.Session implements it.
type Runner interface {
	Run(ctx context.Context, lang, code string) (iter.Seq[interpreter.Event], error)
	Resolve(lang string) (string, error)
	Languages() []string
	Reset() error
}

// Config holds configuration for a REPL.
type Config struct {
	In       io.Reader
	Out      io.Writer
	Runner   Runner
	Language string

	ShowActiveLines bool

	// Prompt writes >>> and ... prompts; off when input is not a terminal.
	Prompt bool

	// Interrupts cancels the running cell (optional). While idle it drops
	// a partial cell, or ends the loop when there is none. Typically fed
	// by signal.Notify for os.Interrupt.
	Interrupts <-chan os.Signal

	Logger *slog.Logger
}

// REPL reads cells and runs them one at a time.
type REPL struct {
	cfg    Config
	lang   string
	render *Renderer
	logger *slog.Logger
}

// New creates a REPL. The starting language must be known to the runner.
func New(cfg Config) (*REPL, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	lang, err := cfg.Runner.Resolve(cfg.Language)
	if err != nil {
		return nil, err
	}
	return &REPL{
		cfg:    cfg,
		lang:   lang,
		render: NewRenderer(cfg.Out, cfg.ShowActiveLines),
		logger: cfg.Logger,
	}, nil
}

// Language returns the current language.
func (r *REPL) Language() string {
	return r.lang
}

// Loop reads and runs cells until EOF, %exit or ctx is done. A cell
// pending at EOF is run before returning.
func (r *REPL) Loop(ctx context.Context) error {
	lines, readErr := r.readLines(ctx)

	var cell []string
	r.prompt(cell)

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-r.cfg.Interrupts:
			// Idle: drop a partial cell, or leave on an empty one.
			if len(cell) == 0 {
				fmt.Fprintln(r.cfg.Out)
				return nil
			}
			cell = nil
			r.render.Notice("\nCell discarded.")
			r.prompt(cell)

		case line, ok := <-lines:
			if !ok {
				if len(cell) > 0 {
					r.runCell(ctx, cell)
				}
				return readErr()
			}

			trimmed := strings.TrimSpace(line)
			switch {
			case len(cell) == 0 && strings.HasPrefix(trimmed, "%"):
				if r.command(trimmed) {
					return nil
				}
			case trimmed == "":
				if len(cell) > 0 {
					r.runCell(ctx, cell)
					cell = nil
				}
			default:
				cell = append(cell, line)
			}
			r.prompt(cell)
		}
	}
}

// readLines scans input on its own goroutine so Loop can watch ctx. The
// returned func reports the scan error once lines is closed.
func (r *REPL) readLines(ctx context.Context) (<-chan string, func() error) {
	lines := make(chan string)
	var err error

	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r.cfg.In)
		sc.Buffer(make([]byte, 64*1024), maxLineSize)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		err = sc.Err()
	}()

	return lines, func() error { return err }
}

func (r *REPL) prompt(cell []string) {
	if !r.cfg.Prompt {
		return
	}
	if len(cell) == 0 {
		fmt.Fprintf(r.cfg.Out, "[%s] %s", r.lang, promptFirst)
		return
	}
	fmt.Fprint(r.cfg.Out, promptMore)
}

func (r *REPL) runCell(ctx context.Context, cell []string) {
	cellCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if r.cfg.Interrupts != nil {
		stop := make(chan struct{})
		defer close(stop)
		go func() {
			select {
			case <-r.cfg.Interrupts:
				r.logger.Debug("cell_interrupted", "language", r.lang)
				cancel()
			case <-stop:
			}
		}()
	}

	seq, err := r.cfg.Runner.Run(cellCtx, r.lang, strings.Join(cell, "\n"))
	if err != nil {
		r.render.Error(err)
		return
	}
	for ev := range seq {
		r.render.Event(ev)
	}
}

// command handles a % line and reports whether the loop should end.
func (r *REPL) command(line string) bool {
	fields := strings.Fields(strings.TrimPrefix(line, "%"))
	if len(fields) == 0 {
		r.render.Notice("Commands: %%lang [NAME], %%reset, %%exit")
		return false
	}

	switch fields[0] {
	case "exit", "quit":
		return true

	case "lang":
		if len(fields) == 1 {
			r.render.Notice("Language: %s (available: %s)", r.lang, strings.Join(r.cfg.Runner.Languages(), ", "))
			return false
		}
		lang, err := r.cfg.Runner.Resolve(fields[1])
		if err != nil {
			r.render.Error(err)
			return false
		}
		r.lang = lang
		r.render.Notice("Language: %s", lang)

	case "reset":
		if err := r.cfg.Runner.Reset(); err != nil {
			r.render.Error(err)
			return false
		}
		r.render.Notice("Interpreters reset.")

	case "help":
		r.render.Notice("Commands: %%lang [NAME], %%reset, %%exit")

	default:
		r.render.Notice("Unknown command %%%s (try %%help)", fields[0])
	}
	return false
}
