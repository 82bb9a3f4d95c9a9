package terminal

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/ergochat/readline"
	"github.com/m4xw311/foundrychat/agent"
	"github.com/m4xw311/foundrychat/errors"
	"golang.org/x/term"
)

// Readline prompts with line editing and history on an interactive terminal.
// Only freeform input is saved to the history.
type Readline struct {
	rl        *readline.Instance
	closeOnce sync.Once
	closeErr  error
}

// NewReadline creates a Readline that draws its prompts on diag. History is
// kept in historyFile when it is not empty.
func NewReadline(diag io.Writer, historyFile string) (*Readline, error) {
	rl, err := readline.NewFromConfig(&readline.Config{
		HistoryFile:            historyFile,
		DisableAutoSaveHistory: true,
		Stdout:                 diag,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "could not initialize line editor")
	}
	return &Readline{rl: rl}, nil
}

// Prompt reads one line and records it in the history. Ctrl+C and Ctrl+D end
// the session.
func (r *Readline) Prompt(ctx context.Context, prompt string) (string, error) {
	line, err := r.read(ctx, prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(line) != "" {
		if err := r.rl.SaveToHistory(line); err != nil {
			return "", errors.Wrapf(err, "could not save history")
		}
	}
	return line, nil
}

// Ask reads one answer without recording it in the history.
func (r *Readline) Ask(ctx context.Context, prompt string) (string, error) {
	return r.read(ctx, prompt)
}

// read blocks in ReadLine until a line arrives or ctx is done. A cancelled
// context closes the editor, so the Readline cannot be used afterwards.
func (r *Readline) read(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", errors.WrapKind(errors.ErrInterrupted, err, "prompt cancelled")
	}
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = r.Close()
		case <-done:
		}
	}()

	r.rl.SetPrompt(prompt)
	line, err := r.rl.ReadLine()
	if ctx.Err() != nil {
		return "", errors.WrapKind(errors.ErrInterrupted, ctx.Err(), "prompt cancelled")
	}
	if err != nil {
		if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
			return "", errors.WrapKind(errors.ErrInterrupted, err, "input ended")
		}
		return "", errors.Wrapf(err, "could not read input")
	}
	return line, nil
}

func (r *Readline) Close() error {
	r.closeOnce.Do(func() {
		r.closeErr = r.rl.Close()
	})
	return r.closeErr
}

type readResult struct {
	line string
	err  error
}

// LineReader prompts on a plain reader, for piped or redirected input. Lines
// are read by a background goroutine so that a prompt can be abandoned when
// its context is cancelled.
type LineReader struct {
	in    *bufio.Reader
	diag  io.Writer
	start sync.Once
	lines chan readResult
	// err is the read error that ended input, once it has been seen.
	err error
}

func NewLineReader(in io.Reader, diag io.Writer) *LineReader {
	return &LineReader{in: bufio.NewReader(in), diag: diag, lines: make(chan readResult)}
}

func (l *LineReader) readLines() {
	for {
		line, err := l.in.ReadString('\n')
		l.lines <- readResult{line: line, err: err}
		if err != nil {
			return
		}
	}
}

// Prompt writes prompt to the diagnostic writer and reads one line. The end
// of input or a cancelled context ends the session.
func (l *LineReader) Prompt(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", errors.WrapKind(errors.ErrInterrupted, err, "prompt cancelled")
	}
	fmt.Fprint(l.diag, prompt)
	if l.err != nil {
		return "", l.endOfInput()
	}
	l.start.Do(func() { go l.readLines() })

	var res readResult
	select {
	case <-ctx.Done():
		return "", errors.WrapKind(errors.ErrInterrupted, ctx.Err(), "prompt cancelled")
	case res = <-l.lines:
	}

	if res.err != nil {
		l.err = res.err
		if res.err == io.EOF && res.line != "" {
			return strings.TrimRight(res.line, "\r\n"), nil
		}
		return "", l.endOfInput()
	}
	return strings.TrimRight(res.line, "\r\n"), nil
}

func (l *LineReader) endOfInput() error {
	if l.err == io.EOF {
		return errors.WrapKind(errors.ErrInterrupted, l.err, "input ended")
	}
	return errors.Wrapf(l.err, "could not read input")
}

func (l *LineReader) Close() error {
	return nil
}

// Prompter is an agent.Prompter that holds resources.
type Prompter interface {
	agent.Prompter
	io.Closer
}

// NewPrompter returns a Readline when in is an interactive terminal and a
// LineReader otherwise.
func NewPrompter(in io.Reader, diag io.Writer, historyFile string) (Prompter, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		rl, err := NewReadline(diag, historyFile)
		if err != nil {
			return nil, err
		}
		return rl, nil
	}
	return NewLineReader(in, diag), nil
}
