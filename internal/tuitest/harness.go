// Package tuitest drives the compiled client inside a pseudo terminal and
// records what it draws, for end-to-end assertions on rendered screens.
package tuitest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/creack/pty"
)

const (
	defaultCols    = 120
	defaultRows    = 32
	defaultTimeout = 10 * time.Second
)

// Step is one scripted interaction: wait, then type.
type Step struct {
	Wait time.Duration
	Keys []byte
}

// Options configures how the program is spawned and driven.
type Options struct {
	Command []string
	Dir     string
	Env     []string
	Cols    int
	Rows    int
	Script  []Step
	Timeout time.Duration
	// AllowInterrupt accepts exit-by-SIGINT as success, for programs that
	// are quit with Ctrl+C.
	AllowInterrupt bool
}

// Common key sequences for scripts.
var (
	KeyEnter = []byte{'\r'}
	KeySpace = []byte{' '}
	KeyTab   = []byte{'\t'}
	KeyCtrlC = []byte{3}
)

// Run spawns the command in a PTY, replays the script, and captures the
// terminal stream until the program exits.
func Run(ctx context.Context, opts Options) (*Capture, error) {
	if len(opts.Command) == 0 {
		return nil, errors.New("tuitest: command is required")
	}
	cols, rows := opts.Cols, opts.Rows
	if cols <= 0 {
		cols = defaultCols
	}
	if rows <= 0 {
		rows = defaultRows
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, opts.Command[0], opts.Command[1:]...)
	cmd.Dir = opts.Dir
	cmd.Env = withTerm(append(os.Environ(), opts.Env...))

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)})
	if err != nil {
		return nil, fmt.Errorf("tuitest: start program: %w", err)
	}
	defer func() { _ = ptmx.Close() }()

	var output bytes.Buffer
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		var pending []byte
		buf := make([]byte, 4096)
		for {
			n, readErr := ptmx.Read(buf)
			if n > 0 {
				output.Write(buf[:n])
				pending = answerQueries(ptmx, append(pending, buf[:n]...))
			}
			if readErr != nil {
				return
			}
		}
	}()

	for _, step := range opts.Script {
		if step.Wait > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("tuitest: script interrupted: %w", ctx.Err())
			case <-time.After(step.Wait):
			}
		}
		if len(step.Keys) > 0 {
			if _, err := ptmx.Write(step.Keys); err != nil {
				return nil, fmt.Errorf("tuitest: write input: %w", err)
			}
		}
	}

	waitErr := make(chan error, 1)
	go func() { waitErr <- cmd.Wait() }()

	select {
	case err := <-waitErr:
		if err != nil && !exitAccepted(err, opts.AllowInterrupt) {
			return nil, fmt.Errorf("tuitest: program exited with error: %w", err)
		}
	case <-ctx.Done():
		return nil, fmt.Errorf("tuitest: timeout waiting for program exit: %w", ctx.Err())
	}

	_ = ptmx.Close()
	<-drained
	return newCapture(output.Bytes()), nil
}

func exitAccepted(err error, allowInterrupt bool) bool {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 0 {
		return true
	}
	if allowInterrupt && strings.Contains(err.Error(), "signal: interrupt") {
		return true
	}
	return errors.Is(err, io.EOF)
}

// terminalQueries are the status requests a TUI sends on startup; each needs
// a canned reply or the program blocks waiting for the "terminal".
var terminalQueries = []struct {
	request  []byte
	response []byte
}{
	{[]byte("\x1b[6n"), []byte("\x1b[1;1R")},
	{[]byte("\x1b]10;?\x07"), []byte("\x1b]10;rgb:cccc/cccc/cccc\x07")},
	{[]byte("\x1b]10;?\x1b\\"), []byte("\x1b]10;rgb:cccc/cccc/cccc\x1b\\")},
	{[]byte("\x1b]11;?\x07"), []byte("\x1b]11;rgb:0000/0000/0000\x07")},
	{[]byte("\x1b]11;?\x1b\\"), []byte("\x1b]11;rgb:0000/0000/0000\x1b\\")},
}

// answerQueries replies to any recognized terminal query in the buffered
// stream and returns the unconsumed tail.
func answerQueries(w io.Writer, buf []byte) []byte {
	for {
		matched := false
		for _, q := range terminalQueries {
			if idx := bytes.Index(buf, q.request); idx >= 0 {
				buf = buf[idx+len(q.request):]
				_, _ = w.Write(q.response)
				matched = true
			}
		}
		if !matched {
			break
		}
	}
	// Queries can span reads; keep a short tail.
	if len(buf) > 256 {
		buf = buf[len(buf)-64:]
	}
	return buf
}

func withTerm(env []string) []string {
	for _, entry := range env {
		if strings.HasPrefix(entry, "TERM=") {
			return env
		}
	}
	return append(env, "TERM=xterm-256color")
}
