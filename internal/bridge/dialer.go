package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/mattn/go-shellwords"
)

// Conn is a running worker.
type Conn struct {
	// Stdout carries responses from the worker.
	Stdout io.Reader
	// Stdin carries requests to the worker.
	Stdin io.WriteCloser
	// Close releases the worker. It may be nil.
	Close func() error
}

// Dialer starts workers.
type Dialer interface {
	Dial(ctx context.Context) (*Conn, error)
}

// DialFunc adapts a function to a Dialer.
type DialFunc func(ctx context.Context) (*Conn, error)

// Dial calls f.
func (f DialFunc) Dial(ctx context.Context) (*Conn, error) { return f(ctx) }

// ExecDialer starts the worker as a child process.
type ExecDialer struct {
	Args []string
	Env  []string
	// Stderr receives the worker's diagnostics. Nil discards them.
	Stderr io.Writer
}

// NewExecDialer parses a shell-style command line.
func NewExecDialer(command string) (*ExecDialer, error) {
	parser := shellwords.NewParser()
	parser.ParseEnv = true
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse worker command: %w", err)
	}
	if len(args) == 0 {
		return nil, errors.New("worker command empty")
	}
	return &ExecDialer{Args: args}, nil
}

// Dial starts the process. The worker outlives ctx, which only bounds the
// start itself.
func (d *ExecDialer) Dial(ctx context.Context) (*Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cmd := exec.Command(d.Args[0], d.Args[1:]...)
	cmd.Env = append(os.Environ(), d.Env...)
	cmd.Stderr = d.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start worker %q: %w", strings.Join(d.Args, " "), err)
	}
	log.Debug("worker started", "pid", cmd.Process.Pid, "cmd", d.Args[0])

	return &Conn{
		Stdout: stdout,
		Stdin:  stdin,
		Close: func() error {
			_ = stdin.Close()
			_ = cmd.Process.Kill()
			err := cmd.Wait()
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				// Killed on purpose.
				return nil
			}
			return err
		},
	}, nil
}

// ServeFunc runs a worker's side of the protocol on r and w until r ends.
type ServeFunc func(ctx context.Context, r io.Reader, w io.Writer) error

// PipeDialer runs serve in-process over pipes instead of starting a child.
func PipeDialer(serve ServeFunc) Dialer {
	return DialFunc(func(ctx context.Context) (*Conn, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		reqR, reqW := io.Pipe()
		respR, respW := io.Pipe()
		sctx, cancel := context.WithCancel(context.Background())
		go func() {
			err := serve(sctx, reqR, respW)
			respW.CloseWithError(err)
		}()
		return &Conn{
			Stdout: respR,
			Stdin:  reqW,
			Close: func() error {
				cancel()
				reqW.Close()
				respR.Close()
				return nil
			},
		}, nil
	})
}
