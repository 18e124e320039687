// Package runner executes external programs with output capture,
// environment variables and context support for cancellation.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"time"
)

// DefaultWaitDelay bounds how long a cancelled command may hold its output
// pipes open before they are closed.
const DefaultWaitDelay = 2 * time.Second

// Result holds the output and exit status of a command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner runs a program to completion.
type Runner interface {
	Run(ctx context.Context, program string, args []string, opts ...Option) (*Result, error)
}

// Options configures command execution behavior.
type Options struct {
	// WorkingDir is the directory the command runs in
	WorkingDir string

	// Env is appended to the current environment
	Env map[string]string

	// StdoutWriter and StderrWriter receive output as it is produced,
	// in addition to the captured copy
	StdoutWriter io.Writer
	StderrWriter io.Writer

	// WaitDelay bounds the wait for output after cancellation
	WaitDelay time.Duration
}

// Option is a function that modifies Options.
type Option func(*Options)

// WithWorkingDir sets the working directory.
func WithWorkingDir(dir string) Option {
	return func(o *Options) {
		o.WorkingDir = dir
	}
}

// WithEnvVar adds a single environment variable.
func WithEnvVar(key, value string) Option {
	return func(o *Options) {
		if o.Env == nil {
			o.Env = make(map[string]string)
		}
		o.Env[key] = value
	}
}

// WithStdoutWriter streams stdout to w.
func WithStdoutWriter(w io.Writer) Option {
	return func(o *Options) {
		o.StdoutWriter = w
	}
}

// WithStderrWriter streams stderr to w.
func WithStderrWriter(w io.Writer) Option {
	return func(o *Options) {
		o.StderrWriter = w
	}
}

// WithWaitDelay overrides DefaultWaitDelay.
func WithWaitDelay(d time.Duration) Option {
	return func(o *Options) {
		o.WaitDelay = d
	}
}

// CommandRunner runs programs with os/exec.
type CommandRunner struct{}

// New creates a CommandRunner.
func New() *CommandRunner {
	return &CommandRunner{}
}

// Run implements Runner. A non-zero exit is returned as an error together
// with the captured Result. Cancelling ctx kills the program together with
// the processes it started.
func (r *CommandRunner) Run(ctx context.Context, program string, args []string, opts ...Option) (*Result, error) {
	options := &Options{WaitDelay: DefaultWaitDelay}
	for _, opt := range opts {
		opt(options)
	}

	cmd := exec.CommandContext(ctx, program, args...)
	killGroupOnCancel(cmd)
	cmd.WaitDelay = options.WaitDelay
	if options.WorkingDir != "" {
		cmd.Dir = options.WorkingDir
	}
	if len(options.Env) > 0 {
		cmd.Env = os.Environ()
		keys := make([]string, 0, len(options.Env))
		for k := range options.Env {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, options.Env[k]))
		}
	}

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = teeTo(&stdoutBuf, options.StdoutWriter)
	cmd.Stderr = teeTo(&stderrBuf, options.StderrWriter)

	err := cmd.Run()

	result := &Result{
		Stdout: stdoutBuf.String(),
		Stderr: stderrBuf.String(),
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		result.ExitCode = 0
	case errors.As(err, &exitErr):
		result.ExitCode = exitErr.ExitCode()
	default:
		result.ExitCode = -1
	}

	if err != nil {
		return result, fmt.Errorf("command execution failed: %w", err)
	}
	return result, nil
}

func teeTo(buf *bytes.Buffer, w io.Writer) io.Writer {
	if w == nil {
		return buf
	}
	return io.MultiWriter(buf, w)
}
