// Package process runs local commands on behalf of the CLI and the deploy core.
package process

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Runner executes local commands, connecting them to the terminal.
type Runner struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	dir    string
	env    []string
	logger *zap.Logger
}

// Option configures a Runner
type Option func(*Runner)

// WithOutput redirects the child's stdout and stderr
func WithOutput(stdout, stderr io.Writer) Option {
	return func(r *Runner) {
		r.stdout = stdout
		r.stderr = stderr
	}
}

// WithStdin sets the child's stdin
func WithStdin(stdin io.Reader) Option {
	return func(r *Runner) {
		r.stdin = stdin
	}
}

// WithDir sets the working directory of every command
func WithDir(dir string) Option {
	return func(r *Runner) {
		r.dir = dir
	}
}

// WithEnv appends KEY=VALUE pairs to the inherited environment
func WithEnv(env ...string) Option {
	return func(r *Runner) {
		r.env = append(r.env, env...)
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// NewRunner creates a Runner attached to the process's own stdio.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		stdin:  os.Stdin,
		stdout: os.Stdout,
		stderr: os.Stderr,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes name with args and blocks until it exits. The child shares
// the terminal so interactive commands work. It reports false without an
// error when the command ran and exited non-zero; an error means it could
// not be started at all.
func (r *Runner) Run(name string, args ...string) (bool, error) {
	cmd := r.command(r.dir, name, args...)
	cmd.Stdin = r.stdin
	cmd.Stdout = r.stdout
	cmd.Stderr = r.stderr

	r.logger.Debug("running command", zap.String("cmd", commandLine(name, args)), zap.String("dir", cmd.Dir))

	err := cmd.Run()
	if err == nil {
		return true, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		r.logger.Debug("command exited non-zero",
			zap.String("cmd", commandLine(name, args)),
			zap.Int("exit_code", exitErr.ExitCode()))
		return false, nil
	}

	return false, fmt.Errorf("failed to run %s: %w", name, err)
}

// Output executes args[0] in dir, streaming stdout and stderr line by line
// to the runner's writers while also collecting both. A non-zero exit is an
// error carrying the collected output.
func (r *Runner) Output(dir string, args ...string) ([]byte, error) {
	if len(args) == 0 {
		return nil, errors.New("no command given")
	}

	cmd := r.command(dir, args[0], args[1:]...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start command: %w", err)
	}

	var mu sync.Mutex
	var output bytes.Buffer
	var wg sync.WaitGroup
	wg.Add(2)

	pipe := func(src io.Reader, dst io.Writer) {
		defer wg.Done()
		scanner := bufio.NewScanner(src)
		scanner.Buffer(make([]byte, 64*1024), 10*1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			fmt.Fprintln(dst, line)
			mu.Lock()
			output.WriteString(line + "\n")
			mu.Unlock()
		}
	}
	go pipe(stdout, r.stdout)
	go pipe(stderr, r.stderr)

	wg.Wait()

	if err := cmd.Wait(); err != nil {
		return output.Bytes(), fmt.Errorf("%w\n%s", err, output.String())
	}

	return output.Bytes(), nil
}

func (r *Runner) command(dir, name string, args ...string) *exec.Cmd {
	cmd := exec.Command(name, args...)
	cmd.Dir = dir
	if len(r.env) > 0 {
		cmd.Env = append(os.Environ(), r.env...)
	}
	return cmd
}

func commandLine(name string, args []string) string {
	return strings.TrimSpace(name + " " + strings.Join(args, " "))
}
