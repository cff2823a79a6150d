// Package composecli wraps the docker compose command line behind the fixed
// verb contract the launcher depends on: up, down, exec, logs. Every call
// shells out against a rendered descriptor file; nothing here talks to the
// container runtime API directly.
package composecli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	shellwords "github.com/mattn/go-shellwords"
)

// Error wraps a failed compose invocation with enough context to diagnose
// without re-running: the full command line and a stderr excerpt.
type Error struct {
	CommandLine string
	Stderr      string
	Err         error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("compose command failed: %s: %v", e.CommandLine, e.Err)
	if excerpt := strings.TrimSpace(e.Stderr); excerpt != "" {
		msg += "\n" + excerpt
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Result captures the output of one exec invocation.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// ExecOptions tune an in-container command.
type ExecOptions struct {
	// Stdin is piped to the command when non-empty.
	Stdin string
	// Env entries are passed as -e KEY=VALUE pairs.
	Env []string
	// Check turns a non-zero exit into an error.
	Check bool
}

// Runner shells out to a configurable compose binary ("docker compose" by
// default, possibly with extra words such as "podman compose").
type Runner struct {
	bin []string
}

// NewRunner splits composeBin into argv words. Quoting is honoured so a
// manifest may configure e.g. a wrapper script with embedded spaces.
func NewRunner(composeBin string) (*Runner, error) {
	words, err := shellwords.Parse(composeBin)
	if err != nil {
		return nil, fmt.Errorf("parse compose binary %q: %w", composeBin, err)
	}
	if len(words) == 0 {
		return nil, fmt.Errorf("compose binary is empty")
	}
	return &Runner{bin: words}, nil
}

func (r *Runner) argv(composeFile string, args ...string) []string {
	out := append([]string{}, r.bin...)
	out = append(out, "-f", composeFile)
	return append(out, args...)
}

func (r *Runner) run(ctx context.Context, composeFile string, stdin string, args ...string) (Result, error) {
	argv := r.argv(composeFile, args...)
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		return res, &Error{CommandLine: strings.Join(argv, " "), Stderr: res.Stderr, Err: err}
	}
	return res, nil
}

// Up starts the stack detached. Starting an already-running stack is a no-op
// for compose, so Up is idempotent.
func (r *Runner) Up(ctx context.Context, composeFile string) error {
	res, err := r.run(ctx, composeFile, "", "up", "-d")
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return &Error{
			CommandLine: strings.Join(r.argv(composeFile, "up", "-d"), " "),
			Stderr:      res.Stderr,
			Err:         fmt.Errorf("exit status %d", res.ExitCode),
		}
	}
	return nil
}

// Down stops the stack and removes its volumes. It is best-effort and never
// reports failure: cleanup paths call it unconditionally, including for
// stacks that were never started.
func (r *Runner) Down(ctx context.Context, composeFile string) {
	_, _ = r.run(ctx, composeFile, "", "down", "--volumes")
}

// Exec runs command inside the named service of a running stack with
// `exec -T`, capturing stdout, stderr, and the exit code. A non-zero exit is
// reported in the result, not as an error, unless opts.Check is set.
func (r *Runner) Exec(ctx context.Context, composeFile, service string, command []string, opts ExecOptions) (Result, error) {
	args := []string{"exec", "-T"}
	for _, kv := range opts.Env {
		args = append(args, "-e", kv)
	}
	args = append(args, service)
	args = append(args, command...)
	res, err := r.run(ctx, composeFile, opts.Stdin, args...)
	if err != nil {
		return res, err
	}
	if opts.Check && res.ExitCode != 0 {
		return res, &Error{
			CommandLine: strings.Join(r.argv(composeFile, args...), " "),
			Stderr:      res.Stderr,
			Err:         fmt.Errorf("exit status %d", res.ExitCode),
		}
	}
	return res, nil
}

// Logs fetches the last tail lines from the stack, optionally restricted to
// one service.
func (r *Runner) Logs(ctx context.Context, composeFile, service string, tail int) (string, error) {
	args := []string{"logs", "--tail", strconv.Itoa(tail)}
	if service != "" {
		args = append(args, service)
	}
	res, err := r.run(ctx, composeFile, "", args...)
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		return "", &Error{
			CommandLine: strings.Join(r.argv(composeFile, args...), " "),
			Stderr:      res.Stderr,
			Err:         fmt.Errorf("exit status %d", res.ExitCode),
		}
	}
	return res.Stdout, nil
}
