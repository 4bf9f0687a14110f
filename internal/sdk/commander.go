package sdk

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"go.uber.org/zap"
)

// Command describes one tool invocation
type Command struct {
	Path  string
	Args  []string
	Dir   string
	Env   []string // appended to the parent environment
	Stdin string
}

// Result carries a finished command's exit code and combined output
type Result struct {
	ExitCode int
	Output   string
}

// Lines returns the non-empty output lines with line endings trimmed
func (r Result) Lines() []string {
	var lines []string
	for _, line := range strings.Split(r.Output, "\n") {
		line = strings.TrimRight(line, "\r")
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// HasLine reports whether the output contains needle as a complete line.
// Tool output arrives with CRLF endings over adb, so lines are compared
// trimmed.
func (r Result) HasLine(needle string) bool {
	for _, line := range r.Lines() {
		if strings.TrimSpace(line) == needle {
			return true
		}
	}
	return false
}

// Commander runs SDK tools. Run waits for completion and captures combined
// output; Start spawns a long-lived process and returns without waiting.
type Commander interface {
	Run(ctx context.Context, cmd Command) (Result, error)
	Start(cmd Command) (int, error)
}

// ExecCommander is the child-process Commander used outside tests
type ExecCommander struct {
	log *zap.Logger
}

// NewCommander returns a Commander backed by os/exec
func NewCommander(log *zap.Logger) *ExecCommander {
	return &ExecCommander{log: log}
}

// Run executes the command and waits. A non-zero exit is reported through
// Result.ExitCode, not as an error; the error return is reserved for the
// command failing to run at all.
func (e *ExecCommander) Run(ctx context.Context, c Command) (Result, error) {
	cmd := exec.CommandContext(ctx, c.Path, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	if c.Stdin != "" {
		cmd.Stdin = strings.NewReader(c.Stdin)
	}

	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	e.log.Debug("running command", zap.String("path", c.Path), zap.Strings("args", c.Args))

	err := cmd.Run()
	result := Result{Output: buf.String()}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return result, fmt.Errorf("failed to run %s: %w", c.Path, err)
	}

	return result, nil
}

// Start spawns the command detached from the caller and returns its pid. The
// exit status is reaped in the background and logged.
func (e *ExecCommander) Start(c Command) (int, error) {
	cmd := exec.Command(c.Path, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("failed to start %s: %w", c.Path, err)
	}

	pid := cmd.Process.Pid
	log := e.log.With(zap.String("path", c.Path), zap.Int("pid", pid))
	log.Info("started background process")

	go func() {
		if err := cmd.Wait(); err != nil {
			log.Warn("background process exited with error", zap.Error(err))
			return
		}
		log.Info("background process exited")
	}()

	return pid, nil
}
