package exec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/mattn/go-shellwords"
)

// Command describes one process to launch.
type Command struct {
	Name string
	Args []string
	// Dir is the working directory; empty means the current one.
	Dir string
	// Env is appended to the inherited environment.
	Env []string
}

// ExecutionResult holds the outcome of a command execution.
type ExecutionResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// Executor defines an interface for running external commands.
// This allows for mocking in tests.
type Executor interface {
	Run(ctx context.Context, cmd Command) (*ExecutionResult, error)
}

// CommandExecutor is a concrete implementation of the Executor interface
// that runs actual commands on the host system.
type CommandExecutor struct{}

// NewCommandExecutor creates a new CommandExecutor.
func NewCommandExecutor() *CommandExecutor {
	return &CommandExecutor{}
}

// Run executes the given command and returns its result. The process is
// killed when ctx is done.
func (e *CommandExecutor) Run(ctx context.Context, command Command) (*ExecutionResult, error) {
	cmd := exec.CommandContext(ctx, command.Name, command.Args...)
	cmd.Dir = command.Dir
	if len(command.Env) > 0 {
		cmd.Env = append(os.Environ(), command.Env...)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()

	result := &ExecutionResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: cmd.ProcessState.ExitCode(),
		Duration: time.Since(start),
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return result, fmt.Errorf("command %s interrupted: %w", command.Name, ctxErr)
	}

	// Non-zero exit codes are reported through ExitCode; only failures to
	// start the process are errors.
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, err
		}
	}

	return result, nil
}

// ParseCommandLine splits a shell-style command line into a Command.
// Quotes and escapes are honoured. Variables are left for the command to
// expand; shell operators such as && or | are rejected, use sh -c for those.
func ParseCommandLine(line string) (Command, error) {
	p := shellwords.NewParser()
	words, err := p.Parse(line)
	if err != nil {
		return Command{}, fmt.Errorf("failed to parse command %q: %w", line, err)
	}
	if p.Position >= 0 {
		return Command{}, fmt.Errorf("command %q uses shell operators; wrap it in sh -c", line)
	}
	if len(words) == 0 {
		return Command{}, fmt.Errorf("empty command")
	}
	return Command{Name: words[0], Args: words[1:]}, nil
}
