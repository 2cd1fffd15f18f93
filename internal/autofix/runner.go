package autofix

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// PromptPlaceholder in CommandRunner.Args is replaced by the prompt.
const PromptPlaceholder = "{prompt}"

const defaultMaxOutputBytes = 64 * 1024

// Runner hands a prompt to the fixing agent and waits for it to finish.
type Runner interface {
	Run(ctx context.Context, prompt string) (string, error)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, prompt string) (string, error)

func (f RunnerFunc) Run(ctx context.Context, prompt string) (string, error) { return f(ctx, prompt) }

// CommandRunner executes a CLI agent directly, without a shell.
type CommandRunner struct {
	Command        string
	Args           []string
	WorkDir        string
	MaxOutputBytes int
}

func (r *CommandRunner) Run(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(r.Command) == "" {
		return "", fmt.Errorf("missing fix command")
	}

	args := make([]string, 0, len(r.Args)+1)
	placed := false
	for _, a := range r.Args {
		if strings.Contains(a, PromptPlaceholder) {
			a = strings.ReplaceAll(a, PromptPlaceholder, prompt)
			placed = true
		}
		args = append(args, a)
	}
	if !placed {
		args = append(args, prompt)
	}

	cmd := exec.CommandContext(ctx, r.Command, args...)
	if r.WorkDir != "" {
		dir, err := filepath.Abs(r.WorkDir)
		if err != nil {
			dir = r.WorkDir
		}
		cmd.Dir = dir
	}

	output, err := cmd.CombinedOutput()
	result := truncate(string(output), r.maxOutput())
	if err != nil {
		if ctx.Err() != nil {
			return result, fmt.Errorf("fix command timed out or cancelled: %w", ctx.Err())
		}
		return result, fmt.Errorf("fix command: %w", err)
	}
	return result, nil
}

func (r *CommandRunner) maxOutput() int {
	if r.MaxOutputBytes > 0 {
		return r.MaxOutputBytes
	}
	return defaultMaxOutputBytes
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "\n... (output truncated)"
}
