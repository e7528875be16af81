package llm

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/matsen/firstrecord/internal/apperr"
)

// DefaultClaudeCommand is the claude CLI binary.
const DefaultClaudeCommand = "claude"

// ClaudeCLI runs prompts through the claude command-line tool.
type ClaudeCLI struct {
	Command string
	Timeout time.Duration
}

// Generate implements Generator.
func (c ClaudeCLI) Generate(ctx context.Context, model, prompt string) (string, error) {
	command := c.Command
	if command == "" {
		command = DefaultClaudeCommand
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultGenerateTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, command, "--model", model, "-p", prompt)
	output, err := cmd.Output()
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: claude CLI timed out after %s", apperr.ErrUpstreamUnavailable, timeout)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", fmt.Errorf("%w: claude CLI error: %s", apperr.ErrUpstreamUnavailable, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", fmt.Errorf("%w: claude CLI error: %v", apperr.ErrUpstreamUnavailable, err)
	}
	return strings.TrimSpace(string(output)), nil
}
