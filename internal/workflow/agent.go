// Package workflow executes a workflow's goal by running a pipeline of
// agents inside the run workspace. Agents are external commands described in
// a YAML file; each agent receives the goal and the previous agent's output.
package workflow

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Task is one agent's unit of work within a pipeline.
type Task struct {
	Goal          string
	WorkspacePath string
	// Input is the previous agent's output, empty for the first agent.
	Input string
}

// Agent performs one pipeline step.
type Agent interface {
	Name() string
	Execute(ctx context.Context, task Task) (string, error)
}

// CommandAgent runs an external command. The command's args may reference
// {goal}, {workspace} and {input}; stdout is the agent's output.
type CommandAgent struct {
	name        string
	description string
	command     string
	args        []string
	timeout     time.Duration
	maxOutput   int
}

// Name returns the agent's registry name.
func (a *CommandAgent) Name() string { return a.name }

// Execute runs the command with the task's values substituted into its args.
func (a *CommandAgent) Execute(ctx context.Context, task Task) (string, error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	replacer := strings.NewReplacer(
		"{goal}", task.Goal,
		"{workspace}", task.WorkspacePath,
		"{input}", task.Input,
	)
	args := make([]string, len(a.args))
	for i, arg := range a.args {
		args[i] = replacer.Replace(arg)
	}

	cmd := exec.CommandContext(ctx, a.command, args...)
	if task.WorkspacePath != "" {
		cmd.Dir = task.WorkspacePath
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	log.Debug().
		Str("agent", a.name).
		Dur("took", time.Since(start)).
		Msg("Agent command finished")

	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("agent %s timed out after %s", a.name, a.timeout)
		}
		return "", fmt.Errorf("agent %s: %w: %s", a.name, err, firstLine(stderr.String()))
	}

	output := stdout.String()
	if a.maxOutput > 0 && len(output) > a.maxOutput {
		output = output[:a.maxOutput]
	}
	return output, nil
}

// writeAgentOutput drops an agent's output into the workspace so later
// inspection does not depend on the run history database.
func writeAgentOutput(workspacePath, agentName, output string) error {
	if workspacePath == "" {
		return nil
	}
	dir := filepath.Join(workspacePath, "agent_outputs")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating agent output directory: %w", err)
	}
	path := filepath.Join(dir, agentName+".md")
	if err := os.WriteFile(path, []byte(output), 0o644); err != nil {
		return fmt.Errorf("writing agent output: %w", err)
	}
	return nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
