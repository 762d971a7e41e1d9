package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/jefeworks/jefe/internal/scheduler"
)

// Pipeline is an orchestrator that chains agents: each agent gets the goal
// plus the previous agent's output, and the last agent's output is the run
// result. It implements scheduler.Orchestrator.
type Pipeline struct {
	registry      *Registry
	defaultAgents []string
}

// NewPipeline creates a pipeline over the registry. defaultAgents is the
// sequence used when a workflow names no agent types of its own.
func NewPipeline(registry *Registry, defaultAgents []string) *Pipeline {
	return &Pipeline{
		registry:      registry,
		defaultAgents: defaultAgents,
	}
}

// Factory adapts the pipeline to the scheduler's per-dispatch factory. The
// pipeline itself is stateless between runs, so every dispatch can share it.
func (p *Pipeline) Factory() scheduler.OrchestratorFactory {
	return func() scheduler.Orchestrator { return p }
}

// Run executes the agent sequence for one workflow fire.
func (p *Pipeline) Run(ctx context.Context, req scheduler.RunRequest) (string, error) {
	agents := req.AgentTypes
	if len(agents) == 0 {
		agents = p.defaultAgents
	}
	if len(agents) == 0 {
		return "", fmt.Errorf("workflow %s: no agents configured", req.Name)
	}

	var output string
	for i, name := range agents {
		agent, ok := p.registry.Get(name)
		if !ok {
			return "", fmt.Errorf("workflow %s: unknown agent %q", req.Name, name)
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}

		log.Info().
			Str("workflow", req.Name).
			Str("agent", name).
			Int("step", i+1).
			Int("steps", len(agents)).
			Msg("Running pipeline agent")

		result, err := agent.Execute(ctx, Task{
			Goal:          req.Goal,
			WorkspacePath: req.WorkspacePath,
			Input:         output,
		})
		if err != nil {
			return "", fmt.Errorf("step %d/%d: %w", i+1, len(agents), err)
		}

		if err := writeAgentOutput(req.WorkspacePath, name, result); err != nil {
			log.Warn().Err(err).Str("agent", name).Msg("Could not persist agent output")
		}
		output = result
	}

	return strings.TrimSpace(output), nil
}
