package workflow

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// Definition is one agent entry in the YAML agents file.
type Definition struct {
	Name        string        `yaml:"name"`
	Description string        `yaml:"description"`
	Command     string        `yaml:"command"`
	Args        []string      `yaml:"args"`
	Timeout     time.Duration `yaml:"timeout"`
}

// agentsFile is the YAML document layout.
type agentsFile struct {
	Agents []Definition `yaml:"agents"`
}

// Registry holds the agents a pipeline can draw from.
type Registry struct {
	agents map[string]Agent

	defaultTimeout time.Duration
	maxOutput      int
}

// RegistryOptions bound every command agent the registry creates.
type RegistryOptions struct {
	// DefaultTimeout applies to definitions without their own timeout.
	DefaultTimeout time.Duration
	// MaxOutputBytes truncates agent output (0 means unlimited).
	MaxOutputBytes int
}

// NewRegistry returns an empty registry.
func NewRegistry(opts RegistryOptions) *Registry {
	return &Registry{
		agents:         make(map[string]Agent),
		defaultTimeout: opts.DefaultTimeout,
		maxOutput:      opts.MaxOutputBytes,
	}
}

// Register adds an agent, replacing any previous agent with the same name.
func (r *Registry) Register(a Agent) {
	r.agents[a.Name()] = a
}

// Get returns the agent registered under name.
func (r *Registry) Get(name string) (Agent, bool) {
	a, ok := r.agents[name]
	return a, ok
}

// Names returns all registered agent names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.agents))
	for name := range r.agents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LoadFile reads agent definitions from a YAML file and registers them.
func (r *Registry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading agents file: %w", err)
	}
	return r.LoadYAML(data)
}

// LoadYAML registers every definition in the given YAML document.
func (r *Registry) LoadYAML(data []byte) error {
	var file agentsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parsing agents file: %w", err)
	}

	for i, def := range file.Agents {
		if def.Name == "" {
			return fmt.Errorf("agent %d: name is required", i)
		}
		if def.Command == "" {
			return fmt.Errorf("agent %q: command is required", def.Name)
		}
		timeout := def.Timeout
		if timeout == 0 {
			timeout = r.defaultTimeout
		}
		r.Register(&CommandAgent{
			name:        def.Name,
			description: def.Description,
			command:     def.Command,
			args:        def.Args,
			timeout:     timeout,
			maxOutput:   r.maxOutput,
		})
	}
	return nil
}
