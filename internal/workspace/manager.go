// Package workspace provisions the directory a workflow run executes in.
// Paths come from a template with {name}, {timestamp} and {date} placeholders
// so recurring workflows get a fresh, dated directory per fire.
package workspace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultTemplate is used when a workflow carries no template of its own.
const DefaultTemplate = "{name}/{timestamp}"

// maxNameLen caps the sanitized workflow name inside a path.
const maxNameLen = 30

// Manager creates run workspaces under a base directory.
type Manager struct {
	baseDir string
}

// NewManager returns a manager rooted at baseDir.
func NewManager(baseDir string) *Manager {
	return &Manager{baseDir: baseDir}
}

// BaseDir returns the workspace root.
func (m *Manager) BaseDir() string {
	return m.baseDir
}

// Ensure resolves the template for a fire at the given instant, creates the
// directory structure and seed files, and returns the absolute path.
func (m *Manager) Ensure(template, workflowName string, at time.Time) (string, error) {
	if template == "" {
		template = DefaultTemplate
	}

	rel := ExpandTemplate(template, workflowName, at)
	path, err := filepath.Abs(filepath.Join(m.baseDir, rel))
	if err != nil {
		return "", fmt.Errorf("resolving workspace path: %w", err)
	}

	// Refuse templates that climb out of the base directory.
	base, err := filepath.Abs(m.baseDir)
	if err != nil {
		return "", fmt.Errorf("resolving workspace base: %w", err)
	}
	if path != base && !strings.HasPrefix(path, base+string(filepath.Separator)) {
		return "", fmt.Errorf("workspace template %q escapes base directory", template)
	}

	for _, dir := range []string{path, filepath.Join(path, "agent_outputs"), filepath.Join(path, "resources")} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("creating workspace directory: %w", err)
		}
	}

	if err := m.seedContext(path, workflowName, at); err != nil {
		return "", err
	}

	log.Debug().Str("path", path).Str("workflow", workflowName).Msg("Workspace ready")
	return path, nil
}

// ExpandTemplate substitutes the {name}, {timestamp} and {date} placeholders.
func ExpandTemplate(template, workflowName string, at time.Time) string {
	replacer := strings.NewReplacer(
		"{name}", SanitizeName(workflowName),
		"{timestamp}", at.Format("20060102-150405"),
		"{date}", at.Format("2006-01-02"),
	)
	return replacer.Replace(template)
}

// SanitizeName lowercases a workflow name and strips everything that does not
// belong in a path segment.
func SanitizeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, " ", "-")

	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		}
	}

	out := b.String()
	if len(out) > maxNameLen {
		out = out[:maxNameLen]
	}
	if out == "" {
		out = "workflow"
	}
	return out
}

// workspaceInfo is the metadata file written into every new workspace.
type workspaceInfo struct {
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
	Status    string `json:"status"`
}

// seedContext writes the context and metadata files. Existing files are left
// alone so re-firing into the same directory never clobbers agent work.
func (m *Manager) seedContext(path, workflowName string, at time.Time) error {
	contextPath := filepath.Join(path, "context-main.md")
	if _, err := os.Stat(contextPath); os.IsNotExist(err) {
		content := fmt.Sprintf(`# %s

## Task Description
Scheduled run of workflow %q.

## Agents and Roles
<!-- Agent information will be added as they are spawned -->

## Progress Summary
<!-- Progress will be updated as the pipeline advances -->

## Key Findings
<!-- Important findings and results will be summarized here -->
`, workflowName, workflowName)
		if err := os.WriteFile(contextPath, []byte(content), 0o644); err != nil {
			return fmt.Errorf("writing context file: %w", err)
		}
	}

	infoPath := filepath.Join(path, "workspace-info.json")
	if _, err := os.Stat(infoPath); os.IsNotExist(err) {
		info := workspaceInfo{
			Name:      workflowName,
			CreatedAt: at.UTC().Format(time.RFC3339),
			Status:    "initialized",
		}
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding workspace metadata: %w", err)
		}
		if err := os.WriteFile(infoPath, data, 0o644); err != nil {
			return fmt.Errorf("writing workspace metadata: %w", err)
		}
	}

	return nil
}
