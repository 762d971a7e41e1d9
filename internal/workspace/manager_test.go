package workspace

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestExpandTemplate(t *testing.T) {
	at := time.Date(2024, 6, 15, 12, 30, 45, 0, time.UTC)

	tests := []struct {
		name     string
		template string
		workflow string
		want     string
	}{
		{
			name:     "all placeholders",
			template: "{name}/{date}/{timestamp}",
			workflow: "Nightly Backup",
			want:     "nightly-backup/2024-06-15/20240615-123045",
		},
		{
			name:     "no placeholders passes through",
			template: "fixed/location",
			workflow: "anything",
			want:     "fixed/location",
		},
		{
			name:     "repeated placeholder",
			template: "{name}-{name}",
			workflow: "x",
			want:     "x-x",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExpandTemplate(tt.template, tt.workflow, at); got != tt.want {
				t.Errorf("ExpandTemplate() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Nightly Backup", "nightly-backup"},
		{"report: week #12!", "reportweek-12"},
		{"  padded  ", "padded"},
		{"", "workflow"},
		{"!!!", "workflow"},
		{"a-very-long-workflow-name-that-never-ends", "a-very-long-workflow-name-that"},
	}

	for _, tt := range tests {
		if got := SanitizeName(tt.in); got != tt.want {
			t.Errorf("SanitizeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestManager_Ensure(t *testing.T) {
	base := t.TempDir()
	m := NewManager(base)
	at := time.Date(2024, 6, 15, 9, 0, 0, 0, time.UTC)

	path, err := m.Ensure("{name}/{date}", "Morning Report", at)
	if err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}

	want := filepath.Join(base, "morning-report", "2024-06-15")
	if path != want {
		t.Errorf("Ensure() = %q, want %q", path, want)
	}

	for _, sub := range []string{"agent_outputs", "resources"} {
		if fi, err := os.Stat(filepath.Join(path, sub)); err != nil || !fi.IsDir() {
			t.Errorf("missing workspace subdirectory %s", sub)
		}
	}
	for _, file := range []string{"context-main.md", "workspace-info.json"} {
		if _, err := os.Stat(filepath.Join(path, file)); err != nil {
			t.Errorf("missing workspace seed file %s", file)
		}
	}
}

func TestManager_EnsureDefaultTemplate(t *testing.T) {
	base := t.TempDir()
	m := NewManager(base)
	at := time.Date(2024, 6, 15, 9, 0, 0, 0, time.UTC)

	path, err := m.Ensure("", "adhoc", at)
	if err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}

	want := filepath.Join(base, "adhoc", "20240615-090000")
	if path != want {
		t.Errorf("Ensure() = %q, want %q", path, want)
	}
}

func TestManager_EnsureDoesNotClobberExistingFiles(t *testing.T) {
	base := t.TempDir()
	m := NewManager(base)
	at := time.Date(2024, 6, 15, 9, 0, 0, 0, time.UTC)

	path, err := m.Ensure("{name}", "repeat", at)
	if err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}

	marker := filepath.Join(path, "context-main.md")
	if err := os.WriteFile(marker, []byte("agent notes"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := m.Ensure("{name}", "repeat", at.Add(time.Hour)); err != nil {
		t.Fatalf("second Ensure() error = %v", err)
	}

	data, err := os.ReadFile(marker)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "agent notes" {
		t.Error("Ensure() overwrote an existing context file")
	}
}

func TestManager_EnsureRejectsEscapingTemplate(t *testing.T) {
	m := NewManager(t.TempDir())

	if _, err := m.Ensure("../outside", "sneaky", time.Now()); err == nil {
		t.Error("Ensure() accepted a template escaping the base directory")
	}
}
