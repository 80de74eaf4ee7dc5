package scenario

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeScenario(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadScenarioYAML(t *testing.T) {
	path := writeScenario(t, t.TempDir(), "crud.yaml", `
name: "Robot CRUD"
description: "Create then fetch"
setup:
  reset: true
steps:
  - name: "create"
    op: create
    draft:
      name: Marvin
      price: 42
      imageUrl: http://img.example/m.png
    capture: marvin
  - name: "fetch"
    op: get
    id: "{{marvin}}"
    expect:
      robot:
        name: Marvin
        price: 42
`)

	s, err := LoadScenario(path)
	if err != nil {
		t.Fatalf("LoadScenario() error: %v", err)
	}
	if s.Name != "Robot CRUD" || !s.Setup.Reset {
		t.Errorf("unexpected scenario: %+v", s)
	}
	if len(s.Steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(s.Steps))
	}
	if s.Steps[0].Draft.ImageURL != "http://img.example/m.png" || s.Steps[0].Capture != "marvin" {
		t.Errorf("unexpected create step: %+v", s.Steps[0])
	}
	if s.Steps[1].Expect.Robot["name"] != "Marvin" {
		t.Errorf("unexpected expectation: %+v", s.Steps[1].Expect)
	}
}

func TestLoadScenarioJSON(t *testing.T) {
	path := writeScenario(t, t.TempDir(), "list.json", `{
  "name": "Empty list",
  "steps": [{"name": "list", "op": "list", "expect": {"count": 0}}]
}`)

	s, err := LoadScenario(path)
	if err != nil {
		t.Fatalf("LoadScenario() error: %v", err)
	}
	if c := s.Steps[0].Expect.Count; c == nil || *c != 0 {
		t.Errorf("expected count 0, got %v", c)
	}
}

func TestLoadScenarioInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"missing name", "steps:\n  - {name: s, op: list}\n", "name is required"},
		{"no steps", "name: x\n", "at least one step"},
		{"unknown op", "name: x\nsteps:\n  - {name: s, op: explode}\n", "unknown op"},
		{"unknown error kind", "name: x\nsteps:\n  - {name: s, op: list, expect: {error: boom}}\n", "unknown expected error"},
		{"create without draft", "name: x\nsteps:\n  - {name: s, op: create}\n", "needs a draft"},
		{"count on get", "name: x\nsteps:\n  - {name: s, op: get, id: '1', expect: {count: 1}}\n", "count only applies"},
		{"field without validation", "name: x\nsteps:\n  - {name: s, op: list, expect: {field: name}}\n", "field only applies"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeScenario(t, t.TempDir(), "bad.yaml", tt.content)
			_, err := LoadScenario(path)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("LoadScenario() = %v, want error containing %q", err, tt.want)
			}
		})
	}
}

func TestLoadScenarioUnsupportedFormat(t *testing.T) {
	path := writeScenario(t, t.TempDir(), "test.toml", "")
	if _, err := LoadScenario(path); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "b.json", `{"name": "JSON scenario", "steps": [{"name": "s", "op": "list"}]}`)
	writeScenario(t, dir, "a.yaml", "name: YAML scenario\nsteps:\n  - {name: s, op: list}\n")
	writeScenario(t, dir, "readme.txt", "ignore me")
	if err := os.Mkdir(filepath.Join(dir, "fixtures"), 0o755); err != nil {
		t.Fatal(err)
	}

	scenarios, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir() error: %v", err)
	}
	if len(scenarios) != 2 {
		t.Fatalf("expected 2 scenarios, got %d", len(scenarios))
	}
	if scenarios[0].Name != "YAML scenario" || scenarios[1].Name != "JSON scenario" {
		t.Errorf("unexpected order: %s, %s", scenarios[0].Name, scenarios[1].Name)
	}
}

func TestLoadDirEmpty(t *testing.T) {
	scenarios, err := LoadDir(t.TempDir())
	if err != nil {
		t.Fatalf("LoadDir() error: %v", err)
	}
	if len(scenarios) != 0 {
		t.Fatalf("expected 0 scenarios, got %d", len(scenarios))
	}
}

func TestExpandTemplates(t *testing.T) {
	t.Setenv("ROBOT_HOST", "img.example")
	vars := map[string]string{"id": "rbt_000001", "loop": "{{loop}}"}

	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"plain", "plain", false},
		{"{{id}}", "rbt_000001", false},
		{"http://{{env.ROBOT_HOST}}/{{ id }}.png", "http://img.example/rbt_000001.png", false},
		{"{{loop}}", "{{loop}}", false},
		{"{{missing}}", "", true},
		{"{{id", "", true},
	}
	for _, tt := range tests {
		got, err := ExpandTemplates(tt.in, vars)
		if (err != nil) != tt.wantErr {
			t.Errorf("ExpandTemplates(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ExpandTemplates(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
