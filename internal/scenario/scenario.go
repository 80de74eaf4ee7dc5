// Package scenario loads and runs YAML and JSON scenarios: ordered robot
// client operations with expectations, run against a live backend.
package scenario

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Ops lists the operations a step can run.
var Ops = []string{"list", "get", "find", "create", "update", "delete"}

// ErrorKinds lists the values Expect.Error accepts. The empty string means
// the step must succeed.
var ErrorKinds = []string{KindNone, KindValidation, KindNotFound, KindRequestFailed, KindNetwork, KindDecode}

// Scenario is a complete test scenario loaded from a YAML or JSON file.
type Scenario struct {
	Name        string            `yaml:"name" json:"name"`
	Description string            `yaml:"description" json:"description,omitempty"`
	Setup       Setup             `yaml:"setup" json:"setup"`
	Variables   map[string]string `yaml:"variables" json:"variables,omitempty"`
	Steps       []Step            `yaml:"steps" json:"steps"`

	// dir is the scenario file's directory; seed paths resolve against it.
	dir string
}

// Setup defines pre-test actions against the backend's admin plane.
type Setup struct {
	Reset bool   `yaml:"reset" json:"reset,omitempty"`
	Seed  string `yaml:"seed" json:"seed,omitempty"`
}

// Step is a single client operation and its expected outcome.
type Step struct {
	Name    string     `yaml:"name" json:"name"`
	Op      string     `yaml:"op" json:"op"`
	ID      string     `yaml:"id" json:"id,omitempty"`
	NameArg string     `yaml:"name_arg" json:"name_arg,omitempty"`
	Draft   *DraftSpec `yaml:"draft" json:"draft,omitempty"`
	Patch   *PatchSpec `yaml:"patch" json:"patch,omitempty"`
	Capture string     `yaml:"capture" json:"capture,omitempty"`
	Expect  Expect     `yaml:"expect" json:"expect"`
}

// DraftSpec is a robot draft whose string fields may hold {{templates}}.
type DraftSpec struct {
	Name        string  `yaml:"name" json:"name"`
	Description string  `yaml:"description" json:"description"`
	Price       float64 `yaml:"price" json:"price"`
	ImageURL    string  `yaml:"imageUrl" json:"imageUrl"`
}

// PatchSpec is a partial update; absent keys stay absent.
type PatchSpec struct {
	Name        *string  `yaml:"name" json:"name,omitempty"`
	Description *string  `yaml:"description" json:"description,omitempty"`
	Price       *float64 `yaml:"price" json:"price,omitempty"`
	ImageURL    *string  `yaml:"imageUrl" json:"imageUrl,omitempty"`
}

// Expect defines the expected result of a step.
type Expect struct {
	Error string         `yaml:"error" json:"error,omitempty"`
	Field string         `yaml:"field" json:"field,omitempty"`
	Count *int           `yaml:"count" json:"count,omitempty"`
	Robot map[string]any `yaml:"robot" json:"robot,omitempty"`
}

// LoadScenario parses a single YAML or JSON scenario file.
// The format is detected by file extension.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario %s: %w", path, err)
	}

	var s Scenario
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json":
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("parsing scenario %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("parsing scenario %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported scenario format %q (expected .json, .yaml, or .yml)", ext)
	}

	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	s.dir = filepath.Dir(path)
	return &s, nil
}

// LoadDir loads all .yaml, .yml, and .json scenario files from a directory,
// in file name order.
func LoadDir(dir string) ([]*Scenario, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading scenario directory %s: %w", dir, err)
	}

	var scenarios []*Scenario
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		ext := strings.ToLower(filepath.Ext(name))
		if ext != ".yaml" && ext != ".yml" && ext != ".json" {
			continue
		}
		s, err := LoadScenario(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

// Validate checks the scenario's structure without contacting a backend.
func (s *Scenario) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("at least one step is required")
	}
	for i, step := range s.Steps {
		if err := step.validate(); err != nil {
			return fmt.Errorf("step %d (%s): %w", i+1, step.Name, err)
		}
	}
	return nil
}

func (st *Step) validate() error {
	if !slices.Contains(Ops, st.Op) {
		return fmt.Errorf("unknown op %q (expected one of %s)", st.Op, strings.Join(Ops, ", "))
	}
	if !slices.Contains(ErrorKinds, st.Expect.Error) {
		return fmt.Errorf("unknown expected error %q", st.Expect.Error)
	}
	switch st.Op {
	case "create":
		if st.Draft == nil {
			return fmt.Errorf("create needs a draft")
		}
	case "update":
		if st.Patch == nil {
			return fmt.Errorf("update needs a patch")
		}
	}
	if st.Expect.Count != nil && st.Op != "list" {
		return fmt.Errorf("count only applies to list")
	}
	if st.Expect.Field != "" && st.Expect.Error != KindValidation {
		return fmt.Errorf("field only applies to validation errors")
	}
	return nil
}
