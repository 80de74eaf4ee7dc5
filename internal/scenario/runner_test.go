package scenario

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/retreat896/MobileDev-Assignment02/internal/client"
	"github.com/retreat896/MobileDev-Assignment02/internal/testutil"
	"github.com/retreat896/MobileDev-Assignment02/pkg/robots"
)

func newRunner(t *testing.T) (*Runner, *testutil.Backend) {
	t.Helper()
	b := testutil.NewBackend(t)
	c, err := robots.New(b.URL())
	if err != nil {
		t.Fatal(err)
	}
	return NewRunner(c, client.New(b.URL())), b
}

func reportFailures(t *testing.T, res *Result) {
	t.Helper()
	for _, sr := range res.Steps {
		if !sr.Passed {
			t.Errorf("  %s: %s", sr.Name, sr.Error)
		}
	}
}

const crudScenario = `
name: Robot lifecycle
setup:
  reset: true
  seed: seed.json
variables:
  image: "http://img.example/{{env.ROBOT_IMAGE}}"
steps:
  - name: seeded robots listed
    op: list
    expect: {count: 1}
  - name: create
    op: create
    draft: {name: Bender, description: Bending unit, price: 9.5, imageUrl: "{{image}}"}
    capture: bender
    expect:
      robot: {name: Bender, price: 9.5, imageUrl: "http://img.example/bender.png"}
  - name: find by name
    op: find
    name_arg: Bender
    expect:
      robot: {id: "{{bender}}"}
  - name: invalid price rejected locally
    op: update
    id: "{{bender}}"
    patch: {price: -1}
    expect: {error: validation, field: price}
  - name: reprice
    op: update
    id: "{{bender}}"
    patch: {price: 12}
    expect:
      robot: {name: Bender, price: 12}
  - name: delete
    op: delete
    id: "{{bender}}"
  - name: gone
    op: get
    id: "{{bender}}"
    expect: {error: not_found}
  - name: delete again
    op: delete
    id: "{{bender}}"
    expect: {error: not_found}
`

func TestRunnerLifecycle(t *testing.T) {
	t.Setenv("ROBOT_IMAGE", "bender.png")
	runner, b := newRunner(t)

	// Leftovers must be cleared by setup.reset.
	b.Client.Post("/robots", map[string]any{"name": "stale", "price": 1, "imageUrl": "http://x/s.png"})

	dir := t.TempDir()
	seed := `{"robots":{"rbt_000001":{"name":"Marvin","price":42,"imageUrl":"http://img.example/m.png"}}}`
	if err := os.WriteFile(filepath.Join(dir, "seed.json"), []byte(seed), 0o644); err != nil {
		t.Fatal(err)
	}
	path := writeScenario(t, dir, "lifecycle.yaml", crudScenario)
	s, err := LoadScenario(path)
	if err != nil {
		t.Fatalf("LoadScenario() error: %v", err)
	}

	res, err := runner.Run(context.Background(), s)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if !res.Passed {
		t.Error("expected scenario to pass, step errors:")
		reportFailures(t, res)
	}
	if len(res.Steps) != 8 {
		t.Errorf("expected 8 step results, got %d", len(res.Steps))
	}
}

func TestRunnerReportsFailuresPerStep(t *testing.T) {
	runner, _ := newRunner(t)
	count := 3
	s := &Scenario{
		Name: "failing",
		Steps: []Step{
			{Name: "wrong count", Op: "list", Expect: Expect{Count: &count}},
			{Name: "missing robot", Op: "get", ID: "rbt_000404"},
			{Name: "unexpected success", Op: "list", Expect: Expect{Error: KindNetwork}},
			{Name: "ok", Op: "list"},
		},
	}

	res, err := runner.Run(context.Background(), s)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if res.Passed {
		t.Fatal("expected scenario to fail")
	}
	wantPassed := []bool{false, false, false, true}
	for i, sr := range res.Steps {
		if sr.Passed != wantPassed[i] {
			t.Errorf("step %q passed = %v, want %v (%s)", sr.Name, sr.Passed, wantPassed[i], sr.Error)
		}
	}
	if !strings.Contains(res.Steps[1].Error, "not_found") {
		t.Errorf("expected error kind in message, got %q", res.Steps[1].Error)
	}
}

func TestRunnerUnresolvedTemplateFailsStep(t *testing.T) {
	runner, _ := newRunner(t)
	s := &Scenario{
		Name:  "template",
		Steps: []Step{{Name: "get", Op: "get", ID: "{{never_captured}}"}},
	}
	res, err := runner.Run(context.Background(), s)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if res.Passed || !strings.Contains(res.Steps[0].Error, "unresolved") {
		t.Errorf("expected unresolved template failure, got %+v", res.Steps[0])
	}
}

func TestRunnerSetupNeedsAdmin(t *testing.T) {
	b := testutil.NewBackend(t)
	c, _ := robots.New(b.URL())
	runner := NewRunner(c, nil)

	s := &Scenario{Name: "x", Setup: Setup{Reset: true}, Steps: []Step{{Name: "s", Op: "list"}}}
	if _, err := runner.Run(context.Background(), s); err == nil {
		t.Fatal("expected setup error without admin client")
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, KindNone},
		{&robots.ValidationError{Field: "name"}, KindValidation},
		{&robots.RequestFailedError{Status: 404}, KindNotFound},
		{fmt.Errorf("wrapped: %w", robots.ErrNotFound), KindNotFound},
		{&robots.RequestFailedError{Status: 500}, KindRequestFailed},
		{&robots.NetworkUnavailableError{Cause: context.DeadlineExceeded}, KindNetwork},
		{&robots.DecodeError{Cause: errors.New("bad")}, KindDecode},
		{errors.New("other"), KindOther},
	}
	for _, tt := range tests {
		if got := Classify(tt.err); got != tt.want {
			t.Errorf("Classify(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
