package scenario

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/retreat896/MobileDev-Assignment02/internal/client"
	"github.com/retreat896/MobileDev-Assignment02/pkg/robots"
)

// Error kinds reported by Classify and accepted by Expect.Error.
const (
	KindNone          = ""
	KindValidation    = "validation"
	KindNotFound      = "not_found"
	KindRequestFailed = "request_failed"
	KindNetwork       = "network"
	KindDecode        = "decode"
	KindOther         = "other"
)

// Classify maps a client error to its kind. A 404 is KindNotFound rather
// than KindRequestFailed.
func Classify(err error) string {
	var (
		verr *robots.ValidationError
		nerr *robots.NetworkUnavailableError
		rerr *robots.RequestFailedError
		derr *robots.DecodeError
	)
	switch {
	case err == nil:
		return KindNone
	case errors.As(err, &verr):
		return KindValidation
	case robots.IsNotFound(err):
		return KindNotFound
	case errors.As(err, &rerr):
		return KindRequestFailed
	case errors.As(err, &nerr):
		return KindNetwork
	case errors.As(err, &derr):
		return KindDecode
	default:
		return KindOther
	}
}

// StepResult records the outcome of a single step.
type StepResult struct {
	Name     string
	Passed   bool
	Duration time.Duration
	Error    string // empty when passed
}

// Result records the outcome of an entire scenario.
type Result struct {
	ScenarioName string
	Passed       bool
	Steps        []StepResult
	Duration     time.Duration
}

// Runner executes scenarios through a robots.Client. Setup actions go
// through the admin client.
type Runner struct {
	client *robots.Client
	admin  *client.AdminClient

	// StepTimeout bounds each step when positive.
	StepTimeout time.Duration
}

// NewRunner creates a Runner. admin may be nil when no scenario uses setup.
func NewRunner(c *robots.Client, admin *client.AdminClient) *Runner {
	return &Runner{client: c, admin: admin}
}

// Run executes a single scenario and returns its result. A failing step
// does not stop the ones after it.
func (r *Runner) Run(ctx context.Context, s *Scenario) (*Result, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()
	result := &Result{
		ScenarioName: s.Name,
		Passed:       true,
	}

	if err := r.runSetup(ctx, s); err != nil {
		return nil, fmt.Errorf("setup failed: %w", err)
	}

	vars := make(map[string]string, len(s.Variables))
	for k, v := range s.Variables {
		expanded, err := ExpandTemplates(v, nil)
		if err != nil {
			return nil, fmt.Errorf("variable %s: %w", k, err)
		}
		vars[k] = expanded
	}

	for i := range s.Steps {
		sr := r.runStep(ctx, &s.Steps[i], vars)
		result.Steps = append(result.Steps, sr)
		if !sr.Passed {
			result.Passed = false
		}
	}

	result.Duration = time.Since(start)
	return result, nil
}

func (r *Runner) runSetup(ctx context.Context, s *Scenario) error {
	if !s.Setup.Reset && s.Setup.Seed == "" {
		return nil
	}
	if r.admin == nil {
		return errors.New("scenario needs setup but no admin client is configured")
	}
	if s.Setup.Reset {
		if _, err := r.admin.Reset(ctx); err != nil {
			return fmt.Errorf("reset: %w", err)
		}
	}
	if s.Setup.Seed != "" {
		path := s.Setup.Seed
		if !filepath.IsAbs(path) && s.dir != "" {
			path = filepath.Join(s.dir, path)
		}
		if _, err := r.admin.Seed(ctx, path); err != nil {
			return fmt.Errorf("seed: %w", err)
		}
	}
	return nil
}

// outcome is what a step's operation produced.
type outcome struct {
	robot *robots.Robot
	list  []robots.Robot
	err   error
}

func (r *Runner) runStep(ctx context.Context, step *Step, vars map[string]string) StepResult {
	start := time.Now()
	sr := StepResult{Name: step.Name}
	fail := func(format string, args ...any) StepResult {
		sr.Error = fmt.Sprintf(format, args...)
		sr.Duration = time.Since(start)
		return sr
	}

	if r.StepTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.StepTimeout)
		defer cancel()
	}

	out, err := r.execute(ctx, step, vars)
	if err != nil {
		return fail("%v", err)
	}

	if got := Classify(out.err); got != step.Expect.Error {
		if step.Expect.Error == KindNone {
			return fail("expected success, got %s error: %v", got, out.err)
		}
		if out.err == nil {
			return fail("expected %s error, got success", step.Expect.Error)
		}
		return fail("expected %s error, got %s error: %v", step.Expect.Error, got, out.err)
	}
	if step.Expect.Field != "" {
		var verr *robots.ValidationError
		if errors.As(out.err, &verr) && verr.Field != step.Expect.Field {
			return fail("expected validation of %q, got %q", step.Expect.Field, verr.Field)
		}
	}
	if out.err != nil {
		sr.Passed = true
		sr.Duration = time.Since(start)
		return sr
	}

	if step.Expect.Count != nil && len(out.list) != *step.Expect.Count {
		return fail("expected %d robots, got %d", *step.Expect.Count, len(out.list))
	}
	if len(step.Expect.Robot) > 0 {
		if out.robot == nil {
			return fail("%s returns no robot to check", step.Op)
		}
		if err := matchRobot(*out.robot, step.Expect.Robot, vars); err != nil {
			return fail("%v", err)
		}
	}
	if step.Capture != "" {
		if out.robot == nil {
			return fail("%s returns no robot to capture", step.Op)
		}
		vars[step.Capture] = out.robot.ID.String()
	}

	sr.Passed = true
	sr.Duration = time.Since(start)
	return sr
}

// execute runs the step's operation. The returned error is a scenario
// problem (bad template); the operation's own error is in outcome.err.
func (r *Runner) execute(ctx context.Context, step *Step, vars map[string]string) (outcome, error) {
	expand := func(s string) (string, error) { return ExpandTemplates(s, vars) }

	switch step.Op {
	case "list":
		list, err := r.client.ListRobots(ctx)
		return outcome{list: list, err: err}, nil
	case "find":
		name, err := expand(step.NameArg)
		if err != nil {
			return outcome{}, err
		}
		return robotOutcome(r.client.FindRobotByName(ctx, name)), nil
	case "create":
		draft, err := step.Draft.expand(expand)
		if err != nil {
			return outcome{}, err
		}
		return robotOutcome(r.client.CreateRobot(ctx, draft)), nil
	}

	id, err := expand(step.ID)
	if err != nil {
		return outcome{}, err
	}
	switch step.Op {
	case "get":
		return robotOutcome(r.client.GetRobot(ctx, robots.ID(id))), nil
	case "update":
		patch, err := step.Patch.expand(expand)
		if err != nil {
			return outcome{}, err
		}
		return robotOutcome(r.client.UpdateRobot(ctx, robots.ID(id), patch)), nil
	case "delete":
		return outcome{err: r.client.DeleteRobot(ctx, robots.ID(id))}, nil
	}
	return outcome{}, fmt.Errorf("unknown op %q", step.Op)
}

func robotOutcome(r robots.Robot, err error) outcome {
	if err != nil {
		return outcome{err: err}
	}
	return outcome{robot: &r}
}

func (d *DraftSpec) expand(expand func(string) (string, error)) (robots.Draft, error) {
	out := robots.Draft{Price: d.Price}
	for _, f := range []struct {
		dst *string
		src string
	}{
		{&out.Name, d.Name},
		{&out.Description, d.Description},
		{&out.ImageURL, d.ImageURL},
	} {
		v, err := expand(f.src)
		if err != nil {
			return robots.Draft{}, err
		}
		*f.dst = v
	}
	return out, nil
}

func (p *PatchSpec) expand(expand func(string) (string, error)) (robots.Patch, error) {
	out := robots.Patch{Price: p.Price}
	for _, f := range []struct {
		dst **string
		src *string
	}{
		{&out.Name, p.Name},
		{&out.Description, p.Description},
		{&out.ImageURL, p.ImageURL},
	} {
		if f.src == nil {
			continue
		}
		v, err := expand(*f.src)
		if err != nil {
			return robots.Patch{}, err
		}
		*f.dst = &v
	}
	return out, nil
}

// matchRobot compares the expected fields (id, name, description, price,
// imageUrl) against r. String expectations may use templates.
func matchRobot(r robots.Robot, want map[string]any, vars map[string]string) error {
	actual := map[string]string{
		"id":          r.ID.String(),
		"name":        r.Name,
		"description": r.Description,
		"price":       strconv.FormatFloat(r.Price, 'f', -1, 64),
		"imageUrl":    r.ImageURL,
	}
	for key, expected := range want {
		got, ok := actual[key]
		if !ok {
			return fmt.Errorf("robot: unknown field %q", key)
		}
		exp, err := expectedString(expected, vars)
		if err != nil {
			return fmt.Errorf("robot.%s: %w", key, err)
		}
		if got != exp {
			return fmt.Errorf("robot.%s: expected %q, got %q", key, exp, got)
		}
	}
	return nil
}

func expectedString(v any, vars map[string]string) (string, error) {
	switch x := v.(type) {
	case string:
		return ExpandTemplates(x, vars)
	case int:
		return strconv.Itoa(x), nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	default:
		return fmt.Sprintf("%v", x), nil
	}
}
