package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwebster45206/situation-engine/internal/session"
	"github.com/jwebster45206/situation-engine/pkg/engine"
)

type ErrorHandlingMode string

const ErrorHandlingExit ErrorHandlingMode = "exit"
const ErrorHandlingContinue ErrorHandlingMode = "continue"

// Runner plays scripted suites against a running situation-engine API
type Runner struct {
	BaseURL           string
	Client            *http.Client
	Timeout           time.Duration
	Logger            func(format string, args ...any)
	ErrorHandlingMode ErrorHandlingMode
	RuleSetOverride   string // If set, overrides the rule set for all test cases
}

// NewRunner creates a new test runner
func NewRunner(baseURL string) *Runner {
	return &Runner{
		BaseURL:           strings.TrimSuffix(baseURL, "/"),
		Client:            &http.Client{Timeout: 60 * time.Second},
		Timeout:           30 * time.Second,
		Logger:            func(string, ...any) {},
		ErrorHandlingMode: ErrorHandlingContinue,
	}
}

// LoadTestSuite loads a test suite from a JSON file
func LoadTestSuite(filename string) (TestSuite, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return TestSuite{}, fmt.Errorf("failed to read test file %s: %w", filename, err)
	}

	var suite TestSuite
	if err := json.Unmarshal(content, &suite); err != nil {
		return TestSuite{}, fmt.Errorf("failed to parse JSON in %s: %w", filename, err)
	}

	return suite, nil
}

// LoadTestSuiteWithExpansion loads a test suite and expands it if it's a sequence
func LoadTestSuiteWithExpansion(filename string, casesDir string) ([]TestJob, error) {
	suite, err := LoadTestSuite(filename)
	if err != nil {
		return nil, err
	}

	if !suite.IsSequence() {
		return []TestJob{{
			Name:     suite.Name,
			Suite:    suite,
			CaseFile: filename,
		}}, nil
	}

	var jobs []TestJob
	for _, caseFile := range suite.Cases {
		// Sequences may reference other sequences
		subJobs, err := LoadTestSuiteWithExpansion(filepath.Join(casesDir, caseFile), casesDir)
		if err != nil {
			return nil, fmt.Errorf("failed to load case '%s' referenced by sequence '%s': %w", caseFile, suite.Name, err)
		}
		jobs = append(jobs, subJobs...)
	}

	return jobs, nil
}

// RunSuite plays a complete test suite on a fresh session
func (r *Runner) RunSuite(ctx context.Context, suite TestSuite) (TestRunResult, error) {
	start := time.Now()
	result := TestRunResult{
		Job:     TestJob{Name: suite.Name, Suite: suite},
		Results: make([]TestResult, 0, len(suite.Steps)),
	}

	ruleSet := suite.RuleSet
	if r.RuleSetOverride != "" {
		ruleSet = r.RuleSetOverride
	}

	view, err := CreateSession(ctx, r.Client, r.BaseURL, ruleSet)
	if err != nil {
		result.Error = err
		result.Duration = time.Since(start)
		return result, result.Error
	}
	result.Session = view.State.ID

	for i, step := range suite.Steps {
		r.Logger("    [%d/%d] Running step: %s", i+1, len(suite.Steps), step.Name)

		var stepResult TestResult
		if step.Action == ResetSessionAction {
			stepResult = r.resetStep(ctx, ruleSet, step, &result.Session)
		} else {
			stepResult = r.executeStep(ctx, result.Session, step)
		}
		result.Results = append(result.Results, stepResult)

		if stepResult.Error != nil {
			r.Logger("    [%d/%d] ✗ %s: %v", i+1, len(suite.Steps), step.Name, stepResult.Error)
			if result.Error == nil {
				result.Error = fmt.Errorf("step %d (%s) failed: %w", i, step.Name, stepResult.Error)
			}
			if r.ErrorHandlingMode == ErrorHandlingExit {
				break
			}
			continue
		}
		r.Logger("    [%d/%d] ✓ %s (%v)", i+1, len(suite.Steps), step.Name, stepResult.Duration)
	}

	result.Duration = time.Since(start)
	return result, result.Error
}

func (r *Runner) resetStep(ctx context.Context, ruleSet string, step TestStep, id *uuid.UUID) TestResult {
	start := time.Now()
	result := TestResult{StepName: step.Name, IsReset: true}

	view, err := CreateSession(ctx, r.Client, r.BaseURL, ruleSet)
	if err != nil {
		result.Error = fmt.Errorf("failed to reset session: %w", err)
		result.Duration = time.Since(start)
		return result
	}
	*id = view.State.ID

	if err := checkExpectations(step.Expectations, &session.Outcome{View: *view}); err != nil {
		result.Error = fmt.Errorf("reset expectation failed: %w", err)
		result.Duration = time.Since(start)
		return result
	}
	result.Success = true
	result.Duration = time.Since(start)
	return result
}

// executeStep sends one action and checks the step's expectations
func (r *Runner) executeStep(ctx context.Context, id uuid.UUID, step TestStep) TestResult {
	start := time.Now()
	result := TestResult{StepName: step.Name}

	sctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	req := engine.ActionRequest{
		ActionID:  step.Action,
		Target:    step.Target,
		Success:   !step.Fail,
		Overrides: step.Overrides,
	}
	out, err := PostAction(sctx, r.Client, r.BaseURL, id, req)

	wantStatus := http.StatusOK
	if step.Expectations.Status != nil {
		wantStatus = *step.Expectations.Status
	}
	var statusErr *StatusError
	switch {
	case errors.As(err, &statusErr) && statusErr.Status == wantStatus:
		// Expected rejection
		result.Success = true
		result.Duration = time.Since(start)
		return result
	case err != nil:
		result.Error = fmt.Errorf("failed to post action: %w", err)
		result.Duration = time.Since(start)
		return result
	case wantStatus != http.StatusOK:
		result.Error = fmt.Errorf("expected status %d, got 200", wantStatus)
		result.Duration = time.Since(start)
		return result
	}
	result.Narration = out.Narration

	if err := checkExpectations(step.Expectations, out); err != nil {
		result.Error = fmt.Errorf("expectation failed: %w", err)
		result.Duration = time.Since(start)
		return result
	}

	result.Success = true
	result.Duration = time.Since(start)
	return result
}

// checkExpectations validates the expectations against an action outcome
func checkExpectations(exp Expectations, out *session.Outcome) error {
	gs := out.State
	if gs == nil {
		return fmt.Errorf("response carried no state")
	}

	if exp.Situation != nil && gs.Situation != *exp.Situation {
		return fmt.Errorf("expected situation %s, got %s", *exp.Situation, gs.Situation)
	}
	if exp.Turn != nil && gs.Turn != *exp.Turn {
		return fmt.Errorf("expected turn to be %d, got %d", *exp.Turn, gs.Turn)
	}
	if exp.Route != nil && gs.Route != *exp.Route {
		return fmt.Errorf("expected route %q, got %q", *exp.Route, gs.Route)
	}
	if exp.Ending != nil && out.Situation.Ending != *exp.Ending {
		return fmt.Errorf("expected ending to be %t, got %t", *exp.Ending, out.Situation.Ending)
	}

	for key, want := range exp.Counters {
		got, ok := gs.Counters[key]
		if !ok {
			return fmt.Errorf("expected counter %s to exist, but it doesn't", key)
		}
		if got.IsBool() != want.IsBool() || got.Float() != want.Float() {
			return fmt.Errorf("expected counter %s to be %s, got %s", key, want, got)
		}
	}
	for key, want := range exp.Tracks {
		got, ok := gs.Tracks[key]
		if !ok {
			return fmt.Errorf("expected track %s to exist, but it doesn't", key)
		}
		if got.Value != want {
			return fmt.Errorf("expected track %s to be %d, got %d", key, want, got.Value)
		}
	}

	if exp.AvailableActions != nil {
		want := slices.Sorted(slices.Values(exp.AvailableActions))
		got := slices.Sorted(slices.Values(out.AvailableActions))
		if !slices.Equal(want, got) {
			return fmt.Errorf("expected available actions %v, got %v", want, got)
		}
	}

	if exp.Rule != nil {
		got := ""
		if out.Rule != nil {
			got = out.Rule.ID
		}
		if got != *exp.Rule {
			return fmt.Errorf("expected rule %q to match, got %q", *exp.Rule, got)
		}
	}
	if exp.Transition != nil {
		got := ""
		if out.Transition != nil {
			got = out.Transition.To
		}
		if got != *exp.Transition {
			return fmt.Errorf("expected transition to %q, got %q", *exp.Transition, got)
		}
	}

	for _, want := range exp.LogsContain {
		found := slices.ContainsFunc(out.Logs, func(l engine.ProceduralLog) bool {
			return strings.Contains(strings.ToLower(l.Message), strings.ToLower(want))
		})
		if !found {
			return fmt.Errorf("expected a log containing '%s'", want)
		}
	}

	lowerNarration := strings.ToLower(out.Narration)
	for _, want := range exp.NarrationContains {
		if !strings.Contains(lowerNarration, strings.ToLower(want)) {
			return fmt.Errorf("expected narration to contain '%s', but it didn't", want)
		}
	}
	for _, unwanted := range exp.NarrationNotContains {
		if strings.Contains(lowerNarration, strings.ToLower(unwanted)) {
			return fmt.Errorf("expected narration to NOT contain '%s', but it did", unwanted)
		}
	}
	if exp.NarrationRegex != "" {
		matched, err := regexp.MatchString(exp.NarrationRegex, out.Narration)
		if err != nil {
			return fmt.Errorf("invalid regex pattern: %w", err)
		}
		if !matched {
			return fmt.Errorf("narration didn't match regex pattern: %s", exp.NarrationRegex)
		}
	}

	return nil
}
