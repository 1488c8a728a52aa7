package runner

import (
	"time"

	"github.com/google/uuid"

	"github.com/jwebster45206/situation-engine/pkg/rules"
)

// ResetSessionAction as a step action starts a fresh session on the suite's rule set.
const ResetSessionAction = "RESET_SESSION"

// TestSuite defines a scripted playthrough.
// Can either be a regular test with Steps, or a suite that references other Cases
type TestSuite struct {
	Name    string     `json:"name"`
	RuleSet string     `json:"ruleset,omitempty"` // Used for regular tests
	Steps   []TestStep `json:"steps,omitempty"`   // Used for regular tests
	Cases   []string   `json:"cases,omitempty"`   // Used for suite tests (list of case files)
}

// IsSequence returns true if this is a suite that sequences other cases
func (ts *TestSuite) IsSequence() bool {
	return len(ts.Cases) > 0
}

// TestStep is one action sent to the session and its expected outcome.
// Use action: "RESET_SESSION" to start over on a new session.
type TestStep struct {
	Name         string           `json:"name,omitempty"`
	Action       string           `json:"action,omitempty"`
	Target       string           `json:"target,omitempty"`
	Fail         bool             `json:"fail,omitempty"`
	Overrides    [][]rules.Effect `json:"overrides,omitempty"`
	Expectations Expectations     `json:"expect"`
}

// Expectations defines what to check after a step executes
type Expectations struct {
	// Response status, 200 when unset
	Status *int `json:"status,omitempty"`

	// Session state
	Situation        *string                `json:"situation,omitempty"`
	Turn             *int                   `json:"turn,omitempty"`
	Route            *string                `json:"route,omitempty"`
	Ending           *bool                  `json:"ending,omitempty"`
	Counters         map[string]rules.Value `json:"counters,omitempty"`
	Tracks           map[string]int         `json:"tracks,omitempty"`
	AvailableActions []string               `json:"available_actions,omitempty"` // order independent

	// Engine result. An empty Rule expects no match.
	Rule        *string  `json:"rule,omitempty"`
	Transition  *string  `json:"transition,omitempty"`
	LogsContain []string `json:"logs_contain,omitempty"`

	// Narration analysis
	NarrationContains    []string `json:"narration_contains,omitempty"`
	NarrationNotContains []string `json:"narration_not_contains,omitempty"`
	NarrationRegex       string   `json:"narration_regex,omitempty"`
}

// TestResult contains the outcome of running a test step
type TestResult struct {
	StepName  string
	Success   bool
	Error     error
	Duration  time.Duration
	Narration string
	IsReset   bool // RESET_SESSION steps do not count toward pass/fail metrics
}

// TestJob represents a test suite to be executed
type TestJob struct {
	Name     string
	Suite    TestSuite
	CaseFile string
}

// TestRunResult contains the results of running an entire test suite
type TestRunResult struct {
	Job      TestJob
	Results  []TestResult
	Error    error
	Duration time.Duration
	Session  uuid.UUID // last session used by the suite
}
