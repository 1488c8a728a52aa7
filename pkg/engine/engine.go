// Package engine runs player actions against a rule set.
//
// One call to ProcessAction matches at most one rule in the current
// situation, applies its effects to a copy of the state, and resolves any
// situation change. The input state is never modified, and content errors
// in the rule set degrade to "nothing happens" plus a Diagnostic.
package engine

import (
	"log/slog"
	"sync"
	"time"

	"github.com/dlclark/regexp2"
	"github.com/jwebster45206/situation-engine/pkg/actor"
	"github.com/jwebster45206/situation-engine/pkg/expr"
	"github.com/jwebster45206/situation-engine/pkg/rules"
	"github.com/jwebster45206/situation-engine/pkg/state"
)

// regexTimeout bounds a single pattern match; rule files are not trusted code.
const regexTimeout = 100 * time.Millisecond

// Engine binds a rule set to the caches used while processing actions.
// It holds no game state and is safe for concurrent use.
type Engine struct {
	rules  *rules.GameRules
	logger *slog.Logger
	exprs  *expr.Cache
	player *actor.Player

	regexMu sync.RWMutex
	regexes map[string]compiledRegex
}

type compiledRegex struct {
	re  *regexp2.Regexp
	err error
}

// New creates an engine for r. A player profile that fails to build is
// logged and left unbound, so player.* conditions evaluate as undefined.
func New(r *rules.GameRules, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		rules:   r,
		logger:  logger.With("rules", r.ID),
		exprs:   expr.NewCache(),
		regexes: make(map[string]compiledRegex),
	}
	player, err := actor.NewPlayer(r.Player)
	if err != nil {
		e.logger.Warn("Player profile could not be built", "error", err)
	}
	e.player = player
	return e
}

func (e *Engine) Rules() *rules.GameRules { return e.rules }

// ActionRequest is one player action. Overrides switches the call into
// scripted mode: rule matching is skipped and each list is applied in turn.
type ActionRequest struct {
	ActionID  string           `json:"action_id"`
	Target    string           `json:"target,omitempty"`
	Success   bool             `json:"success"`
	Overrides [][]rules.Effect `json:"overrides,omitempty"`
}

// ProceduralLog is a factual line emitted by a log effect.
type ProceduralLog struct {
	Situation string `json:"situation"`
	ActionID  string `json:"action_id,omitempty"`
	RuleID    string `json:"rule_id,omitempty"`
	Message   string `json:"message"`
}

func (l ProceduralLog) String() string { return l.Message }

// Cue is a narrative-only effect (secret or agreement) for the narrator.
type Cue struct {
	Kind rules.EffectKind `json:"kind"`
	Text string           `json:"text"`
}

// MatchedRule identifies the rule that fired.
type MatchedRule struct {
	ID    string `json:"id"`
	Index int    `json:"index"`
}

// Transition records a situation change.
type Transition struct {
	From string `json:"from"`
	To   string `json:"to"`
	Auto bool   `json:"auto"` // entered via auto_enter_if rather than next_situation
}

// Result is everything one ProcessAction call produced.
type Result struct {
	State       *state.GameState `json:"state"`
	Logs        []ProceduralLog  `json:"logs"`
	Cues        []Cue            `json:"cues,omitempty"`
	Rule        *MatchedRule     `json:"rule,omitempty"`
	Transition  *Transition      `json:"transition,omitempty"`
	Diagnostics []Diagnostic     `json:"diagnostics,omitempty"`
}

// Messages returns the procedural log lines as plain strings.
func (r *Result) Messages() []string {
	out := make([]string, len(r.Logs))
	for i, l := range r.Logs {
		out[i] = l.Message
	}
	return out
}

// ProcessAction applies one action to a copy of gs and returns the copy.
func (e *Engine) ProcessAction(gs *state.GameState, req ActionRequest) Result {
	next := gs.Clone()
	res := Result{State: next, Logs: make([]ProceduralLog, 0)}
	run := e.newRun(next.Situation, req.ActionID)
	run.process(next, req, &res)
	res.Diagnostics = run.diags
	return res
}

func (r *run) process(next *state.GameState, req ActionRequest, res *Result) {
	applied := false
	if len(req.Overrides) > 0 {
		for _, list := range req.Overrides {
			r.apply(list, next, true, res)
		}
		applied = true
	} else {
		sit, ok := r.e.rules.Situations.Get(next.Situation)
		if !ok {
			r.diagnose(DiagSituation, next.Situation, "current situation does not exist")
			return
		}
		rule, idx := r.match(sit, req.ActionID, req.Target, next)
		if rule != nil {
			res.Rule = &MatchedRule{ID: rule.Label(idx), Index: idx}
			r.rule = res.Rule.ID
			r.e.logger.Debug("Rule matched", "situation", next.Situation, "action", req.ActionID, "rule", res.Rule.ID, "success", req.Success)
			r.apply(rule.Effects(req.Success), next, false, res)
			applied = true
		}
	}

	if applied {
		res.Transition = r.resolve(next)
	}
}

// ProcessAction is a one-shot form of Engine.ProcessAction that returns only
// the new state and its procedural log.
func ProcessAction(r *rules.GameRules, gs *state.GameState, actionID, target string, success bool, overrides ...[]rules.Effect) (*state.GameState, []ProceduralLog) {
	res := New(r, nil).ProcessAction(gs, ActionRequest{
		ActionID:  actionID,
		Target:    target,
		Success:   success,
		Overrides: overrides,
	})
	return res.State, res.Logs
}

// Available lists the actions to offer in the current situation: the
// situation's allowed_actions, or every action its rules react to.
func (e *Engine) Available(gs *state.GameState) []string {
	sit, ok := e.rules.Situations.Get(gs.Situation)
	if !ok {
		return nil
	}
	if len(sit.AllowedActions) > 0 {
		return append([]string(nil), sit.AllowedActions...)
	}
	seen := make(map[string]bool)
	var out []string
	for _, rule := range sit.OnAction {
		if id := rule.When.ActionID; id != "" && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// run carries per-call context for diagnostics.
type run struct {
	e         *Engine
	situation string
	action    string
	rule      string
	diags     []Diagnostic
}

func (e *Engine) newRun(situation, action string) *run {
	return &run{e: e, situation: situation, action: action}
}

func (r *run) playerBinding() any {
	if r.e.player == nil {
		return nil
	}
	return r.e.player
}
