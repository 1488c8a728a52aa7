package engine

import (
	"strings"

	"github.com/dlclark/regexp2"
	"github.com/jwebster45206/situation-engine/pkg/rules"
	"github.com/jwebster45206/situation-engine/pkg/state"
)

// Match returns the first rule of sit that fires for the action, and its
// index. It returns nil, -1 when nothing matches.
func (e *Engine) Match(sit *rules.Situation, actionID, target string, gs *state.GameState) (*rules.ActionRule, int) {
	return e.newRun(gs.Situation, actionID).match(sit, actionID, target, gs)
}

func (r *run) match(sit *rules.Situation, actionID, target string, gs *state.GameState) (*rules.ActionRule, int) {
	target = strings.TrimSpace(target)
	for i := range sit.OnAction {
		rule := &sit.OnAction[i]
		if r.matches(rule, i, actionID, target, gs) {
			return rule, i
		}
	}
	return nil, -1
}

func (r *run) matches(rule *rules.ActionRule, idx int, actionID, target string, gs *state.GameState) bool {
	w := rule.When
	if w.ActionID != actionID {
		return false
	}

	prev := r.rule
	r.rule = rule.Label(idx)
	defer func() { r.rule = prev }()

	if w.TargetPattern != "" {
		if target == "" || !r.regexMatch(w.TargetPattern, target, true) {
			return false
		}
	} else if target != "" && w.TextRegex == "" {
		// A targeted action only reaches rules that look at the target.
		return false
	}
	if w.TextRegex != "" {
		if target == "" || !r.regexMatch(w.TextRegex, target, false) {
			return false
		}
	}
	if w.Require != "" && !r.evaluate(w.Require, gs) {
		return false
	}
	return true
}

// regexMatch matches case-insensitively with ECMAScript syntax. anchored
// wraps the pattern as ^(pattern)$. An invalid pattern never matches.
func (r *run) regexMatch(pattern, text string, anchored bool) bool {
	re, err := r.e.regex(pattern, anchored)
	if err != nil {
		r.diagnose(DiagRegex, pattern, err.Error())
		return false
	}
	ok, err := re.MatchString(text)
	if err != nil {
		r.diagnose(DiagRegex, pattern, err.Error())
		return false
	}
	return ok
}

func (e *Engine) regex(pattern string, anchored bool) (*regexp2.Regexp, error) {
	key := pattern
	if anchored {
		key = "^(" + pattern + ")$"
	}

	e.regexMu.RLock()
	c, ok := e.regexes[key]
	e.regexMu.RUnlock()
	if ok {
		return c.re, c.err
	}

	re, err := CompilePattern(pattern, anchored)
	e.regexMu.Lock()
	e.regexes[key] = compiledRegex{re: re, err: err}
	e.regexMu.Unlock()
	return re, err
}

// CompilePattern compiles a rule regex the way the matcher uses it.
func CompilePattern(pattern string, anchored bool) (*regexp2.Regexp, error) {
	if anchored {
		pattern = "^(" + pattern + ")$"
	}
	re, err := regexp2.Compile(pattern, regexp2.IgnoreCase|regexp2.ECMAScript)
	if err != nil {
		return nil, err
	}
	re.MatchTimeout = regexTimeout
	return re, nil
}
