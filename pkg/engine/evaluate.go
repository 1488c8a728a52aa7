package engine

import (
	"github.com/jwebster45206/situation-engine/pkg/state"
)

// Evaluate reports whether expression holds against gs. Malformed
// expressions and failed lookups evaluate to false and are logged.
func (e *Engine) Evaluate(expression string, gs *state.GameState) bool {
	return e.newRun(gs.Situation, "").evaluate(expression, gs)
}

func (r *run) evaluate(expression string, gs *state.GameState) bool {
	prog, err := r.e.exprs.Compile(expression)
	if err != nil {
		r.diagnose(DiagExpression, expression, err.Error())
		return false
	}
	ok, err := prog.EvalBool(gs.Env(r.playerBinding()))
	if err != nil {
		r.diagnose(DiagExpression, expression, err.Error())
		return false
	}
	return ok
}
