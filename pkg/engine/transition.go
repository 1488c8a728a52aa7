package engine

import (
	"github.com/jwebster45206/situation-engine/pkg/state"
)

// Resolve returns a copy of gs after applying any pending situation change,
// and the transition taken, if any.
func (e *Engine) Resolve(gs *state.GameState) (*state.GameState, *Transition) {
	next := gs.Clone()
	t := e.newRun(gs.Situation, "").resolve(next)
	return next, t
}

// resolve scans situations in declaration order for a true auto_enter_if.
// The first match wins and cancels any pending next_situation; when that
// match is the current situation nothing changes. Otherwise a pending
// next_situation naming a real situation is adopted and cleared; one
// naming nothing stays pending.
func (r *run) resolve(gs *state.GameState) *Transition {
	from := gs.Situation
	sits := &r.e.rules.Situations
	for _, id := range sits.IDs() {
		sit, _ := sits.Get(id)
		if sit.AutoEnterIf == "" {
			continue
		}
		prev := r.situation
		r.situation = id
		ok := r.evaluate(sit.AutoEnterIf, gs)
		r.situation = prev
		if ok {
			gs.NextSituation = ""
			if id == from {
				return nil
			}
			gs.Situation = id
			r.e.logger.Debug("Auto transition", "from", from, "to", id)
			return &Transition{From: from, To: id, Auto: true}
		}
	}

	if gs.NextSituation == "" {
		return nil
	}
	if !sits.Has(gs.NextSituation) {
		r.e.logger.Debug("Pending next_situation does not exist, left pending", "next_situation", gs.NextSituation)
		return nil
	}
	to := gs.NextSituation
	gs.Situation = to
	gs.NextSituation = ""
	return &Transition{From: from, To: to}
}
