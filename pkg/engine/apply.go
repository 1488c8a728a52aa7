package engine

import (
	"fmt"
	"math"
	"strconv"

	"github.com/jwebster45206/situation-engine/pkg/rules"
	"github.com/jwebster45206/situation-engine/pkg/state"
)

// Apply runs an effect list against gs in place and returns what the list
// emitted. Callers that need the previous state must clone first.
func (e *Engine) Apply(effects []rules.Effect, gs *state.GameState, override bool) Result {
	res := Result{State: gs, Logs: make([]ProceduralLog, 0)}
	r := e.newRun(gs.Situation, "")
	r.apply(effects, gs, override, &res)
	res.Diagnostics = r.diags
	return res
}

// apply dispatches each effect in order. In override mode log, secret and
// agreement effects are dropped.
func (r *run) apply(effects []rules.Effect, gs *state.GameState, override bool, res *Result) {
	for i := range effects {
		eff := &effects[i]
		if eff.If != "" && !r.evaluate(eff.If, gs) {
			continue
		}

		kind, payload := eff.Kind()
		if override && kind.IsCue() {
			continue
		}

		var err error
		switch kind {
		case rules.KindAdd:
			err = r.applyAdd(payload, eff.Cap, gs)
		case rules.KindSet:
			err = r.applySet(payload, eff.Cap, gs)
		case rules.KindTrack:
			err = r.applyTrack(payload, eff.Cap, gs)
		case rules.KindLog:
			res.Logs = append(res.Logs, ProceduralLog{
				Situation: gs.Situation,
				ActionID:  r.action,
				RuleID:    r.rule,
				Message:   payload,
			})
		case rules.KindSecret, rules.KindAgreement:
			res.Cues = append(res.Cues, Cue{Kind: kind, Text: payload})
		default:
			err = fmt.Errorf("effect has no action key")
		}
		if err != nil {
			r.diagnose(DiagEffect, fmt.Sprintf("%s %q", kind, payload), err.Error())
		}
	}
}

func (r *run) applyAdd(payload string, limit *float64, gs *state.GameState) error {
	key, raw, err := rules.SplitPayload(payload)
	if err != nil {
		return err
	}
	delta, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("add amount %q is not a number", raw)
	}
	key = rules.CounterKey(key)
	cur, ok := gs.Counter(key)
	if !ok {
		r.skipUnknown("counter", key)
		return nil
	}
	if cur.IsBool() {
		return fmt.Errorf("counter %q is boolean", key)
	}
	gs.SetCounter(key, rules.Number(capAt(cur.Float()+delta, limit)))
	return nil
}

func (r *run) applySet(payload string, limit *float64, gs *state.GameState) error {
	key, raw, err := rules.SplitPayload(payload)
	if err != nil {
		return err
	}
	switch key {
	case rules.ScalarRoute:
		gs.Route = raw
		return nil
	case rules.ScalarNextSituation:
		gs.NextSituation = raw
		return nil
	}

	v, err := rules.ParseValue(raw)
	if err != nil {
		return err
	}
	if !v.IsBool() {
		v = rules.Number(capAt(v.Float(), limit))
	}
	key = rules.CounterKey(key)
	if !gs.SetCounter(key, v) {
		r.skipUnknown("counter", key)
	}
	return nil
}

func (r *run) applyTrack(payload string, limit *float64, gs *state.GameState) error {
	id, raw, err := rules.SplitPayload(payload)
	if err != nil {
		return err
	}
	delta, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("track delta %q is not an integer", raw)
	}
	if !gs.AddTrack(id, delta) {
		r.skipUnknown("track", id)
		return nil
	}
	if limit != nil {
		t, _ := gs.Track(id)
		if float64(t.Value) > *limit {
			t.Value = int(math.Floor(*limit))
			gs.Tracks[id] = t.Clamp()
		}
	}
	return nil
}

// Unknown keys are a closed-schema no-op, not a content error.
func (r *run) skipUnknown(what, key string) {
	r.e.logger.Debug("Effect targets unknown "+what+", ignored", "key", key, "situation", r.situation, "rule", r.rule)
}

func capAt(v float64, limit *float64) float64 {
	if limit != nil && v > *limit {
		return *limit
	}
	return v
}
