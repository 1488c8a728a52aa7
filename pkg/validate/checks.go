package validate

import (
	"slices"
	"strconv"
	"strings"

	"golang.org/x/text/language"

	"github.com/jwebster45206/situation-engine/pkg/engine"
	"github.com/jwebster45206/situation-engine/pkg/expr"
	"github.com/jwebster45206/situation-engine/pkg/rules"
)

func (v *validator) checkLanguage(raw any) {
	if raw == nil {
		return
	}
	tag, ok := raw.(string)
	if !ok {
		v.errorf("language", "must be a string")
		return
	}
	if _, err := language.Parse(tag); err != nil {
		v.warnf("language", "%q is not a valid BCP 47 tag", tag)
	}
}

func (v *validator) checkRating(raw any) {
	if raw == nil {
		return
	}
	rating, ok := raw.(string)
	if !ok {
		v.errorf("rating", "must be a string")
		return
	}
	if !slices.Contains(rules.Ratings, rating) {
		v.warnf("rating", "unknown rating %q; expected one of %s", rating, strings.Join(rules.Ratings, ", "))
	}
}

func (v *validator) checkActions() {
	for _, id := range sortedKeys(v.actions) {
		path := child("actions", id)
		action, ok := v.actions[id].(map[string]any)
		if !ok {
			v.errorf(path, "action must be an object")
			continue
		}
		for _, field := range []string{"label", "icon"} {
			if !nonEmptyString(action[field]) {
				v.errorf(child(path, field), "missing required field")
			}
		}
	}
}

func (v *validator) checkTracks() {
	for _, id := range sortedKeys(v.tracks) {
		path := child("tracks", id)
		track, ok := v.tracks[id].(map[string]any)
		if !ok {
			v.errorf(path, "track must be an object")
			continue
		}
		if !nonEmptyString(track["name"]) {
			v.errorf(child(path, "name"), "missing required field")
		}
		value, hasValue := number(track["value"])
		if !hasValue {
			v.errorf(child(path, "value"), "missing required numeric field")
		}
		limit, hasMax := number(track["max"])
		if !hasMax {
			v.errorf(child(path, "max"), "missing required numeric field")
		} else if limit < 0 {
			v.errorf(child(path, "max"), "must not be negative")
		}
		if hasValue && hasMax && limit >= 0 && (value < 0 || value > limit) {
			v.warnf(child(path, "value"), "starting value %v is outside [0, %v] and will be clamped", value, limit)
		}
	}
}

func (v *validator) checkInitial(initial map[string]any) {
	sit, ok := initial["situation"].(string)
	switch {
	case !ok || sit == "":
		v.errorf("initial.situation", "missing required field")
	case v.situations[sit] == nil:
		v.errorf("initial.situation", "situation %q does not exist", sit)
	}

	raw, present := initial["counters"]
	if !present {
		return
	}
	counters, ok := raw.(map[string]any)
	if !ok {
		v.errorf("initial.counters", "must be an object")
		return
	}
	for _, key := range sortedKeys(counters) {
		switch counters[key].(type) {
		case bool:
		default:
			if _, isNum := number(counters[key]); !isNum {
				v.errorf(child("initial.counters", key), "counter must be a number or boolean")
			}
		}
	}
}

func (v *validator) checkSituations() {
	for _, id := range sortedKeys(v.situations) {
		path := child("situations", id)
		sit, ok := v.situations[id].(map[string]any)
		if !ok {
			v.errorf(path, "situation must be an object")
			continue
		}
		if !nonEmptyString(sit["label"]) {
			v.errorf(child(path, "label"), "missing required field")
		}
		if raw, ok := sit["ending"]; ok {
			if _, isBool := raw.(bool); !isBool {
				v.errorf(child(path, "ending"), "must be a boolean")
			}
		}
		if raw, ok := sit["auto_enter_if"]; ok {
			v.checkExpr(child(path, "auto_enter_if"), raw)
		}
		v.checkAllowed(child(path, "allowed_actions"), sit["allowed_actions"])

		rawRules, ok := sit["on_action"].([]any)
		if !ok {
			v.errorf(child(path, "on_action"), "missing required array")
			continue
		}
		for i, raw := range rawRules {
			v.checkRule(elem(child(path, "on_action"), i), raw)
		}
	}
}

func (v *validator) checkAllowed(path string, raw any) {
	if raw == nil {
		return
	}
	list, ok := raw.([]any)
	if !ok {
		v.errorf(path, "must be an array")
		return
	}
	for i, item := range list {
		id, ok := item.(string)
		if !ok {
			v.errorf(elem(path, i), "must be a string")
			continue
		}
		if v.actions[id] == nil {
			v.warnf(elem(path, i), "action %q is not in the actions catalog", id)
		}
	}
}

func (v *validator) checkRule(path string, raw any) {
	rule, ok := raw.(map[string]any)
	if !ok {
		v.errorf(path, "rule must be an object")
		return
	}
	when, ok := rule["when"].(map[string]any)
	if !ok {
		v.errorf(child(path, "when"), "missing required object")
	} else {
		v.checkWhen(child(path, "when"), when)
	}

	for _, list := range []string{"do", "fail"} {
		rawList, present := rule[list]
		if !present {
			continue
		}
		effects, ok := rawList.([]any)
		if !ok {
			v.errorf(child(path, list), "must be an array")
			continue
		}
		for i, eff := range effects {
			v.checkEffect(elem(child(path, list), i), eff, i == len(effects)-1)
		}
	}
}

func (v *validator) checkWhen(path string, when map[string]any) {
	actionID, ok := when["actionId"].(string)
	switch {
	case !ok || actionID == "":
		v.errorf(child(path, "actionId"), "missing required field")
	case v.actions[actionID] == nil:
		v.errorf(child(path, "actionId"), "action %q is not in the actions catalog", actionID)
	}

	for _, field := range []struct {
		name     string
		anchored bool
	}{{"targetPattern", true}, {"textRegex", false}} {
		raw, present := when[field.name]
		if !present {
			continue
		}
		pattern, ok := raw.(string)
		if !ok {
			v.errorf(child(path, field.name), "must be a string")
			continue
		}
		if _, err := engine.CompilePattern(pattern, field.anchored); err != nil {
			v.errorf(child(path, field.name), "invalid regular expression: %v", err)
		}
	}

	if raw, present := when["require"]; present {
		v.checkExpr(child(path, "require"), raw)
	}
}

func (v *validator) checkExpr(path string, raw any) {
	src, ok := raw.(string)
	if !ok {
		v.errorf(path, "must be a string expression")
		return
	}
	if _, err := expr.Compile(src); err != nil {
		v.errorf(path, "invalid expression: %v", err)
	}
}

func isModifier(key string) bool {
	for _, m := range rules.ModifierKeys {
		if key == m {
			return true
		}
	}
	return false
}

func isActionKey(key string) bool {
	for _, k := range rules.ActionKeys {
		if key == string(k) {
			return true
		}
	}
	return false
}

func (v *validator) checkEffect(path string, raw any, last bool) {
	eff, ok := raw.(map[string]any)
	if !ok {
		v.errorf(path, "effect must be an object")
		return
	}

	var kinds []string
	for _, key := range sortedKeys(eff) {
		switch {
		case isActionKey(key):
			kinds = append(kinds, key)
		case isModifier(key):
		default:
			v.errorf(child(path, key), "unknown effect key %q", key)
		}
	}
	if len(kinds) != 1 {
		v.errorf(path, "effect must have exactly one of add, set, track, log, secret, agreement (found %d)", len(kinds))
	}

	if raw, present := eff["if"]; present {
		v.checkExpr(child(path, "if"), raw)
	}
	if raw, present := eff["cap"]; present {
		if _, isNum := number(raw); !isNum {
			v.errorf(child(path, "cap"), "must be a number")
		}
	}

	for _, kind := range kinds {
		kpath := child(path, kind)
		payload, ok := eff[kind].(string)
		if !ok {
			v.errorf(kpath, "must be a string")
			continue
		}
		switch rules.EffectKind(kind) {
		case rules.KindAdd:
			v.checkAdd(kpath, payload)
		case rules.KindSet:
			v.checkSet(kpath, payload)
		case rules.KindTrack:
			v.checkTrack(kpath, payload)
		case rules.KindLog:
			if !last {
				v.errorf(kpath, "log must be the last effect in its list")
			}
			fallthrough
		default:
			if payload == "" {
				v.errorf(kpath, "message must not be empty")
			}
		}
	}
}

func (v *validator) checkAdd(path, payload string) {
	key, amount, err := rules.SplitPayload(payload)
	if err != nil {
		v.errorf(path, "%v", err)
		return
	}
	if _, err := strconv.ParseFloat(amount, 64); err != nil {
		v.errorf(path, "amount %q is not a number", amount)
	}
	v.checkCounterRef(path, rules.CounterKey(key), true)
}

func (v *validator) checkSet(path, payload string) {
	key, value, err := rules.SplitPayload(payload)
	if err != nil {
		v.errorf(path, "%v", err)
		return
	}
	switch key {
	case rules.ScalarRoute:
		return
	case rules.ScalarNextSituation:
		if v.situations[value] == nil {
			v.warnf(path, "next_situation %q does not exist and will stay pending", value)
		}
		return
	}
	if _, err := rules.ParseValue(value); err != nil {
		v.errorf(path, "value %q must be true, false or a number", value)
	}
	v.checkCounterRef(path, rules.CounterKey(key), false)
}

func (v *validator) checkTrack(path, payload string) {
	id, delta, err := rules.SplitPayload(payload)
	if err != nil {
		v.errorf(path, "%v", err)
		return
	}
	if _, err := strconv.Atoi(delta); err != nil {
		v.errorf(path, "delta %q is not an integer", delta)
	}
	if v.tracks[id] == nil {
		v.errorf(path, "track %q is not declared in tracks", id)
	}
}

func (v *validator) checkCounterRef(path, key string, numeric bool) {
	val, ok := v.counters[key]
	if !ok {
		v.errorf(path, "counter %q is not declared in initial.counters", key)
		return
	}
	if _, isBool := val.(bool); isBool && numeric {
		v.errorf(path, "counter %q is boolean and cannot be added to", key)
	}
}
