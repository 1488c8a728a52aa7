package rules

import (
	"encoding/json"
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Value is a counter value: either a number or a boolean.
type Value struct {
	num    float64
	b      bool
	isBool bool
}

// Number returns a numeric Value.
func Number(f float64) Value { return Value{num: f} }

// Bool returns a boolean Value.
func Bool(b bool) Value { return Value{b: b, isBool: true} }

// ParseValue infers the type from the literal form: "true" and "false"
// are booleans, anything else must parse as a number.
func ParseValue(s string) (Value, error) {
	switch s {
	case "true":
		return Bool(true), nil
	case "false":
		return Bool(false), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Value{}, fmt.Errorf("invalid counter literal %q: %w", s, err)
	}
	return Number(f), nil
}

func (v Value) IsBool() bool { return v.isBool }

// Float returns the numeric value. Booleans convert to 0 or 1.
func (v Value) Float() float64 {
	if v.isBool {
		if v.b {
			return 1
		}
		return 0
	}
	return v.num
}

// Truth returns the boolean value. Numbers are true when non-zero.
func (v Value) Truth() bool {
	if v.isBool {
		return v.b
	}
	return v.num != 0
}

// Any returns the value as float64 or bool, the form conditions see.
func (v Value) Any() any {
	if v.isBool {
		return v.b
	}
	return v.num
}

func (v Value) String() string {
	if v.isBool {
		return strconv.FormatBool(v.b)
	}
	return strconv.FormatFloat(v.num, 'f', -1, 64)
}

func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Any())
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch t := raw.(type) {
	case bool:
		*v = Bool(t)
	case float64:
		*v = Number(t)
	default:
		return fmt.Errorf("counter value must be a number or boolean, got %s", string(data))
	}
	return nil
}

func (v Value) MarshalYAML() (any, error) {
	return v.Any(), nil
}

func (v *Value) UnmarshalYAML(node *yaml.Node) error {
	switch node.ShortTag() {
	case "!!bool":
		var b bool
		if err := node.Decode(&b); err != nil {
			return err
		}
		*v = Bool(b)
	case "!!int", "!!float":
		var f float64
		if err := node.Decode(&f); err != nil {
			return err
		}
		*v = Number(f)
	default:
		return fmt.Errorf("line %d: counter value must be a number or boolean", node.Line)
	}
	return nil
}
