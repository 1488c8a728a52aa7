package engine

// DiagKind classifies a runtime content problem.
type DiagKind string

const (
	DiagExpression DiagKind = "expression" // condition failed to parse or evaluate
	DiagRegex      DiagKind = "regex"      // targetPattern or textRegex is invalid
	DiagEffect     DiagKind = "effect"     // effect payload could not be applied
	DiagSituation  DiagKind = "situation"  // state points at a missing situation
)

// Diagnostic reports a content problem that was absorbed instead of aborting
// the action.
type Diagnostic struct {
	Kind      DiagKind `json:"kind"`
	Situation string   `json:"situation,omitempty"`
	Rule      string   `json:"rule,omitempty"`
	Source    string   `json:"source"`
	Message   string   `json:"message"`
}

func (d Diagnostic) String() string {
	return string(d.Kind) + ": " + d.Message + " (" + d.Source + ")"
}

func (r *run) diagnose(kind DiagKind, source, message string) {
	d := Diagnostic{
		Kind:      kind,
		Situation: r.situation,
		Rule:      r.rule,
		Source:    source,
		Message:   message,
	}
	r.diags = append(r.diags, d)
	r.e.logger.Warn("Rule content problem ignored",
		"kind", kind,
		"situation", r.situation,
		"rule", r.rule,
		"source", source,
		"error", message,
	)
}
