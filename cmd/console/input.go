package main

import (
	"fmt"
	"strings"

	"github.com/jwebster45206/situation-engine/pkg/engine"
)

// parseAction turns "talk the ranger" into an action request. The first word
// must name one of the offered actions; the rest is the target. A leading
// "/fail" marks the attempt as failed.
func parseAction(input string, available []string) (engine.ActionRequest, error) {
	req := engine.ActionRequest{Success: true}

	fields := strings.Fields(input)
	if len(fields) > 0 && strings.EqualFold(fields[0], "/fail") {
		req.Success = false
		fields = fields[1:]
	}
	if len(fields) == 0 {
		return req, fmt.Errorf("type an action, one of: %s", strings.Join(available, ", "))
	}

	word := strings.ToLower(fields[0])
	for _, id := range available {
		if strings.EqualFold(id, word) {
			req.ActionID = id
			break
		}
	}
	if req.ActionID == "" {
		return req, fmt.Errorf("%q is not available here; try one of: %s", fields[0], strings.Join(available, ", "))
	}
	req.Target = strings.Join(fields[1:], " ")
	return req, nil
}
