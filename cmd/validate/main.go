package main

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/jwebster45206/situation-engine/pkg/rules"
	"github.com/jwebster45206/situation-engine/pkg/validate"
)

var fileNamePattern = regexp.MustCompile(`^[a-z0-9]+(_[a-z0-9]+)*$`)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <rules.json|rules.yaml> [...]\n", os.Args[0])
		os.Exit(1)
	}

	failed := false
	for _, filename := range os.Args[1:] {
		if !validateFile(filename) {
			failed = true
		}
	}
	if failed {
		os.Exit(1)
	}
}

// validateFile prints every issue in filename and reports whether it passed.
func validateFile(filename string) bool {
	fmt.Printf("Validating %s...\n", filename)

	format, err := rules.FormatFromPath(filename)
	if err != nil {
		fmt.Fprintf(os.Stderr, "  %v\n", err)
		return false
	}
	base := filepath.Base(filename)
	if name := base[:len(base)-len(filepath.Ext(base))]; !fileNamePattern.MatchString(name) {
		fmt.Fprintf(os.Stderr, "  rule filename '%s' must be lowercase snake_case (e.g., my_rules.json)\n", base)
		return false
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		fmt.Fprintf(os.Stderr, "  failed to read file: %v\n", err)
		return false
	}
	issues, err := validate.Bytes(data, format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "  %v\n", err)
		return false
	}

	for _, issue := range issues {
		fmt.Printf("  %s\n", issue)
	}
	errs := validate.Count(issues, validate.SeverityError)
	warns := validate.Count(issues, validate.SeverityWarning)
	if errs > 0 {
		fmt.Printf("%s: %d errors, %d warnings\n", filename, errs, warns)
		return false
	}
	fmt.Printf("%s is valid (%d warnings)\n", filename, warns)
	return true
}
