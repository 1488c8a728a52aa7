package rules

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format identifies the encoding of a rule document.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromPath picks the format from the file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("unsupported rule file extension: %s", filepath.Ext(path))
}

// IsRuleFile reports whether path has a supported extension.
func IsRuleFile(path string) bool {
	_, err := FormatFromPath(path)
	return err == nil
}

// Parse decodes a rule document.
func Parse(data []byte, format Format) (*GameRules, error) {
	var r GameRules
	switch format {
	case FormatJSON:
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, fmt.Errorf("failed to parse rules JSON: %w", err)
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &r); err != nil {
			return nil, fmt.Errorf("failed to parse rules YAML: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported rules format: %q", format)
	}
	doc, err := ParseDocument(data, format)
	if err != nil {
		return nil, err
	}
	r.source = doc
	return &r, nil
}

// ParseDocument decodes a rule document into generic maps, keeping fields the
// typed model would hide (missing vs zero, duplicate effect keys).
func ParseDocument(data []byte, format Format) (map[string]any, error) {
	var doc map[string]any
	switch format {
	case FormatJSON:
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse rules JSON: %w", err)
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse rules YAML: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported rules format: %q", format)
	}
	if doc == nil {
		return nil, fmt.Errorf("rules document is empty")
	}
	return doc, nil
}

// Load reads and decodes a rule file.
func Load(path string) (*GameRules, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}
	r, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return r, nil
}

// Source returns the generic document the rules were parsed from, or nil
// when they were built in code. It keeps what the typed model loses, such
// as a missing track max.
func (g *GameRules) Source() map[string]any {
	return g.source
}

// Document converts typed rules back into the generic form the validator reads.
func (g *GameRules) Document() (map[string]any, error) {
	data, err := json.Marshal(g)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal rules: %w", err)
	}
	return ParseDocument(data, FormatJSON)
}
