package rules

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Situations keeps situations by id in declaration order.
// Declaration order decides which auto_enter_if wins, so a plain map will not do.
type Situations struct {
	order []string
	byID  map[string]*Situation
}

// Add inserts or replaces a situation. Replacing keeps the original position.
func (s *Situations) Add(id string, sit Situation) {
	if s.byID == nil {
		s.byID = make(map[string]*Situation)
	}
	if _, exists := s.byID[id]; !exists {
		s.order = append(s.order, id)
	}
	s.byID[id] = &sit
}

// Get returns the situation with the given id.
func (s *Situations) Get(id string) (*Situation, bool) {
	sit, ok := s.byID[id]
	return sit, ok
}

// Has reports whether id names a situation.
func (s *Situations) Has(id string) bool {
	_, ok := s.byID[id]
	return ok
}

// IDs returns situation ids in declaration order.
func (s *Situations) IDs() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

func (s *Situations) Len() int { return len(s.order) }

func (s Situations) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, id := range s.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(id)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(s.byID[id])
		if err != nil {
			return nil, fmt.Errorf("failed to marshal situation %q: %w", id, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (s *Situations) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("situations must be an object")
	}
	*s = Situations{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		id, _ := keyTok.(string)
		var sit Situation
		if err := dec.Decode(&sit); err != nil {
			return fmt.Errorf("failed to decode situation %q: %w", id, err)
		}
		s.Add(id, sit)
	}
	_, err = dec.Token()
	return err
}

func (s Situations) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, id := range s.order {
		var val yaml.Node
		if err := val.Encode(s.byID[id]); err != nil {
			return nil, fmt.Errorf("failed to encode situation %q: %w", id, err)
		}
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: id},
			&val,
		)
	}
	return node, nil
}

func (s *Situations) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: situations must be a mapping", node.Line)
	}
	*s = Situations{}
	for i := 0; i+1 < len(node.Content); i += 2 {
		id := node.Content[i].Value
		var sit Situation
		if err := node.Content[i+1].Decode(&sit); err != nil {
			return fmt.Errorf("failed to decode situation %q: %w", id, err)
		}
		s.Add(id, sit)
	}
	return nil
}
