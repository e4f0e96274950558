package metadata

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"erpnext-bridge/internal/record"
)

// Abstract field types understood by the calling UI.
const (
	TypeString   = "string"
	TypeText     = "text"
	TypeInteger  = "integer"
	TypeNumber   = "number"
	TypeDatetime = "datetime"
	TypePassword = "password"
)

// FieldDescriptor describes one input or output field for the calling UI.
type FieldDescriptor struct {
	Key      string  `json:"key" yaml:"key"`
	Label    string  `json:"label,omitempty" yaml:"label"`
	Type     string  `json:"type,omitempty" yaml:"type"`
	HelpText string  `json:"helpText,omitempty" yaml:"help_text"`
	Default  any     `json:"default,omitempty" yaml:"default"`
	Choices  Choices `json:"choices,omitempty" yaml:"choices"`
	Required bool    `json:"required,omitempty" yaml:"required"`
	// AltersDynamicFields asks the caller to recompute the field set when
	// this field's value changes.
	AltersDynamicFields bool `json:"altersDynamicFields,omitempty" yaml:"alters_dynamic_fields"`
	// List accepts multiple values.
	List bool `json:"list,omitempty" yaml:"list"`
	// Dynamic names the operation whose results populate the choices,
	// e.g. "doctype.id".
	Dynamic  string            `json:"dynamic,omitempty" yaml:"dynamic"`
	Children []FieldDescriptor `json:"children,omitempty" yaml:"children"`
}

// Choice is one allowed value. An empty label means a plain list entry.
type Choice struct {
	Value string
	Label string
}

// Choices is an ordered set of allowed values. It encodes as a JSON array
// when no entry has a label and as an order preserving JSON object otherwise.
type Choices []Choice

// ListChoices builds a plain list of choices.
func ListChoices(values ...string) Choices {
	c := make(Choices, 0, len(values))
	for _, v := range values {
		c = append(c, Choice{Value: v})
	}
	return c
}

// FoldChoices folds key/label pairs into choices. Keys keep the position of
// their first occurrence; later duplicates overwrite the label.
func FoldChoices(list []record.KeyLabel) Choices {
	labels := record.ListToObject(list)
	keys := make([]string, 0, len(list))
	for _, kl := range list {
		keys = append(keys, kl.Key)
	}
	keys = record.UniqueItems(keys)

	c := make(Choices, 0, len(keys))
	for _, k := range keys {
		c = append(c, Choice{Value: k, Label: labels[k]})
	}
	return c
}

// IsMapping reports whether any choice carries a label.
func (c Choices) IsMapping() bool {
	for _, ch := range c {
		if ch.Label != "" {
			return true
		}
	}
	return false
}

// Values returns the choice values in order.
func (c Choices) Values() []string {
	out := make([]string, len(c))
	for i, ch := range c {
		out[i] = ch.Value
	}
	return out
}

// Label returns the label of value, falling back to the value itself.
func (c Choices) Label(value string) (string, bool) {
	for _, ch := range c {
		if ch.Value == value {
			if ch.Label == "" {
				return ch.Value, true
			}
			return ch.Label, true
		}
	}
	return "", false
}

// Clone returns an independent copy. A nil list stays nil.
func (c Choices) Clone() Choices {
	if c == nil {
		return nil
	}
	return append(Choices{}, c...)
}

func (c Choices) MarshalJSON() ([]byte, error) {
	if !c.IsMapping() {
		return json.Marshal(c.Values())
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, ch := range c {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(ch.Value)
		if err != nil {
			return nil, err
		}
		label := ch.Label
		if label == "" {
			label = ch.Value
		}
		v, err := json.Marshal(label)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (c *Choices) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	switch tok {
	case json.Delim('['):
		var values []string
		if err := json.Unmarshal(data, &values); err != nil {
			return fmt.Errorf("choices: %w", err)
		}
		*c = ListChoices(values...)
		return nil
	case json.Delim('{'):
		out := Choices{}
		for dec.More() {
			kt, err := dec.Token()
			if err != nil {
				return err
			}
			key, _ := kt.(string)
			var label string
			if err := dec.Decode(&label); err != nil {
				return fmt.Errorf("choices %q: %w", key, err)
			}
			out = append(out, Choice{Value: key, Label: label})
		}
		*c = out
		return nil
	case nil:
		*c = nil
		return nil
	}
	return fmt.Errorf("choices: expected array or object")
}

func (c *Choices) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.SequenceNode:
		var values []string
		if err := node.Decode(&values); err != nil {
			return fmt.Errorf("choices: %w", err)
		}
		*c = ListChoices(values...)
		return nil
	case yaml.MappingNode:
		out := make(Choices, 0, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			out = append(out, Choice{Value: node.Content[i].Value, Label: node.Content[i+1].Value})
		}
		*c = out
		return nil
	}
	return fmt.Errorf("choices: line %d: expected sequence or mapping", node.Line)
}

// Clone returns a deep copy so callers can modify the result freely.
func (f FieldDescriptor) Clone() FieldDescriptor {
	out := f
	out.Choices = f.Choices.Clone()
	if f.Children != nil {
		out.Children = make([]FieldDescriptor, len(f.Children))
		for i, ch := range f.Children {
			out.Children[i] = ch.Clone()
		}
	}
	return out
}
