package resolver

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"

	"gopkg.in/yaml.v3"

	"erpnext-bridge/internal/metadata"
)

//go:embed plugins/*.yaml
var builtinFS embed.FS

// Definition declares an enrichment resolver for one DocType.
type Definition struct {
	DocType       string                     `yaml:"doctype"`
	References    map[string]Reference       `yaml:"references"`
	StaticFields  []metadata.FieldDescriptor `yaml:"static_fields"`
	DynamicFields []DynamicField             `yaml:"dynamic_fields"`
}

// Reference is a DocType whose documents populate a choice list.
type Reference struct {
	DocType string `yaml:"doctype"`
	// Label is the field shown next to each document name.
	Label string `yaml:"label"`
	Limit int    `yaml:"limit"`
}

// DynamicField is a field that takes its choices from a reference, or only
// appears when its condition over the caller's input holds.
type DynamicField struct {
	metadata.FieldDescriptor `yaml:",inline"`

	ChoicesFrom string `yaml:"choices_from"`
	// When is an expr condition; empty means always.
	When string `yaml:"when"`
	// ChildChoices maps child keys to references.
	ChildChoices map[string]string `yaml:"child_choices"`
}

// ParseDefinition decodes one YAML definition.
func ParseDefinition(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parse definition: %w", err)
	}
	if def.DocType == "" {
		return nil, fmt.Errorf("parse definition: doctype is required")
	}
	return &def, nil
}

// LoadDefinitions reads every *.yaml file of dir in fsys, sorted by name.
func LoadDefinitions(fsys fs.FS, dir string) ([]*Definition, error) {
	matches, err := fs.Glob(fsys, path.Join(dir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("list definitions: %w", err)
	}
	sort.Strings(matches)

	defs := make([]*Definition, 0, len(matches))
	for _, m := range matches {
		data, err := fs.ReadFile(fsys, m)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", m, err)
		}
		def, err := ParseDefinition(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", m, err)
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// BuiltinDefinitions returns the definitions shipped with the binary.
func BuiltinDefinitions() ([]*Definition, error) {
	return LoadDefinitions(builtinFS, "plugins")
}
