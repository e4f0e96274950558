package metadata

import "erpnext-bridge/internal/record"

// Backend field types that only structure the form layout.
const (
	SectionBreak = "Section Break"
	ColumnBreak  = "Column Break"
	TabBreak     = "Tab Break"
)

// DocType is the schema of one backend entity type.
type DocType struct {
	Name   string            `json:"name"`
	Module string            `json:"module,omitempty"`
	Fields []FieldDefinition `json:"fields"`
}

// FieldDefinition is one schema field as the backend describes it.
type FieldDefinition struct {
	Fieldname string `json:"fieldname"`
	Label     string `json:"label"`
	Fieldtype string `json:"fieldtype"`
	// Options holds newline separated choices for Select fields and the
	// target DocType for Link fields.
	Options string `json:"options,omitempty"`
	Reqd    int    `json:"reqd,omitempty"`
}

// IsLayout returns true for structural break fields.
func (f FieldDefinition) IsLayout() bool {
	switch f.Fieldtype {
	case SectionBreak, ColumnBreak, TabBreak:
		return true
	}
	return false
}

// IsLink returns true if the field references another DocType.
func (f FieldDefinition) IsLink() bool {
	return f.Fieldtype == "Link"
}

// IsSelect returns true if the field is an enumeration.
func (f FieldDefinition) IsSelect() bool {
	return f.Fieldtype == "Select"
}

// DataFields returns the fields that carry data, in schema order.
func (d *DocType) DataFields() []FieldDefinition {
	fields := make([]FieldDefinition, 0, len(d.Fields))
	for _, f := range d.Fields {
		if f.IsLayout() {
			continue
		}
		fields = append(fields, f)
	}
	return fields
}

// FieldChoices returns the data fields as fieldname -> label choices,
// labels falling back to the fieldname.
func (d *DocType) FieldChoices() Choices {
	fields := d.DataFields()
	pairs := make([]record.KeyLabel, 0, len(fields))
	for _, f := range fields {
		label := f.Label
		if label == "" {
			label = f.Fieldname
		}
		pairs = append(pairs, record.KeyLabel{Key: f.Fieldname, Label: label})
	}
	return FoldChoices(pairs)
}
