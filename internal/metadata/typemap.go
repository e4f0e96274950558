package metadata

import "strings"

var typemap = map[string]string{
	"Data":        TypeString,
	"Datetime":    TypeDatetime,
	"Date":        TypeString, // for example 2019-02-28
	"Small Text":  TypeText,
	"Text Editor": TypeText,
	"Long Text":   TypeText,
	"Text":        TypeText,
	"Currency":    TypeNumber,
	"Float":       TypeNumber,
	"Int":         TypeInteger,
	"Check":       TypeInteger,
	"Password":    TypePassword,
}

// MapFieldType returns the abstract type of a backend fieldtype and whether
// the table knows it. Unknown types map to string.
func MapFieldType(fieldtype string) (string, bool) {
	t, ok := typemap[fieldtype]
	if !ok {
		return TypeString, false
	}
	return t, true
}

// DescribeField maps one schema field to its descriptor.
//
// Select fields list their options as choices. Link fields get no choices
// and are entered as free text.
func DescribeField(f FieldDefinition) FieldDescriptor {
	d := FieldDescriptor{
		Key:      f.Fieldname,
		Label:    f.Label,
		Required: f.Reqd == 1,
	}
	switch {
	case f.IsSelect():
		d.Choices = ListChoices(splitOptions(f.Options)...)
	case f.IsLink():
	default:
		if t, ok := MapFieldType(f.Fieldtype); ok {
			d.Type = t
		}
	}
	return d
}

func splitOptions(options string) []string {
	var out []string
	for _, opt := range strings.Split(options, "\n") {
		if opt = strings.TrimRight(opt, "\r"); opt != "" {
			out = append(out, opt)
		}
	}
	return out
}
