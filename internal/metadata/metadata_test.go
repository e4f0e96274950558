package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"erpnext-bridge/internal/frappe"
	"erpnext-bridge/internal/record"
)

type fakeDocs struct {
	docs map[string]record.Record
}

func (f *fakeDocs) GetDocument(_ context.Context, doctype, name string) (record.Record, error) {
	if doc, ok := f.docs[doctype+"/"+name]; ok {
		return doc, nil
	}
	return nil, &frappe.Error{Kind: frappe.KindNotFound, Status: 404}
}

func TestMapFieldType(t *testing.T) {
	cases := map[string]string{
		"Data": "string", "Datetime": "datetime", "Date": "string",
		"Small Text": "text", "Text Editor": "text", "Long Text": "text", "Text": "text",
		"Currency": "number", "Float": "number", "Int": "integer", "Check": "integer",
		"Password": "password",
	}
	for in, want := range cases {
		got, ok := MapFieldType(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	got, ok := MapFieldType("Attach Image")
	assert.False(t, ok)
	assert.Equal(t, "string", got)
}

func TestDescribeField(t *testing.T) {
	sel := DescribeField(FieldDefinition{Fieldname: "status", Label: "Status", Fieldtype: "Select", Options: "Open\nReplied\n"})
	assert.Equal(t, []string{"Open", "Replied"}, sel.Choices.Values())
	assert.False(t, sel.Choices.IsMapping())

	link := DescribeField(FieldDefinition{Fieldname: "customer", Label: "Customer", Fieldtype: "Link", Options: "Customer"})
	assert.Nil(t, link.Choices)
	assert.Equal(t, "", link.Type)

	num := DescribeField(FieldDefinition{Fieldname: "qty", Label: "Qty", Fieldtype: "Float", Reqd: 1})
	assert.Equal(t, "number", num.Type)
	assert.True(t, num.Required)

	unknown := DescribeField(FieldDefinition{Fieldname: "img", Fieldtype: "Attach Image"})
	assert.Equal(t, "", unknown.Type)
}

func TestDataFields_DropsLayout(t *testing.T) {
	dt := &DocType{Fields: []FieldDefinition{
		{Fieldname: "a", Fieldtype: "Data"},
		{Fieldname: "sb", Fieldtype: SectionBreak},
		{Fieldname: "b", Fieldtype: "Int"},
		{Fieldname: "cb", Fieldtype: ColumnBreak},
	}}
	fields := dt.DataFields()
	require.Len(t, fields, 2)
	assert.Equal(t, "a", fields[0].Fieldname)
	assert.Equal(t, "b", fields[1].Fieldname)
}

func TestChoices_MarshalJSON(t *testing.T) {
	b, err := json.Marshal(ListChoices("Lead", "Customer"))
	require.NoError(t, err)
	assert.Equal(t, `["Lead","Customer"]`, string(b))

	b, err = json.Marshal(FoldChoices([]record.KeyLabel{{Key: "z", Label: "Zed"}, {Key: "a", Label: "Ay"}, {Key: "z", Label: "Zee"}}))
	require.NoError(t, err)
	assert.Equal(t, `{"z":"Zee","a":"Ay"}`, string(b))
}

func TestChoices_UnmarshalJSON(t *testing.T) {
	var c Choices
	require.NoError(t, json.Unmarshal([]byte(`{"b":"Bee","a":"Ay"}`), &c))
	assert.Equal(t, Choices{{Value: "b", Label: "Bee"}, {Value: "a", Label: "Ay"}}, c)

	require.NoError(t, json.Unmarshal([]byte(`["x","y"]`), &c))
	assert.Equal(t, []string{"x", "y"}, c.Values())
}

func TestChoices_UnmarshalYAML(t *testing.T) {
	var f FieldDescriptor
	require.NoError(t, yaml.Unmarshal([]byte("key: status\nchoices:\n  - Open\n  - Lost\n"), &f))
	assert.Equal(t, []string{"Open", "Lost"}, f.Choices.Values())

	require.NoError(t, yaml.Unmarshal([]byte("key: ev\nchoices:\n  after_insert: After insert\n  on_update: On update\n"), &f))
	label, ok := f.Choices.Label("on_update")
	assert.True(t, ok)
	assert.Equal(t, "On update", label)
	assert.Equal(t, []string{"after_insert", "on_update"}, f.Choices.Values())
}

func TestFetchSchema(t *testing.T) {
	docs := &fakeDocs{docs: map[string]record.Record{
		"DocType/Test": {
			"name": "Test",
			"fields": []any{
				map[string]any{"fieldname": "test_prop", "label": "Test Prop", "fieldtype": "Data"},
				map[string]any{"fieldname": "section", "fieldtype": "Section Break"},
			},
		},
	}}
	s := NewSchemaFetcher(docs)

	dt, err := s.FetchSchema(context.Background(), "Test")
	require.NoError(t, err)
	assert.Equal(t, "Test", dt.Name)
	assert.Len(t, dt.Fields, 2)
	assert.Len(t, dt.DataFields(), 1)

	_, err = s.FetchSchema(context.Background(), "Nope")
	assert.True(t, errors.Is(err, frappe.ErrNotFound))
}

func TestFieldChoices(t *testing.T) {
	dt := &DocType{Fields: []FieldDefinition{
		{Fieldname: "lead_name", Label: "Person Name", Fieldtype: "Data"},
		{Fieldname: "cb", Fieldtype: ColumnBreak},
		{Fieldname: "phone", Fieldtype: "Data"},
	}}
	c := dt.FieldChoices()
	assert.Equal(t, Choices{{Value: "lead_name", Label: "Person Name"}, {Value: "phone", Label: "phone"}}, c)
}

func TestClone_Independent(t *testing.T) {
	orig := FieldDescriptor{Key: "items", Children: []FieldDescriptor{{Key: "qty", Choices: ListChoices("1")}}}
	cp := orig.Clone()
	cp.Children[0].Choices[0].Value = "2"
	cp.Children = append(cp.Children, FieldDescriptor{Key: "x"})
	assert.Equal(t, "1", orig.Children[0].Choices[0].Value)
	assert.Len(t, orig.Children, 1)
}
