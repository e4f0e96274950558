package resolver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"erpnext-bridge/internal/frappe"
	"erpnext-bridge/internal/metadata"
	"erpnext-bridge/internal/record"
)

type fakeSchemas map[string]*metadata.DocType

func (f fakeSchemas) FetchSchema(_ context.Context, doctype string) (*metadata.DocType, error) {
	if dt, ok := f[doctype]; ok {
		return dt, nil
	}
	return nil, &frappe.Error{Kind: frappe.KindNotFound, Status: 404}
}

// fakeLister returns two documents per DocType, labelled after the DocType.
type fakeLister struct {
	mu    sync.Mutex
	calls map[string]frappe.ListParams
	fail  string
}

func (f *fakeLister) ListDocuments(_ context.Context, doctype string, params frappe.ListParams) ([]record.Record, error) {
	f.mu.Lock()
	if f.calls == nil {
		f.calls = map[string]frappe.ListParams{}
	}
	f.calls[doctype] = params
	f.mu.Unlock()

	if doctype == f.fail {
		return nil, &frappe.Error{Kind: frappe.KindBackendFault, Status: 500}
	}
	label := params.Fields[len(params.Fields)-1]
	docs := make([]record.Record, 0, 2)
	for i := 1; i <= 2; i++ {
		name := fmt.Sprintf("%s-%d", doctype, i)
		doc := record.Record{"name": name}
		if label != "name" {
			doc[label] = fmt.Sprintf("%s label %d", doctype, i)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func keys(fields []metadata.FieldDescriptor) []string {
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		out = append(out, f.Key)
	}
	return out
}

func field(fields []metadata.FieldDescriptor, key string) *metadata.FieldDescriptor {
	for i := range fields {
		if fields[i].Key == key {
			return &fields[i]
		}
	}
	return nil
}

func defaultRegistry(t *testing.T, lister *fakeLister) *Registry {
	t.Helper()
	schemas := fakeSchemas{"Test": {Name: "Test", Fields: []metadata.FieldDefinition{
		{Fieldname: "title", Label: "Title", Fieldtype: "Data", Reqd: 1},
		{Fieldname: "sb", Fieldtype: metadata.SectionBreak},
		{Fieldname: "status", Label: "Status", Fieldtype: "Select", Options: "Open\nClosed"},
		{Fieldname: "owner_link", Label: "Owner", Fieldtype: "Link", Options: "User"},
	}}}
	reg, err := NewDefaultRegistry(schemas, lister)
	require.NoError(t, err)
	return reg
}

func TestGeneric_Resolve(t *testing.T) {
	reg := defaultRegistry(t, &fakeLister{})

	fields, err := reg.Resolve(context.Background(), "Test", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"title", "status", "owner_link"}, keys(fields))
	assert.True(t, fields[0].Required)
	assert.Equal(t, "string", fields[0].Type)
	assert.Equal(t, []string{"Open", "Closed"}, fields[1].Choices.Values())
	assert.Nil(t, fields[2].Choices)
}

func TestGeneric_UnknownDocType(t *testing.T) {
	reg := defaultRegistry(t, &fakeLister{})
	_, err := reg.Resolve(context.Background(), "Nope", nil)
	assert.True(t, errors.Is(err, frappe.ErrNotFound))
}

func TestRegistry_Builtins(t *testing.T) {
	reg := defaultRegistry(t, &fakeLister{})
	assert.Equal(t, []string{"Lead", "Opportunity"}, reg.DocTypes())
	_, isGeneric := reg.Lookup("Customer").(*Generic)
	assert.True(t, isGeneric)
	_, isEnrichment := reg.Lookup("Lead").(*Enrichment)
	assert.True(t, isEnrichment)
}

func TestLead_Individual(t *testing.T) {
	lister := &fakeLister{}
	reg := defaultRegistry(t, lister)

	fields, err := reg.Resolve(context.Background(), "Lead", map[string]any{"organization_lead": 0})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"email_id", "organization_lead", "naming_series", "status", "contact_date", "ends_on",
		"website", "type", "market_segment", "request_type", "unsubscribed", "blog_subscriber",
		"lead_owner", "contact_by", "source", "gender", "territory", "industry", "company",
		"lead_name", "phone", "salutation", "mobile_no", "fax", "company_name",
	}, keys(fields))

	owner := field(fields, "lead_owner")
	require.NotNil(t, owner)
	label, ok := owner.Choices.Label("User-1")
	assert.True(t, ok)
	assert.Equal(t, "User label 1", label)

	assert.True(t, field(fields, "lead_name").Required)
	assert.Equal(t, "All Territories", field(fields, "territory").Default)
	assert.True(t, field(fields, "source").AltersDynamicFields)

	assert.Len(t, lister.calls, 8)
	assert.Equal(t, []string{"name", "source_name"}, lister.calls["Lead Source"].Fields)
	assert.Equal(t, 20, lister.calls["Lead Source"].Limit)
}

func TestLead_Organization(t *testing.T) {
	reg := defaultRegistry(t, &fakeLister{})

	fields, err := reg.Resolve(context.Background(), "Lead", map[string]any{"organization_lead": float64(1)})
	require.NoError(t, err)
	assert.Nil(t, field(fields, "lead_name"))
	org := field(fields, "company_name")
	require.NotNil(t, org)
	assert.True(t, org.Required)
}

func TestLead_SourceGates(t *testing.T) {
	reg := defaultRegistry(t, &fakeLister{})

	fields, err := reg.Resolve(context.Background(), "Lead", map[string]any{"source": "Campaign"})
	require.NoError(t, err)
	assert.NotNil(t, field(fields, "campaign_name"))
	assert.Nil(t, field(fields, "customer"))

	fields, err = reg.Resolve(context.Background(), "Lead", map[string]any{"source": "Existing Customer"})
	require.NoError(t, err)
	assert.Nil(t, field(fields, "campaign_name"))
	customer := field(fields, "customer")
	require.NotNil(t, customer)
	assert.Equal(t, []string{"Customer-1", "Customer-2"}, customer.Choices.Values())
}

func TestOpportunity_Gates(t *testing.T) {
	reg := defaultRegistry(t, &fakeLister{})

	fields, err := reg.Resolve(context.Background(), "Opportunity", map[string]any{
		"enquiry_from": "Customer",
		"with_items":   "2",
		"source":       "Campaign",
	})
	require.NoError(t, err)
	assert.Nil(t, field(fields, "lead"))
	assert.NotNil(t, field(fields, "customer"))
	assert.NotNil(t, field(fields, "campaign"))

	items := field(fields, "items")
	require.NotNil(t, items)
	require.Len(t, items.Children, 3)
	assert.Equal(t, []string{"Item-1", "Item-2"}, items.Children[0].Choices.Values())
	assert.Nil(t, items.Children[1].Choices)

	// Contact is labelled by name; labels fall back to the key.
	contacts := field(fields, "contact_person")
	require.NotNil(t, contacts)
	label, _ := contacts.Choices.Label("Contact-1")
	assert.Equal(t, "Contact-1", label)
}

func TestOpportunity_NoItems(t *testing.T) {
	reg := defaultRegistry(t, &fakeLister{})

	fields, err := reg.Resolve(context.Background(), "Opportunity", map[string]any{"enquiry_from": "Lead"})
	require.NoError(t, err)
	assert.NotNil(t, field(fields, "lead"))
	assert.Nil(t, field(fields, "customer"))
	assert.Nil(t, field(fields, "items"))
}

func TestEnrichment_ReferenceFailure(t *testing.T) {
	reg := defaultRegistry(t, &fakeLister{fail: "Territory"})

	_, err := reg.Resolve(context.Background(), "Lead", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, frappe.ErrBackendFault))
}

func TestEnrichment_CallsAreIndependent(t *testing.T) {
	reg := defaultRegistry(t, &fakeLister{})

	first, err := reg.Resolve(context.Background(), "Lead", map[string]any{"source": "Campaign"})
	require.NoError(t, err)
	first[0].Label = "changed"
	first[len(first)-1].Choices = nil

	var wg sync.WaitGroup
	results := make([][]metadata.FieldDescriptor, 8)
	for i := range results {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			input := map[string]any{"organization_lead": i % 2}
			results[i], _ = reg.Resolve(context.Background(), "Lead", input)
		}()
	}
	wg.Wait()

	for i, fields := range results {
		require.NotEmpty(t, fields, "call %d", i)
		assert.Equal(t, "Email Address", fields[0].Label)
		if i%2 == 0 {
			assert.NotNil(t, field(fields, "lead_name"))
		} else {
			assert.Nil(t, field(fields, "lead_name"))
		}
	}
}

func TestNewEnrichment_Invalid(t *testing.T) {
	_, err := NewEnrichment(&Definition{
		DocType:       "X",
		DynamicFields: []DynamicField{{FieldDescriptor: metadata.FieldDescriptor{Key: "a"}, ChoicesFrom: "missing"}},
	}, &fakeLister{})
	assert.ErrorContains(t, err, "unknown reference")

	_, err = NewEnrichment(&Definition{
		DocType:       "X",
		DynamicFields: []DynamicField{{FieldDescriptor: metadata.FieldDescriptor{Key: "a"}, When: "input.a +"}},
	}, &fakeLister{})
	assert.ErrorContains(t, err, "compile condition")
}

func TestLoadDefinitions(t *testing.T) {
	fsys := fstest.MapFS{
		"defs/task.yaml": {Data: []byte(`
doctype: Task
references:
  projects: { doctype: Project, label: project_name, limit: 5 }
static_fields:
  - key: subject
    required: true
dynamic_fields:
  - key: project
    choices_from: projects
    when: str(input.kind) == "project"
`)},
		"defs/readme.txt": {Data: []byte("ignored")},
	}
	defs, err := LoadDefinitions(fsys, "defs")
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, "Task", defs[0].DocType)
	assert.Equal(t, 5, defs[0].References["projects"].Limit)

	lister := &fakeLister{}
	e, err := NewEnrichment(defs[0], lister)
	require.NoError(t, err)

	fields, err := e.Resolve(context.Background(), "Task", map[string]any{"kind": "project"})
	require.NoError(t, err)
	assert.Equal(t, []string{"subject", "project"}, keys(fields))
	assert.Equal(t, 5, lister.calls["Project"].Limit)
}

func TestParseDefinition_RequiresDocType(t *testing.T) {
	_, err := ParseDefinition([]byte("static_fields: []\n"))
	assert.Error(t, err)
}
