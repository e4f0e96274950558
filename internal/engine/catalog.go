package engine

import (
	"context"
	"fmt"

	"erpnext-bridge/internal/frappe"
	"erpnext-bridge/internal/metadata"
	"erpnext-bridge/internal/record"
	"erpnext-bridge/internal/resolver"
)

// Operation keys exposed to the automation host.
const (
	OpGet     = "get"
	OpList    = "list"
	OpSearch  = "search"
	OpCreate  = "create"
	OpHook    = "hook"
	OpDocType = "doctype"
)

// FieldsFunc computes input fields that depend on what the caller entered.
type FieldsFunc func(ctx context.Context, input map[string]any) ([]metadata.FieldDescriptor, error)

type Display struct {
	Label       string `json:"label"`
	Description string `json:"description"`
}

// Operation is one host-facing action with its input form.
type Operation struct {
	Key     string  `json:"key"`
	Noun    string  `json:"noun"`
	Type    string  `json:"type,omitempty"`
	Display Display `json:"display"`

	static  []metadata.FieldDescriptor
	dynamic []FieldsFunc
}

// SchemaSource fetches DocType schemas.
type SchemaSource interface {
	FetchSchema(ctx context.Context, doctype string) (*metadata.DocType, error)
}

// Catalog declares the operations and computes their input fields.
type Catalog struct {
	schemas  SchemaSource
	resolver resolver.Resolver
	ops      []*Operation
	byKey    map[string]*Operation
}

func doctypeField(helpText string, alters bool) metadata.FieldDescriptor {
	return metadata.FieldDescriptor{
		Key:                 "doctype",
		Label:               "DocType",
		HelpText:            helpText,
		Dynamic:             "doctype.id",
		Required:            true,
		AltersDynamicFields: alters,
	}
}

func NewCatalog(schemas SchemaSource, res resolver.Resolver) *Catalog {
	c := &Catalog{schemas: schemas, resolver: res, byKey: map[string]*Operation{}}
	createDoctype := doctypeField("Type of document you would like to manipulate", true)
	createDoctype.Type = metadata.TypeString

	c.add(&Operation{
		Key:     OpGet,
		Noun:    "Document",
		Display: Display{Label: "Get Document", Description: "Gets a Document."},
		static: []metadata.FieldDescriptor{
			doctypeField("Type of the Document you would like to manipulate", true),
			{Key: "name", Label: "Name (ID)", Required: true},
		},
	})
	c.add(&Operation{
		Key:     OpList,
		Noun:    "Document",
		Display: Display{Label: "List Documents", Description: "Get a list of Documents."},
		static: []metadata.FieldDescriptor{
			doctypeField("Type of the Document you would like to manipulate", false),
		},
	})
	c.add(&Operation{
		Key:     OpHook,
		Noun:    "Document",
		Type:    "hook",
		Display: Display{Label: "New Document", Description: "Triggers when a new Document is created."},
		static: []metadata.FieldDescriptor{
			doctypeField("Type of the Document you would like to manipulate", true),
			{
				Key:      "triggerEvent",
				Label:    "Trigger Event",
				HelpText: "Which event this should trigger on.",
				Default:  DefaultTriggerEvent,
				Choices:  TriggerEvents,
				Required: true,
			},
		},
		dynamic: []FieldsFunc{c.webhookDataFields},
	})
	c.add(&Operation{
		Key:     OpSearch,
		Noun:    "Document",
		Display: Display{Label: "Find Document", Description: "Finds a Document by searching."},
		static: []metadata.FieldDescriptor{
			doctypeField("Type of the document you search for", true),
			{
				Key:      "limit_page_length",
				Label:    "Limit Page Length",
				HelpText: "Limit the number of results.",
				Type:     metadata.TypeNumber,
				Default:  fmt.Sprint(frappe.DefaultPageLength),
			},
		},
		dynamic: []FieldsFunc{c.searchFields},
	})
	c.add(&Operation{
		Key:     OpCreate,
		Noun:    "Document",
		Display: Display{Label: "Create Document", Description: "Creates a new Document."},
		static:  []metadata.FieldDescriptor{createDoctype},
		dynamic: []FieldsFunc{c.createFields},
	})
	c.add(&Operation{
		Key:     OpDocType,
		Noun:    "DocType",
		Display: Display{Label: "DocType", Description: "Lists the DocTypes of the ERPNext instance."},
	})
	return c
}

func (c *Catalog) add(op *Operation) {
	c.ops = append(c.ops, op)
	c.byKey[op.Key] = op
}

// Operations returns the operations in declaration order.
func (c *Catalog) Operations() []*Operation {
	return c.ops
}

func (c *Catalog) Operation(key string) (*Operation, bool) {
	op, ok := c.byKey[key]
	return op, ok
}

// InputFields returns the static fields of op followed by the fields its
// callbacks compute from input. Callbacks wait until a doctype is chosen.
func (c *Catalog) InputFields(ctx context.Context, key string, input map[string]any) ([]metadata.FieldDescriptor, error) {
	op, ok := c.byKey[key]
	if !ok {
		return nil, UnknownOperationError(key)
	}
	out := make([]metadata.FieldDescriptor, 0, len(op.static))
	for _, f := range op.static {
		out = append(out, f.Clone())
	}
	if doctypeOf(input) == "" {
		return out, nil
	}
	for _, fn := range op.dynamic {
		fields, err := fn(ctx, input)
		if err != nil {
			return nil, err
		}
		out = append(out, fields...)
	}
	return out, nil
}

func doctypeOf(input map[string]any) string {
	s, _ := input["doctype"].(string)
	return s
}

func (c *Catalog) fieldChoices(ctx context.Context, doctype string) (metadata.Choices, error) {
	dt, err := c.schemas.FetchSchema(ctx, doctype)
	if err != nil {
		return nil, err
	}
	return dt.FieldChoices(), nil
}

func (c *Catalog) webhookDataFields(ctx context.Context, input map[string]any) ([]metadata.FieldDescriptor, error) {
	choices, err := c.fieldChoices(ctx, doctypeOf(input))
	if err != nil {
		return nil, err
	}
	return []metadata.FieldDescriptor{{
		Key:      "webhookData",
		List:     true,
		HelpText: `The properties you care about, for example "phone".`,
		Choices:  choices,
	}}, nil
}

func (c *Catalog) searchFields(ctx context.Context, input map[string]any) ([]metadata.FieldDescriptor, error) {
	choices, err := c.fieldChoices(ctx, doctypeOf(input))
	if err != nil {
		return nil, err
	}
	return []metadata.FieldDescriptor{
		{
			Key:      "fields",
			List:     true,
			HelpText: "The properties you want to receive in the response",
			Choices:  choices,
			Type:     metadata.TypeString,
			Default:  record.IdentityField,
		},
		{
			Key: "filter",
			Children: []metadata.FieldDescriptor{
				{
					Key:      "filter_property",
					Type:     metadata.TypeString,
					HelpText: "The property this filter will be applied to.",
					Choices:  choices.Clone(),
					Default:  record.IdentityField,
				},
				{
					Key:     "filter_operator",
					Type:    metadata.TypeString,
					Default: "=",
					Choices: metadata.ListChoices(frappe.Operators...),
				},
				{Key: "filter_value"},
			},
		},
	}, nil
}

func (c *Catalog) createFields(ctx context.Context, input map[string]any) ([]metadata.FieldDescriptor, error) {
	return c.resolver.Resolve(ctx, doctypeOf(input), input)
}
