// Package resolver produces the input fields a caller fills in to create a
// document of a given DocType.
package resolver

import (
	"context"
	"fmt"

	"erpnext-bridge/internal/frappe"
	"erpnext-bridge/internal/metadata"
	"erpnext-bridge/internal/record"
)

// Resolver builds a fresh field list for doctype, given the values the
// caller has entered so far.
type Resolver interface {
	Resolve(ctx context.Context, doctype string, input map[string]any) ([]metadata.FieldDescriptor, error)
}

// SchemaSource fetches DocType schemas.
type SchemaSource interface {
	FetchSchema(ctx context.Context, doctype string) (*metadata.DocType, error)
}

// DocumentLister queries one page of documents.
type DocumentLister interface {
	ListDocuments(ctx context.Context, doctype string, params frappe.ListParams) ([]record.Record, error)
}

// Generic derives the fields from the DocType schema, in schema order.
type Generic struct {
	schemas SchemaSource
}

func NewGeneric(schemas SchemaSource) *Generic {
	return &Generic{schemas: schemas}
}

func (g *Generic) Resolve(ctx context.Context, doctype string, _ map[string]any) ([]metadata.FieldDescriptor, error) {
	dt, err := g.schemas.FetchSchema(ctx, doctype)
	if err != nil {
		return nil, fmt.Errorf("resolve fields of %s: %w", doctype, err)
	}
	data := dt.DataFields()
	out := make([]metadata.FieldDescriptor, 0, len(data))
	for _, f := range data {
		out = append(out, metadata.DescribeField(f))
	}
	return out, nil
}
