package metadata

import (
	"context"
	"encoding/json"
	"fmt"

	"erpnext-bridge/internal/frappe"
	"erpnext-bridge/internal/record"
)

// MetaDocType is the DocType whose documents describe all other DocTypes.
const MetaDocType = "DocType"

// DocumentGetter fetches a single document.
type DocumentGetter interface {
	GetDocument(ctx context.Context, doctype, name string) (record.Record, error)
}

// SchemaFetcher loads DocType schemas from the backend.
type SchemaFetcher struct {
	docs DocumentGetter
}

func NewSchemaFetcher(docs DocumentGetter) *SchemaFetcher {
	return &SchemaFetcher{docs: docs}
}

// FetchSchema returns the schema of doctype. An unknown DocType surfaces as
// frappe.ErrNotFound.
func (s *SchemaFetcher) FetchSchema(ctx context.Context, doctype string) (*DocType, error) {
	doc, err := s.docs.GetDocument(ctx, MetaDocType, doctype)
	if err != nil {
		return nil, fmt.Errorf("fetch schema of %s: %w", doctype, err)
	}
	return decodeDocType(doctype, doc)
}

func decodeDocType(doctype string, doc record.Record) (*DocType, error) {
	// round-trip through JSON to pick up only the known keys
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode schema of %s: %w", doctype, err)
	}
	var dt DocType
	if err := json.Unmarshal(raw, &dt); err != nil {
		return nil, &frappe.Error{Kind: frappe.KindMalformedResponse,
			Message: fmt.Sprintf("schema of %s: %v", doctype, err)}
	}
	if dt.Name == "" {
		dt.Name = doctype
	}
	return &dt, nil
}
