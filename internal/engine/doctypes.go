package engine

import (
	"context"
	"fmt"

	"erpnext-bridge/internal/frappe"
	"erpnext-bridge/internal/metadata"
	"erpnext-bridge/internal/record"
)

// DocTypeListLimit bounds the DocType menu.
const DocTypeListLimit = 600

// DocTypes lists the DocTypes known to the backend.
type DocTypes struct {
	backend Backend
}

func NewDocTypes(b Backend) *DocTypes {
	return &DocTypes{backend: b}
}

func (d *DocTypes) List(ctx context.Context) ([]record.Record, error) {
	docs, err := d.backend.ListDocuments(ctx, metadata.MetaDocType, frappe.ListParams{Limit: DocTypeListLimit})
	if err != nil {
		return nil, fmt.Errorf("list doctypes: %w", err)
	}
	return record.AddIDs(docs), nil
}
