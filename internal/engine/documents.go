package engine

import (
	"context"
	"errors"
	"fmt"

	"erpnext-bridge/internal/frappe"
	"erpnext-bridge/internal/record"
)

// ListPageSize is the page size of list and poll operations.
const ListPageSize = 100

// Backend is the subset of the ERPNext client the engine calls.
type Backend interface {
	GetDocument(ctx context.Context, doctype, name string) (record.Record, error)
	PostDocument(ctx context.Context, doctype string, body any) (record.Record, error)
	PutDocument(ctx context.Context, doctype, name string, body any) (record.Record, error)
	DeleteDocument(ctx context.Context, doctype, name string) (string, error)
	ListDocuments(ctx context.Context, doctype string, params frappe.ListParams) ([]record.Record, error)
}

// Documents performs the generic document operations. Every returned record
// carries its name under "id" as well.
type Documents struct {
	backend Backend
}

func NewDocuments(b Backend) *Documents {
	return &Documents{backend: b}
}

func (d *Documents) Get(ctx context.Context, doctype, name string) (record.Record, error) {
	doc, err := d.backend.GetDocument(ctx, doctype, name)
	if errors.Is(err, frappe.ErrNotFound) {
		return nil, NotFoundError(doctype, name)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", doctype, name, err)
	}
	return record.AddID(doc), nil
}

// List returns one page of documents with all fields. Pages start at 0.
func (d *Documents) List(ctx context.Context, doctype string, page int) ([]record.Record, error) {
	docs, err := d.backend.ListDocuments(ctx, doctype, frappe.ListParams{
		Fields: []string{frappe.AllFields},
		Limit:  ListPageSize,
		Offset: ListPageSize * max(page, 0),
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", doctype, err)
	}
	return record.AddIDs(docs), nil
}

type SearchFilter struct {
	Property string `json:"property"`
	Operator string `json:"operator"`
	Value    any    `json:"value"`
}

type SearchRequest struct {
	DocType string       `json:"doctype"`
	Fields  []string     `json:"fields"`
	Filter  SearchFilter `json:"filter"`
	Limit   int          `json:"limit"`
}

// Search queries documents matching a single filter.
func (d *Documents) Search(ctx context.Context, req SearchRequest) ([]record.Record, error) {
	if req.DocType == "" {
		return nil, RequiredFieldError("doctype")
	}
	f := req.Filter
	if f.Operator == "" {
		f.Operator = "="
	}
	if !frappe.ValidOperator(f.Operator) {
		return nil, ValidationError([]ErrorDetail{{
			Field: "filter.operator", Rule: "enum",
			Message: fmt.Sprintf("unsupported operator %q", f.Operator),
		}})
	}
	if f.Property == "" {
		f.Property = record.IdentityField
	}
	limit := req.Limit
	if limit <= 0 {
		limit = frappe.DefaultPageLength
	}

	filter := frappe.Filter{DocType: req.DocType, Field: f.Property, Operator: f.Operator, Value: f.Value}
	docs, err := d.backend.ListDocuments(ctx, req.DocType, frappe.ListParams{
		Fields:  req.Fields,
		Filters: []frappe.Filter{filter},
		Limit:   limit,
	})
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", req.DocType, err)
	}
	return record.AddIDs(docs), nil
}

// Create posts values as a new document. Backend rejections are returned,
// never swallowed.
func (d *Documents) Create(ctx context.Context, doctype string, values map[string]any) (record.Record, error) {
	if values == nil {
		values = map[string]any{}
	}
	doc, err := d.backend.PostDocument(ctx, doctype, values)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", doctype, err)
	}
	return record.AddID(doc), nil
}

func (d *Documents) Update(ctx context.Context, doctype, name string, values map[string]any) (record.Record, error) {
	if values == nil {
		values = map[string]any{}
	}
	doc, err := d.backend.PutDocument(ctx, doctype, name, values)
	if err != nil {
		return nil, fmt.Errorf("update %s/%s: %w", doctype, name, err)
	}
	return record.AddID(doc), nil
}
