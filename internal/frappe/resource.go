package frappe

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strconv"

	"erpnext-bridge/internal/record"
)

const (
	DefaultPageLength = 20
	// AllFields projects every field of a document.
	AllFields = "*"
)

// ListParams controls a paginated resource query. Each page is independent.
type ListParams struct {
	// Fields defaults to ["name"]. When set, "name" is appended and
	// duplicates are removed.
	Fields  []string
	Filters []Filter
	// Limit defaults to DefaultPageLength.
	Limit  int
	Offset int
}

func resourcePath(doctype string, name ...string) string {
	p := ResourceEndpoint + "/" + url.PathEscape(doctype)
	for _, n := range name {
		p += "/" + url.PathEscape(n)
	}
	return p
}

func methodPath(dottedPath string) string {
	return MethodEndpoint + "/" + dottedPath
}

// GetDocument fetches one document.
func (c *Client) GetDocument(ctx context.Context, doctype, name string) (record.Record, error) {
	resp, err := c.Do(ctx, Request{Method: http.MethodGet, Path: resourcePath(doctype, name)})
	if err != nil {
		return nil, err
	}
	doc, err := dataObject(resp)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, &Error{Kind: KindNotFound, Status: resp.Status, URL: resp.URL,
			Message: fmt.Sprintf("%s %s not found", doctype, name)}
	}
	return doc, nil
}

// PostDocument creates a new document of the given DocType.
func (c *Client) PostDocument(ctx context.Context, doctype string, body any) (record.Record, error) {
	resp, err := c.Do(ctx, Request{Method: http.MethodPost, Path: resourcePath(doctype), JSON: body})
	if err != nil {
		return nil, err
	}
	return requireDataObject(resp)
}

// PutDocument modifies an existing document.
func (c *Client) PutDocument(ctx context.Context, doctype, name string, body any) (record.Record, error) {
	resp, err := c.Do(ctx, Request{Method: http.MethodPut, Path: resourcePath(doctype, name), JSON: body})
	if err != nil {
		return nil, err
	}
	return requireDataObject(resp)
}

// DeleteDocument deletes a document and returns the backend's message
// (usually "ok").
func (c *Client) DeleteDocument(ctx context.Context, doctype, name string) (string, error) {
	resp, err := c.Do(ctx, Request{Method: http.MethodDelete, Path: resourcePath(doctype, name)})
	if err != nil {
		return "", err
	}
	msg, _ := resp.Object()["message"].(string)
	return msg, nil
}

// ListDocuments queries one page of documents. A payload without a "data"
// key is a malformed response, never an empty result.
func (c *Client) ListDocuments(ctx context.Context, doctype string, params ListParams) ([]record.Record, error) {
	fieldsJSON, err := json.Marshal(EffectiveFields(params.Fields))
	if err != nil {
		return nil, fmt.Errorf("encode fields: %w", err)
	}
	filters := params.Filters
	if filters == nil {
		filters = []Filter{}
	}
	filtersJSON, err := json.Marshal(filters)
	if err != nil {
		return nil, fmt.Errorf("encode filters: %w", err)
	}
	limit := params.Limit
	if limit <= 0 {
		limit = DefaultPageLength
	}
	offset := max(params.Offset, 0)

	query := url.Values{}
	query.Set("fields", string(fieldsJSON))
	query.Set("filters", string(filtersJSON))
	query.Set("limit_page_length", strconv.Itoa(limit))
	query.Set("limit_start", strconv.Itoa(offset))

	resp, err := c.Do(ctx, Request{Method: http.MethodGet, Path: resourcePath(doctype), Query: query})
	if err != nil {
		return nil, err
	}

	obj := resp.Object()
	raw, ok := obj["data"]
	if !ok {
		return nil, &Error{Kind: KindMalformedResponse, Status: resp.Status, URL: resp.URL,
			Message: fmt.Sprintf("Search did not return any data: %s", truncate(resp.Body, 512))}
	}
	if raw == nil {
		return []record.Record{}, nil
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, &Error{Kind: KindMalformedResponse, Status: resp.Status, URL: resp.URL,
			Message: "Expected a list of documents in data"}
	}
	out := make([]record.Record, 0, len(items))
	for _, it := range items {
		doc, ok := it.(map[string]any)
		if !ok {
			return nil, &Error{Kind: KindMalformedResponse, Status: resp.Status, URL: resp.URL,
				Message: fmt.Sprintf("Expected a document object, got %T", it)}
		}
		out = append(out, record.Record(doc))
	}
	return out, nil
}

// EffectiveFields returns the projection actually sent to the backend:
// ["name"] by default, otherwise the given fields plus "name", deduplicated
// in order of first occurrence. A "*" projection already includes "name".
func EffectiveFields(fields []string) []string {
	if fields == nil {
		return []string{record.IdentityField}
	}
	if slices.Contains(fields, AllFields) {
		return record.UniqueItems(fields)
	}
	return record.UniqueItems(append(slices.Clone(fields), record.IdentityField))
}

// GetMethod calls a whitelisted method with query parameters.
func (c *Client) GetMethod(ctx context.Context, dottedPath string, params url.Values) (map[string]any, error) {
	resp, err := c.Do(ctx, Request{Method: http.MethodGet, Path: methodPath(dottedPath), Query: params})
	if err != nil {
		return nil, err
	}
	return resp.Object(), nil
}

// PostMethod posts form data to a whitelisted method.
func (c *Client) PostMethod(ctx context.Context, dottedPath string, form url.Values) (map[string]any, error) {
	if form == nil {
		form = url.Values{}
	}
	resp, err := c.Do(ctx, Request{Method: http.MethodPost, Path: methodPath(dottedPath), Form: form})
	if err != nil {
		return nil, err
	}
	return resp.Object(), nil
}

// MethodURL returns the absolute URL of a whitelisted method.
func (c *Client) MethodURL(dottedPath string, params url.Values) string {
	return c.URL(methodPath(dottedPath), params)
}

func dataObject(resp *Response) (record.Record, error) {
	obj := resp.Object()
	raw, ok := obj["data"]
	if !ok {
		return nil, &Error{Kind: KindMalformedResponse, Status: resp.Status, URL: resp.URL,
			Message: "Response did not contain data"}
	}
	if raw == nil {
		return nil, nil
	}
	doc, ok := raw.(map[string]any)
	if !ok {
		return nil, &Error{Kind: KindMalformedResponse, Status: resp.Status, URL: resp.URL,
			Message: fmt.Sprintf("Expected a document object in data, got %T", raw)}
	}
	return record.Record(doc), nil
}

func requireDataObject(resp *Response) (record.Record, error) {
	doc, err := dataObject(resp)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, &Error{Kind: KindMalformedResponse, Status: resp.Status, URL: resp.URL,
			Message: "Response data was empty"}
	}
	return doc, nil
}
