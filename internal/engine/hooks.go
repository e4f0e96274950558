package engine

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"erpnext-bridge/internal/frappe"
	"erpnext-bridge/internal/metadata"
	"erpnext-bridge/internal/record"
)

// WebhookDocType is the backend DocType that stores subscriptions.
const WebhookDocType = "Webhook"

// DefaultTriggerEvent is used when a subscription names no event.
const DefaultTriggerEvent = "after_insert"

// TriggerEvents lists the document events a webhook can fire on, with
// their display labels.
var TriggerEvents = metadata.Choices{
	{Value: "after_insert", Label: "After insert"},
	{Value: "on_update", Label: "On update"},
	{Value: "on_submit", Label: "On submit"},
	{Value: "on_cancel", Label: "On cancel"},
	{Value: "on_trash", Label: "On trash"},
	{Value: "on_update_after_submit", Label: "On update after submit"},
	{Value: "on_change", Label: "On change"},
}

// WebhookField maps a document field into the delivered payload.
type WebhookField struct {
	Fieldname string `json:"fieldname"`
	Key       string `json:"key"`
}

type SubscribeRequest struct {
	DocType      string   `json:"doctype"`
	TriggerEvent string   `json:"triggerEvent"`
	TargetURL    string   `json:"targetUrl"`
	WebhookData  []string `json:"webhookData"`
}

// Hooks manages webhook subscriptions and their deliveries.
type Hooks struct {
	backend Backend
	logger  *zap.Logger
}

func NewHooks(b Backend, logger *zap.Logger) *Hooks {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hooks{backend: b, logger: logger}
}

// Projection returns the webhook field mapping: the identity field as "id"
// first, then every other field once.
func Projection(webhookData []string) []WebhookField {
	fields := record.UniqueItems(record.RemoveItem(webhookData, record.IdentityField))
	out := make([]WebhookField, 0, len(fields)+1)
	out = append(out, WebhookField{Fieldname: record.IdentityField, Key: record.IDField})
	for _, f := range fields {
		out = append(out, WebhookField{Fieldname: f, Key: f})
	}
	return out
}

// Subscribe registers a webhook and returns the created Webhook document.
func (h *Hooks) Subscribe(ctx context.Context, req SubscribeRequest) (record.Record, error) {
	var details []ErrorDetail
	if req.DocType == "" {
		details = append(details, ErrorDetail{Field: "doctype", Rule: "required", Message: "doctype is required"})
	}
	if req.TargetURL == "" {
		details = append(details, ErrorDetail{Field: "targetUrl", Rule: "required", Message: "targetUrl is required"})
	}
	event := req.TriggerEvent
	if event == "" {
		event = DefaultTriggerEvent
	}
	if _, ok := TriggerEvents.Label(event); !ok {
		details = append(details, ErrorDetail{Field: "triggerEvent", Rule: "enum",
			Message: fmt.Sprintf("unsupported trigger event %q", event)})
	}
	if len(details) > 0 {
		return nil, ValidationError(details)
	}

	doc, err := h.backend.PostDocument(ctx, WebhookDocType, map[string]any{
		"request_url":      req.TargetURL,
		"webhook_doctype":  req.DocType,
		"webhook_docevent": event,
		"webhook_data":     Projection(req.WebhookData),
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe to %s %s: %w", req.DocType, event, err)
	}
	doc = record.AddID(doc)
	h.logger.Info("webhook subscribed",
		zap.String("id", doc.Name()),
		zap.String("doctype", req.DocType),
		zap.String("event", event))
	return doc, nil
}

// Unsubscribe deletes the webhook. A webhook that is already gone counts
// as removed.
func (h *Hooks) Unsubscribe(ctx context.Context, id string) error {
	if id == "" {
		return RequiredFieldError("id")
	}
	_, err := h.backend.DeleteDocument(ctx, WebhookDocType, id)
	if errors.Is(err, frappe.ErrNotFound) {
		h.logger.Debug("webhook already removed", zap.String("id", id))
		return nil
	}
	if err != nil {
		return fmt.Errorf("unsubscribe %s: %w", id, err)
	}
	h.logger.Info("webhook unsubscribed", zap.String("id", id))
	return nil
}

// Receive turns one webhook delivery into a result list.
func (h *Hooks) Receive(payload record.Record) []record.Record {
	if payload == nil {
		payload = record.Record{}
	}
	return []record.Record{record.AddID(payload)}
}

// ListRecent polls documents with the subscription's projection, for
// sample data and backfill.
func (h *Hooks) ListRecent(ctx context.Context, doctype string, webhookData []string, page int) ([]record.Record, error) {
	fields := webhookData
	if fields == nil {
		fields = []string{}
	}
	docs, err := h.backend.ListDocuments(ctx, doctype, frappe.ListParams{
		Fields: fields,
		Limit:  ListPageSize,
		Offset: ListPageSize * max(page, 0),
	})
	if err != nil {
		return nil, fmt.Errorf("poll %s: %w", doctype, err)
	}
	return record.AddIDs(docs), nil
}

// OutputFields describes the records delivered for a projection.
func (h *Hooks) OutputFields(webhookData []string) []metadata.FieldDescriptor {
	fields := record.UniqueItems(record.RemoveItem(webhookData, record.IDField))
	out := make([]metadata.FieldDescriptor, 0, len(fields)+1)
	out = append(out, metadata.FieldDescriptor{Key: record.IDField, Label: "ID", Required: true})
	for _, f := range fields {
		out = append(out, metadata.FieldDescriptor{Key: f})
	}
	return out
}
