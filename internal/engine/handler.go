package engine

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"

	"erpnext-bridge/internal/instrument"
	"erpnext-bridge/internal/record"
)

type Handler struct {
	docs     *Documents
	hooks    *Hooks
	doctypes *DocTypes
	catalog  *Catalog
}

func NewHandler(docs *Documents, hooks *Hooks, doctypes *DocTypes, catalog *Catalog) *Handler {
	return &Handler{docs: docs, hooks: hooks, doctypes: doctypes, catalog: catalog}
}

// Operations handles GET /api/operations
func (h *Handler) Operations(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": h.catalog.Operations()})
}

// InputFields handles POST /api/operations/:op/fields
func (h *Handler) InputFields(c *fiber.Ctx) error {
	var body struct {
		InputData map[string]any `json:"inputData"`
	}
	if err := parseBody(c, &body); err != nil {
		return err
	}
	fields, err := h.catalog.InputFields(c.UserContext(), c.Params("op"), body.InputData)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fields})
}

// DocTypes handles GET /api/doctypes
func (h *Handler) DocTypes(c *fiber.Ctx) error {
	docs, err := h.doctypes.List(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": docs})
}

// List handles GET /api/documents/:doctype
func (h *Handler) List(c *fiber.Ctx) error {
	page, err := pageParam(c.Query("page"))
	if err != nil {
		return err
	}
	doctype, err := pathParam(c, "doctype")
	if err != nil {
		return err
	}
	tagDocument(c, doctype, "")

	docs, err := h.docs.List(c.UserContext(), doctype, page)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"data": docs,
		"meta": fiber.Map{"page": page, "per_page": ListPageSize},
	})
}

// Get handles GET /api/documents/:doctype/:name
func (h *Handler) Get(c *fiber.Ctx) error {
	doctype, name, err := documentParams(c)
	if err != nil {
		return err
	}
	tagDocument(c, doctype, name)

	doc, err := h.docs.Get(c.UserContext(), doctype, name)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": doc})
}

// Create handles POST /api/documents/:doctype
func (h *Handler) Create(c *fiber.Ctx) error {
	var body map[string]any
	if err := parseBody(c, &body); err != nil {
		return err
	}
	doctype, err := pathParam(c, "doctype")
	if err != nil {
		return err
	}
	tagDocument(c, doctype, "")

	doc, err := h.docs.Create(c.UserContext(), doctype, body)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": doc})
}

// Update handles PUT /api/documents/:doctype/:name
func (h *Handler) Update(c *fiber.Ctx) error {
	var body map[string]any
	if err := parseBody(c, &body); err != nil {
		return err
	}
	doctype, name, err := documentParams(c)
	if err != nil {
		return err
	}
	tagDocument(c, doctype, name)

	doc, err := h.docs.Update(c.UserContext(), doctype, name, body)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": doc})
}

// searchBody uses the input keys of the search operation.
type searchBody struct {
	Fields          []string    `json:"fields"`
	FilterProperty  string      `json:"filter_property"`
	FilterOperator  string      `json:"filter_operator"`
	FilterValue     any         `json:"filter_value"`
	LimitPageLength json.Number `json:"limit_page_length"`
}

// Search handles POST /api/documents/:doctype/_search
func (h *Handler) Search(c *fiber.Ctx) error {
	var body searchBody
	if err := parseBody(c, &body); err != nil {
		return err
	}
	limit := 0
	if body.LimitPageLength != "" {
		n, err := strconv.Atoi(body.LimitPageLength.String())
		if err != nil {
			return ValidationError([]ErrorDetail{{Field: "limit_page_length", Rule: "integer", Message: "limit_page_length must be an integer"}})
		}
		limit = n
	}
	doctype, err := pathParam(c, "doctype")
	if err != nil {
		return err
	}
	tagDocument(c, doctype, "")

	docs, err := h.docs.Search(c.UserContext(), SearchRequest{
		DocType: doctype,
		Fields:  body.Fields,
		Filter: SearchFilter{
			Property: body.FilterProperty,
			Operator: body.FilterOperator,
			Value:    body.FilterValue,
		},
		Limit: limit,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": docs})
}

// Subscribe handles POST /api/hooks
func (h *Handler) Subscribe(c *fiber.Ctx) error {
	var req SubscribeRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	tagDocument(c, req.DocType, "")

	doc, err := h.hooks.Subscribe(c.UserContext(), req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": doc})
}

// Unsubscribe handles DELETE /api/hooks/:id
func (h *Handler) Unsubscribe(c *fiber.Ctx) error {
	id, err := pathParam(c, "id")
	if err != nil {
		return err
	}
	tagDocument(c, WebhookDocType, id)

	if err := h.hooks.Unsubscribe(c.UserContext(), id); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"id": id}})
}

// Receive handles POST /api/hooks/_receive
func (h *Handler) Receive(c *fiber.Ctx) error {
	var payload record.Record
	if err := parseBody(c, &payload); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": h.hooks.Receive(payload)})
}

type pollBody struct {
	DocType     string   `json:"doctype"`
	WebhookData []string `json:"webhookData"`
	Page        int      `json:"page"`
}

// Poll handles POST /api/hooks/_poll
func (h *Handler) Poll(c *fiber.Ctx) error {
	var body pollBody
	if err := parseBody(c, &body); err != nil {
		return err
	}
	if body.DocType == "" {
		return RequiredFieldError("doctype")
	}
	tagDocument(c, body.DocType, "")

	docs, err := h.hooks.ListRecent(c.UserContext(), body.DocType, body.WebhookData, body.Page)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": docs})
}

// OutputFields handles POST /api/hooks/_output_fields
func (h *Handler) OutputFields(c *fiber.Ctx) error {
	var body struct {
		WebhookData []string `json:"webhookData"`
	}
	if err := parseBody(c, &body); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": h.hooks.OutputFields(body.WebhookData)})
}

func parseBody(c *fiber.Ctx, out any) error {
	if len(c.Body()) == 0 {
		return nil
	}
	if err := c.BodyParser(out); err != nil {
		return NewAppError("INVALID_PAYLOAD", 400, "Invalid request body")
	}
	return nil
}

// pathParam returns the unescaped route parameter. DocType names carry
// spaces, and fiber hands out params that alias the request buffer, so the
// value is copied before it outlives the request.
func pathParam(c *fiber.Ctx, key string) (string, error) {
	v, err := url.PathUnescape(c.Params(key))
	if err != nil {
		return "", NewAppError("INVALID_PAYLOAD", 400, fmt.Sprintf("Malformed %s in path", key))
	}
	return utils.CopyString(v), nil
}

func documentParams(c *fiber.Ctx) (doctype, name string, err error) {
	if doctype, err = pathParam(c, "doctype"); err != nil {
		return "", "", err
	}
	if name, err = pathParam(c, "name"); err != nil {
		return "", "", err
	}
	return doctype, name, nil
}

func pageParam(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	page, err := strconv.Atoi(s)
	if err != nil || page < 0 {
		return 0, NewAppError("INVALID_PAYLOAD", 400, "page must be a non-negative integer")
	}
	return page, nil
}

func tagDocument(c *fiber.Ctx, doctype, name string) {
	if span, ok := c.Locals(instrument.SpanLocal).(instrument.Span); ok && span != nil {
		span.SetDocument(doctype, name)
	}
}
