package engine

import "github.com/gofiber/fiber/v2"

// RegisterRoutes mounts the host operations under /api. The given
// middleware runs before every route.
func RegisterRoutes(app *fiber.App, h *Handler, middleware ...fiber.Handler) {
	api := app.Group("/api", middleware...)

	api.Get("/operations", h.Operations)
	api.Post("/operations/:op/fields", h.InputFields)
	api.Get("/doctypes", h.DocTypes)

	docs := api.Group("/documents")
	docs.Get("/:doctype", h.List)
	docs.Post("/:doctype/_search", h.Search)
	docs.Get("/:doctype/:name", h.Get)
	docs.Post("/:doctype", h.Create)
	docs.Put("/:doctype/:name", h.Update)

	hooks := api.Group("/hooks")
	hooks.Post("/", h.Subscribe)
	hooks.Post("/_receive", h.Receive)
	hooks.Post("/_poll", h.Poll)
	hooks.Post("/_output_fields", h.OutputFields)
	hooks.Delete("/:id", h.Unsubscribe)
}
