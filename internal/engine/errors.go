package engine

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"erpnext-bridge/internal/frappe"
)

type AppError struct {
	Code    string        `json:"code"`
	Status  int           `json:"-"`
	Message string        `json:"message"`
	Details []ErrorDetail `json:"details,omitempty"`
}

type ErrorDetail struct {
	Field   string `json:"field,omitempty"`
	Rule    string `json:"rule,omitempty"`
	Message string `json:"message"`
}

func (e *AppError) Error() string {
	return e.Message
}

type ErrorResponse struct {
	Error *AppError `json:"error"`
}

func NewAppError(code string, status int, msg string) *AppError {
	return &AppError{Code: code, Status: status, Message: msg}
}

func NotFoundError(doctype, name string) *AppError {
	return &AppError{
		Code:    "NOT_FOUND",
		Status:  404,
		Message: fmt.Sprintf("%s %s not found", doctype, name),
	}
}

func UnknownOperationError(name string) *AppError {
	return &AppError{
		Code:    "UNKNOWN_OPERATION",
		Status:  404,
		Message: fmt.Sprintf("Unknown operation: %s", name),
	}
}

func ValidationError(details []ErrorDetail) *AppError {
	return &AppError{
		Code:    "VALIDATION_FAILED",
		Status:  422,
		Message: "Validation failed",
		Details: details,
	}
}

func RequiredFieldError(field string) *AppError {
	return ValidationError([]ErrorDetail{{Field: field, Rule: "required", Message: field + " is required"}})
}

// FromError maps an error to the host-facing shape. AppErrors pass through;
// backend failures are mapped by kind.
func FromError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	var fe *frappe.Error
	if !errors.As(err, &fe) {
		return NewAppError("INTERNAL_ERROR", 500, err.Error())
	}
	out := &AppError{Message: fe.Error()}
	switch fe.Kind {
	case frappe.KindAuthExpired:
		out.Code, out.Status = "AUTH_REFRESH_REQUIRED", 401
	case frappe.KindNotFound:
		out.Code, out.Status = "NOT_FOUND", 404
	case frappe.KindConflict:
		out.Code, out.Status = "CONFLICT", 409
	case frappe.KindValidationRejected:
		out.Code, out.Status = "VALIDATION_REJECTED", 417
		for _, msg := range fe.ServerMessages {
			out.Details = append(out.Details, ErrorDetail{Rule: "backend", Message: msg})
		}
	case frappe.KindBackendFault:
		out.Code, out.Status = "BACKEND_FAULT", 502
	case frappe.KindMalformedResponse, frappe.KindNotJSON:
		out.Code, out.Status = "MALFORMED_RESPONSE", 502
	case frappe.KindClientError:
		out.Code, out.Status = "CLIENT_ERROR", 400
	default:
		out.Code, out.Status = "UPSTREAM_ERROR", 502
	}
	return out
}

func UnauthorizedError(msg string) *AppError {
	return &AppError{Code: "UNAUTHORIZED", Status: 401, Message: msg}
}

// ErrorHandler renders every error as an ErrorResponse. Backend failures
// keep their classification; anything unclassified is logged and hidden.
func ErrorHandler(logger *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			return c.Status(fiberErr.Code).JSON(ErrorResponse{
				Error: &AppError{Code: "HTTP_ERROR", Message: fiberErr.Message},
			})
		}

		appErr := FromError(err)
		switch {
		case appErr.Status >= 500 && appErr.Code == "INTERNAL_ERROR":
			logger.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
			appErr = &AppError{Code: "INTERNAL_ERROR", Status: 500, Message: "Internal server error"}
		case appErr.Status >= 500:
			logger.Error("backend call failed",
				zap.String("path", c.Path()),
				zap.String("kind", string(frappe.KindOf(err))),
				zap.Error(err))
		case appErr.Code == "AUTH_REFRESH_REQUIRED":
			logger.Warn("backend rejected credentials", zap.String("path", c.Path()))
		}
		return c.Status(appErr.Status).JSON(ErrorResponse{Error: appErr})
	}
}
