package frappe

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a backend failure.
type Kind string

const (
	KindNotFound           Kind = "not_found"
	KindConflict           Kind = "conflict"
	KindValidationRejected Kind = "validation_rejected"
	KindAuthExpired        Kind = "auth_expired"
	KindBackendFault       Kind = "backend_fault"
	KindMalformedResponse  Kind = "malformed_response"
	KindClientError        Kind = "client_error"
	KindUnexpectedStatus   Kind = "unexpected_status"
	KindNotJSON            Kind = "not_json"
)

// Sentinels for errors.Is. Every *Error matches the sentinel of its kind.
var (
	ErrNotFound           = &Error{Kind: KindNotFound}
	ErrConflict           = &Error{Kind: KindConflict}
	ErrValidationRejected = &Error{Kind: KindValidationRejected}
	ErrAuthExpired        = &Error{Kind: KindAuthExpired}
	ErrBackendFault       = &Error{Kind: KindBackendFault}
	ErrMalformedResponse  = &Error{Kind: KindMalformedResponse}
	ErrClientError        = &Error{Kind: KindClientError}
	ErrUnexpectedStatus   = &Error{Kind: KindUnexpectedStatus}
	ErrNotJSON            = &Error{Kind: KindNotJSON}
)

// Error is a classified failure of a backend call.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	URL     string
	// ServerMessages are the backend's own messages (HTTP 417).
	ServerMessages []string
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Status > 0 {
		fmt.Fprintf(&b, "%d: ", e.Status)
	}
	if e.Message != "" {
		b.WriteString(e.Message)
	} else {
		b.WriteString(string(e.Kind))
	}
	if len(e.ServerMessages) > 0 {
		b.WriteString(" Message from ERPNext: ")
		b.WriteString(strings.Join(e.ServerMessages, "; "))
	}
	return b.String()
}

// Is matches any *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// KindOf returns the kind of a classified error, or "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsAuthExpired reports whether the host should refresh credentials and
// retry the operation once.
func IsAuthExpired(err error) bool {
	return errors.Is(err, ErrAuthExpired)
}

// parseServerMessages decodes the backend's `_server_messages` field: a JSON
// encoded list whose items are JSON encoded objects with a "message" key, or
// plain strings.
func parseServerMessages(raw any) []string {
	s, ok := raw.(string)
	if !ok || s == "" {
		return nil
	}
	var items []string
	if err := json.Unmarshal([]byte(s), &items); err != nil {
		return []string{s}
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		var msg struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal([]byte(item), &msg); err == nil && msg.Message != "" {
			out = append(out, msg.Message)
			continue
		}
		out = append(out, item)
	}
	return out
}
