package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Operation names an audited service operation.
type Operation string

const (
	// OperationSave is a configuration save.
	OperationSave Operation = "save"

	// OperationGet is a configuration read.
	OperationGet Operation = "get"

	// OperationHistory is a history listing.
	OperationHistory Operation = "history"
)

// IsRead reports whether op only reads data.
func (op Operation) IsRead() bool {
	return op == OperationGet || op == OperationHistory
}

// NewEvent creates a new audit event.
func NewEvent(op Operation, service string) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Operation: op,
		Service:   service,
	}
}

// WithVersion records the version the operation resolved to.
func (e *Event) WithVersion(version int) *Event {
	e.Version = version
	return e
}

// WithTransport records the surface the request arrived on (http, mcp).
func (e *Event) WithTransport(transport string) *Event {
	e.Transport = transport
	return e
}

// WithParameters adds parameters to the event.
func (e *Event) WithParameters(params map[string]any) *Event {
	e.Parameters = SanitizeParameters(params)
	return e
}

// WithResult adds result information to the event.
func (e *Event) WithResult(success bool, errorKind, errorMsg string, durationMS int64) *Event {
	e.Success = success
	e.ErrorKind = errorKind
	e.ErrorMessage = errorMsg
	e.DurationMS = durationMS
	return e
}

// WithRequestID adds a request ID to the event.
func (e *Event) WithRequestID(requestID string) *Event {
	e.RequestID = requestID
	return e
}

// SanitizeParameters masks sensitive values, such as template variables
// named like credentials.
func SanitizeParameters(params map[string]any) map[string]any {
	if params == nil {
		return nil
	}

	sensitiveKeys := map[string]bool{
		"password":      true,
		"secret":        true,
		"token":         true,
		"api_key":       true,
		"authorization": true,
		"credentials":   true,
	}

	sanitized := make(map[string]any, len(params))
	for k, v := range params {
		switch {
		case sensitiveKeys[k]:
			sanitized[k] = "[REDACTED]"
		default:
			if nested, ok := v.(map[string]any); ok {
				sanitized[k] = SanitizeParameters(nested)
				continue
			}
			sanitized[k] = v
		}
	}
	return sanitized
}

// Noop discards events. It is used when auditing is disabled.
type Noop struct{}

// Log discards event.
func (Noop) Log(context.Context, Event) error { return nil }

// Query returns no events.
func (Noop) Query(context.Context, QueryFilter) ([]Event, error) { return []Event{}, nil }

// Close does nothing.
func (Noop) Close() error { return nil }

var _ Logger = Noop{}
