package stringbot

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	auditEventFlowStarted          = "flow_started"
	auditEventFlowCompleted        = "flow_completed"
	auditEventFlowAborted          = "flow_aborted"
	auditEventFlowAbandoned        = "flow_abandoned"
	auditEventFlowTimeout          = "flow_timeout"
	auditEventRateLimited          = "rate_limited"
	auditEventCodeRequested        = "code_requested"
	auditEventCodeRejected         = "code_rejected"
	auditEventSecondFactorRequired = "second_factor_required"
	auditEventSecondFactorRejected = "second_factor_rejected"
	auditEventSessionStored        = "session_stored"
	auditEventSessionRevoked       = "session_revoked"
	auditEventCapacityExceeded     = "capacity_exceeded"
	auditEventMaintenanceToggled   = "maintenance_toggled"
	auditEventIntegrityFailure     = "integrity_failure"
	auditEventInternalError        = "internal_error"
)

// AuditEvent is one audit record. Phone numbers inside Metadata are already
// redacted by the engine before emission; session strings and second-factor
// passwords never appear in any field.
type AuditEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType string            `json:"event_type"`
	UserID    int64             `json:"user_id,omitempty"`
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// AuditSink receives audit events from the dispatcher goroutine.
type AuditSink interface {
	Emit(ctx context.Context, event AuditEvent)
}

// NoOpSink defines a public type used by string-bot APIs.
type NoOpSink struct{}

// Emit describes the emit operation and its observable behavior.
func (NoOpSink) Emit(context.Context, AuditEvent) {}

// ChannelSink defines a public type used by string-bot APIs.
//
// ChannelSink instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type ChannelSink struct {
	events chan AuditEvent
}

// NewChannelSink describes the newchannelsink operation and its observable behavior.
func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan AuditEvent, buffer),
	}
}

// Emit describes the emit operation and its observable behavior.
func (s *ChannelSink) Emit(ctx context.Context, event AuditEvent) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

// Events describes the events operation and its observable behavior.
func (s *ChannelSink) Events() <-chan AuditEvent {
	return s.events
}

// JSONWriterSink defines a public type used by string-bot APIs.
//
// JSONWriterSink instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

// NewJSONWriterSink describes the newjsonwritersink operation and its observable behavior.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

// Emit describes the emit operation and its observable behavior.
func (s *JSONWriterSink) Emit(ctx context.Context, event AuditEvent) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}

// MessengerSink forwards audit events to the bot's audit channel as one-line
// text through [Messenger.NotifyAuditChannel].
type MessengerSink struct {
	messenger Messenger
}

// NewMessengerSink describes the newmessengersink operation and its observable behavior.
func NewMessengerSink(m Messenger) *MessengerSink {
	return &MessengerSink{messenger: m}
}

// Emit describes the emit operation and its observable behavior.
func (s *MessengerSink) Emit(ctx context.Context, event AuditEvent) {
	if s == nil || s.messenger == nil {
		return
	}
	_ = s.messenger.NotifyAuditChannel(ctx, formatAuditLine(event))
}

func formatAuditLine(event AuditEvent) string {
	var b strings.Builder
	b.WriteString(event.Timestamp.UTC().Format(time.RFC3339))
	b.WriteString(" ")
	b.WriteString(event.EventType)
	if event.UserID != 0 {
		fmt.Fprintf(&b, " user=%d", event.UserID)
	}
	fmt.Fprintf(&b, " success=%t", event.Success)
	if event.Error != "" {
		fmt.Fprintf(&b, " error=%q", event.Error)
	}
	if len(event.Metadata) > 0 {
		keys := make([]string, 0, len(event.Metadata))
		for k := range event.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%s", k, event.Metadata[k])
		}
	}
	return b.String()
}

// redactPhone masks a phone number for audit and listing surfaces: the
// leading plus and the first three digits stay visible, the remainder is
// replaced with asterisks.
func redactPhone(phone string) string {
	if phone == "" {
		return ""
	}
	digits := phone
	prefix := ""
	if strings.HasPrefix(digits, "+") {
		prefix = "+"
		digits = digits[1:]
	}
	if len(digits) <= 3 {
		return prefix + strings.Repeat("*", len(digits))
	}
	return prefix + digits[:3] + strings.Repeat("*", len(digits)-3)
}
