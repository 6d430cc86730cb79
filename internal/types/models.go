// internal/types/models.go
package types

// EventKind classifies an inbound transport event.
type EventKind string

const (
	EventImage    EventKind = "image"
	EventText     EventKind = "text"
	EventCommand  EventKind = "command"
	EventCallback EventKind = "callback"
)

// InboundEvent is the transport-neutral form of one update.
type InboundEvent struct {
	Kind       EventKind  `json:"kind"`
	SessionKey SessionKey `json:"session_key"`
	ChatID     int64      `json:"chat_id"`
	UserID     string     `json:"user_id"`
	MessageID  int        `json:"message_id,omitempty"`
	Text       string     `json:"text,omitempty"`
	Command    string     `json:"command,omitempty"`
	Args       []string   `json:"args,omitempty"`
	ImageRef   string     `json:"image_ref,omitempty"`
	CallbackID string     `json:"callback_id,omitempty"`
	Data       string     `json:"data,omitempty"`
}
