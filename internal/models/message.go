package models

import "time"

// EventKind identifies what happened to a message when it is fanned out
type EventKind string

const (
	EventCreated EventKind = "created"
	EventPinned  EventKind = "pinned"
)

// Wire names of the server-to-client real-time events
const (
	WireEventNewMessage = "newMessage"
	WireEventPinMessage = "pinMessage"
)

// WireName returns the event name used on the real-time channel
func (k EventKind) WireName() string {
	switch k {
	case EventCreated:
		return WireEventNewMessage
	case EventPinned:
		return WireEventPinMessage
	default:
		return ""
	}
}

// EventKindFromWire maps a real-time event name back to its kind
func EventKindFromWire(name string) (EventKind, bool) {
	switch name {
	case WireEventNewMessage:
		return EventCreated, true
	case WireEventPinMessage:
		return EventPinned, true
	default:
		return "", false
	}
}

// Message is a single chat message posted to a group
type Message struct {
	ID         string    `json:"id"`
	GroupID    string    `json:"groupId"`
	AuthorID   string    `json:"userId"`
	AuthorName string    `json:"userName"`
	Text       string    `json:"text"`
	ImageRef   string    `json:"image,omitempty"`
	Language   string    `json:"lang"`
	ParentID   *string   `json:"parentId"`
	Pinned     bool      `json:"pinned"`
	CreatedAt  time.Time `json:"createdAt"`
}

// IsReply reports whether the message references a parent
func (m *Message) IsReply() bool {
	return m.ParentID != nil && *m.ParentID != ""
}

// MessageDraft carries the author-supplied fields of a message before the
// store assigns identity and timestamps.
type MessageDraft struct {
	AuthorID   string  `json:"userId"`
	AuthorName string  `json:"userName"`
	Text       string  `json:"text"`
	ImageRef   string  `json:"image,omitempty"`
	Language   string  `json:"lang"`
	ParentID   *string `json:"parentId,omitempty"`
}

// Event is a store-side change delivered to live connections
type Event struct {
	Kind    EventKind `json:"kind"`
	GroupID string    `json:"groupId"`
	Message *Message  `json:"message"`
}

// StringPtr returns nil for an empty string, otherwise a pointer to a copy
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
