package models

import "time"

// QueuedOutboundMessage is a client-local record of a send that could not
// reach the store. LocalKey never leaves the client.
type QueuedOutboundMessage struct {
	LocalKey string       `json:"localKey"`
	GroupID  string       `json:"groupId"`
	Payload  MessageDraft `json:"payload"`
	QueuedAt time.Time    `json:"queuedAt"`
}
