package fanout

import "agromind/internal/models"

// CommandJoinGroup subscribes the sending connection to a group
const CommandJoinGroup = "joinGroup"

// Control events sent besides message events
const (
	EventJoined = "joined"
	EventError  = "error"
)

// Command is a client to server frame on the real-time channel
type Command struct {
	Type    string `json:"type"`
	GroupID string `json:"groupId"`
}

// Envelope is a server to client frame. Message events carry Data; control
// events carry GroupID or Error.
type Envelope struct {
	Event   string          `json:"event"`
	Data    *models.Message `json:"data,omitempty"`
	GroupID string          `json:"groupId,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// EnvelopeFor converts a hub event into its wire frame
func EnvelopeFor(ev models.Event) Envelope {
	return Envelope{Event: ev.Kind.WireName(), Data: ev.Message, GroupID: ev.GroupID}
}

// EventFromEnvelope converts a message frame back into an event. ok is false
// for control frames and unknown events.
func EventFromEnvelope(env Envelope) (models.Event, bool) {
	kind, ok := models.EventKindFromWire(env.Event)
	if !ok || env.Data == nil {
		return models.Event{}, false
	}
	groupID := env.Data.GroupID
	if groupID == "" {
		groupID = env.GroupID
	}
	return models.Event{Kind: kind, GroupID: groupID, Message: env.Data}, true
}
