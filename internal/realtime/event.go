package realtime

import "encoding/json"

// EventType is the closed set of push event names. Producers and the client
// package switch over these constants; the wire format stays a string tag.
type EventType string

const (
	EventTaskCreated         EventType = "TaskCreated"
	EventTaskUpdated         EventType = "TaskUpdated"
	EventTaskStatusChanged   EventType = "TaskStatusChanged"
	EventTaskAssigned        EventType = "TaskAssigned"
	EventTaskDeleted         EventType = "TaskDeleted"
	EventCommentAdded        EventType = "CommentAdded"
	EventNotificationCreated EventType = "NotificationCreated"
)

// ValidEventType reports whether t names a known event.
func ValidEventType(t EventType) bool {
	switch t {
	case EventTaskCreated, EventTaskUpdated, EventTaskStatusChanged,
		EventTaskAssigned, EventTaskDeleted, EventCommentAdded,
		EventNotificationCreated:
		return true
	}
	return false
}

// Event is the envelope pushed to sessions. Data carries the affected
// entity's current serialized state.
type Event struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data"`
}

// NewEvent serializes payload into an Event envelope.
func NewEvent(eventType EventType, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{
		Type: eventType,
		Data: data,
	}, nil
}
