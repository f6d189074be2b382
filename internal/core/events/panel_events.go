package events

const (
	// ListInvalidated marks every cached page of one entity list as stale.
	ListInvalidated = "list.invalidated"
	// SessionEnded is published after a logout removed a session.
	SessionEnded = "session.ended"
)

func NewListInvalidated(tag string) BaseEvent {
	return NewEvent(ListInvalidated, map[string]interface{}{
		"tag": tag,
	})
}

func NewSessionEnded(sessionID, userID string) BaseEvent {
	return NewEvent(SessionEnded, map[string]interface{}{
		"session_id": sessionID,
		"user_id":    userID,
	})
}

// Tag extracts the cache tag of a ListInvalidated event.
func Tag(event Event) string {
	if e, ok := event.(BaseEvent); ok {
		return e.String("tag")
	}
	return ""
}

// SessionID extracts the session id of a SessionEnded event.
func SessionID(event Event) string {
	if e, ok := event.(BaseEvent); ok {
		return e.String("session_id")
	}
	return ""
}
