package models

import "time"

// SessionState is either Inactive or Active with an anchor. The zero value is Inactive.
type SessionState struct {
	anchor string
	since  time.Time
}

// Inactive returns the state of an account without a live session.
func Inactive() SessionState {
	return SessionState{}
}

// Active returns a live session state. An empty anchor yields Inactive.
func Active(anchor string, since time.Time) SessionState {
	if anchor == "" {
		return Inactive()
	}
	return SessionState{anchor: anchor, since: since}
}

func (s SessionState) IsActive() bool {
	return s.anchor != ""
}

func (s SessionState) Anchor() string {
	return s.anchor
}

func (s SessionState) Since() time.Time {
	return s.since
}

// Columns returns the update set for the session columns. is_active and session_id
// always travel together.
func (s SessionState) Columns() map[string]any {
	if !s.IsActive() {
		return map[string]any{
			"is_active":  false,
			"session_id": nil,
		}
	}
	return map[string]any{
		"is_active":  true,
		"session_id": s.anchor,
	}
}
