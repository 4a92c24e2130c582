package events

import "context"

// SessionNotifier pushes termination notices to devices connected on a session.
type SessionNotifier interface {
	TerminateSession(userID, sessionRef, reason string)
	TerminateAll(reason string)
}

// NotifierPublisher turns session endings into device notifications.
type NotifierPublisher struct {
	notifier SessionNotifier
}

// NewNotifierPublisher wraps a notifier, typically the websocket hub.
func NewNotifierPublisher(notifier SessionNotifier) *NotifierPublisher {
	return &NotifierPublisher{notifier: notifier}
}

func (p *NotifierPublisher) Publish(_ context.Context, event Event) error {
	switch event.Type {
	case SessionEnded:
		if event.UserID != "" && event.SessionRef != "" {
			p.notifier.TerminateSession(event.UserID, event.SessionRef, event.Reason)
		}
	case SessionsReset:
		p.notifier.TerminateAll(ReasonReset)
	}
	return nil
}
