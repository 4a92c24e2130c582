// Package events carries session lifecycle notifications from the auth core to
// side channels: the audit log, the Kafka stream, and connected devices.
package events

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"go.uber.org/multierr"

	"github.com/learnhub/learnhub/internal/models"
)

// Type names a session lifecycle event.
type Type string

const (
	SessionCreated         Type = "session.created"
	SessionJoined          Type = "session.joined"
	SessionConflict        Type = "session.conflict"
	SessionForced          Type = "session.forced"
	SessionEnded           Type = "session.ended"
	SessionLogoutScheduled Type = "session.logout_scheduled"
	SessionRepaired        Type = "session.repaired"
	SessionsCleanup        Type = "sessions.cleanup"
	SessionsReset          Type = "sessions.reset"
	LoginFailed            Type = "login.failed"
)

// Reasons attached to SessionEnded events.
const (
	ReasonForced  = "forced"
	ReasonEnded   = "ended"
	ReasonCleanup = "logout_cleanup"
	ReasonReset   = "daily_reset"
)

// Event describes something that happened to a user's session. It never carries
// session anchors or tokens; SessionRef is a one-way fingerprint of the anchor.
type Event struct {
	Type       Type        `json:"type"`
	UserID     string      `json:"user_id,omitempty"`
	Username   string      `json:"username,omitempty"`
	Role       models.Role `json:"role,omitempty"`
	SessionRef string      `json:"session_ref,omitempty"`
	Reason     string      `json:"reason,omitempty"`
	Count      int64       `json:"count,omitempty"`
	IPAddress  string      `json:"ip_address,omitempty"`
	UserAgent  string      `json:"user_agent,omitempty"`
	OccurredAt time.Time   `json:"occurred_at"`
}

// Publisher delivers events to a sink. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// PublisherFunc adapts a function to the Publisher interface.
type PublisherFunc func(ctx context.Context, event Event) error

func (f PublisherFunc) Publish(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

type fanOut []Publisher

// FanOut delivers each event to every non-nil publisher, aggregating failures.
func FanOut(publishers ...Publisher) Publisher {
	sinks := make(fanOut, 0, len(publishers))
	for _, p := range publishers {
		if p != nil {
			sinks = append(sinks, p)
		}
	}
	if len(sinks) == 0 {
		return Nop{}
	}
	if len(sinks) == 1 {
		return sinks[0]
	}
	return sinks
}

func (f fanOut) Publish(ctx context.Context, event Event) error {
	var err error
	for _, p := range f {
		err = multierr.Append(err, p.Publish(ctx, event))
	}
	return err
}

// SessionRef fingerprints a session anchor for correlation without exposing it.
func SessionRef(anchor string) string {
	if anchor == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(anchor))
	return hex.EncodeToString(sum[:8])
}
