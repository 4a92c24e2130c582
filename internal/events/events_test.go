package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"github.com/learnhub/learnhub/internal/database/testutil"
	"github.com/learnhub/learnhub/internal/models"
	"github.com/learnhub/learnhub/internal/services"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (r *recordingPublisher) Publish(_ context.Context, event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return r.err
}

func TestFanOutDeliversToEverySinkAndAggregatesErrors(t *testing.T) {
	ok := &recordingPublisher{}
	failing := &recordingPublisher{err: errors.New("sink down")}

	publisher := FanOut(ok, nil, failing)
	err := publisher.Publish(context.Background(), Event{Type: SessionCreated, UserID: "u1"})
	require.ErrorContains(t, err, "sink down")
	require.Len(t, ok.events, 1)
	require.Len(t, failing.events, 1)

	require.IsType(t, Nop{}, FanOut())
	require.Same(t, ok, FanOut(nil, ok))
}

func TestSessionRefIsStableAndOpaque(t *testing.T) {
	ref := SessionRef("anchor-value")
	require.Len(t, ref, 16)
	require.Equal(t, ref, SessionRef("anchor-value"))
	require.NotEqual(t, ref, SessionRef("anchor-other"))
	require.NotContains(t, ref, "anchor")
	require.Empty(t, SessionRef(""))
}

type fakeWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaPublisherKeysByUser(t *testing.T) {
	writer := &fakeWriter{}
	publisher := newKafkaPublisher(writer, KafkaConfig{Topic: "learnhub.sessions"})

	occurred := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	event := Event{Type: SessionForced, UserID: "user-7", Role: models.RoleStudent, OccurredAt: occurred}
	require.NoError(t, publisher.Publish(context.Background(), event))

	require.Len(t, writer.messages, 1)
	msg := writer.messages[0]
	require.Equal(t, []byte("user-7"), msg.Key)
	require.Equal(t, occurred, msg.Time)
	require.Equal(t, "event_type", msg.Headers[0].Key)
	require.Equal(t, []byte("session.forced"), msg.Headers[0].Value)

	var decoded Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	require.Equal(t, SessionForced, decoded.Type)
	require.Equal(t, models.RoleStudent, decoded.Role)

	require.NoError(t, publisher.Close())
	require.True(t, writer.closed)
}

func TestKafkaPublisherSurfacesWriteErrors(t *testing.T) {
	publisher := newKafkaPublisher(&fakeWriter{err: errors.New("broker unavailable")}, KafkaConfig{Topic: "t"})
	err := publisher.Publish(context.Background(), Event{Type: SessionEnded})
	require.ErrorContains(t, err, "broker unavailable")
}

func TestNewKafkaPublisherValidatesConfig(t *testing.T) {
	_, err := NewKafkaPublisher(KafkaConfig{Topic: "t"})
	require.Error(t, err)
	_, err = NewKafkaPublisher(KafkaConfig{Brokers: []string{"localhost:9092"}})
	require.Error(t, err)
}

func TestAuditPublisherPersistsEvents(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	audit, err := services.NewAuditService(db)
	require.NoError(t, err)

	publisher := NewAuditPublisher(audit)
	ctx := context.Background()
	require.NoError(t, publisher.Publish(ctx, Event{
		Type:       SessionConflict,
		UserID:     "0f6b5a4e-1c2d-4e3f-8a9b-0c1d2e3f4a5b",
		Username:   "priya",
		Role:       models.RoleStudent,
		IPAddress:  "10.1.1.1",
		OccurredAt: time.Now(),
	}))
	require.NoError(t, publisher.Publish(ctx, Event{Type: SessionsReset, Count: 12, Reason: ReasonReset}))

	logs, total, err := audit.List(ctx, services.AuditListOptions{Filters: services.AuditFilters{Action: string(SessionConflict)}})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	require.Equal(t, "failure", logs[0].Result)
	require.Equal(t, "priya", logs[0].Username)

	logs, _, err = audit.List(ctx, services.AuditListOptions{Filters: services.AuditFilters{Action: string(SessionsReset)}})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.Equal(t, "success", logs[0].Result)

	var meta map[string]any
	require.NoError(t, json.Unmarshal(logs[0].Metadata, &meta))
	require.EqualValues(t, 12, meta["count"])
}

type fakeNotifier struct {
	sessions []string
	all      []string
}

func (n *fakeNotifier) TerminateSession(userID, sessionRef, reason string) {
	n.sessions = append(n.sessions, userID+"/"+sessionRef+"/"+reason)
}

func (n *fakeNotifier) TerminateAll(reason string) {
	n.all = append(n.all, reason)
}

func TestNotifierPublisherRoutesTerminations(t *testing.T) {
	notifier := &fakeNotifier{}
	publisher := NewNotifierPublisher(notifier)
	ctx := context.Background()

	require.NoError(t, publisher.Publish(ctx, Event{Type: SessionEnded, UserID: "u1", SessionRef: "ref", Reason: ReasonForced}))
	require.NoError(t, publisher.Publish(ctx, Event{Type: SessionEnded, UserID: "u2"}))
	require.NoError(t, publisher.Publish(ctx, Event{Type: SessionCreated, UserID: "u1", SessionRef: "ref2"}))
	require.NoError(t, publisher.Publish(ctx, Event{Type: SessionsReset, Count: 3}))

	require.Equal(t, []string{"u1/ref/forced"}, notifier.sessions)
	require.Equal(t, []string{ReasonReset}, notifier.all)
}
