package events

import (
	"context"

	"github.com/learnhub/learnhub/internal/services"
	"github.com/learnhub/learnhub/pkg/metrics"
)

// AuditPublisher persists events to the audit log.
type AuditPublisher struct {
	audit *services.AuditService
}

// NewAuditPublisher wraps the audit service.
func NewAuditPublisher(audit *services.AuditService) *AuditPublisher {
	return &AuditPublisher{audit: audit}
}

func (p *AuditPublisher) Publish(ctx context.Context, event Event) error {
	entry := services.AuditEntry{
		Username:  event.Username,
		Action:    string(event.Type),
		Result:    auditResult(event.Type),
		IPAddress: event.IPAddress,
		UserAgent: event.UserAgent,
		Metadata:  auditMetadata(event),
	}
	if event.UserID != "" {
		id := event.UserID
		entry.UserID = &id
	}

	if err := p.audit.Log(context.WithoutCancel(ctx), entry); err != nil {
		metrics.EventsPublished.WithLabelValues("audit", "error").Inc()
		return err
	}
	metrics.EventsPublished.WithLabelValues("audit", "ok").Inc()
	return nil
}

func auditResult(t Type) string {
	switch t {
	case LoginFailed, SessionConflict:
		return "failure"
	default:
		return "success"
	}
}

func auditMetadata(event Event) map[string]any {
	meta := map[string]any{}
	if event.Role != "" {
		meta["role"] = string(event.Role)
	}
	if event.SessionRef != "" {
		meta["session_ref"] = event.SessionRef
	}
	if event.Reason != "" {
		meta["reason"] = event.Reason
	}
	if event.Count != 0 {
		meta["count"] = event.Count
	}
	if len(meta) == 0 {
		return nil
	}
	return meta
}
