package logging

import (
	"go.uber.org/zap"
)

// AuditEventType names a resolution audit event.
type AuditEventType string

const (
	AuditDetectionRun        AuditEventType = "detection_run"
	AuditDetectionFailed     AuditEventType = "detection_failed"
	AuditResolutionApplied   AuditEventType = "resolution_applied"
	AuditResolutionFailed    AuditEventType = "resolution_failed"
	AuditResolutionDiscarded AuditEventType = "resolution_discarded"
	AuditEditsAcknowledged   AuditEventType = "edits_acknowledged"
	AuditSessionCleared      AuditEventType = "session_cleared"
)

// AuditEvent is one entry of the audit trail. Empty fields are omitted.
type AuditEvent struct {
	Type      AuditEventType
	ProjectID string
	Path      string
	Strategy  string
	Error     string
	Count     int
}

// Audit writes the event to the audit category.
func Audit(ev AuditEvent) {
	fields := []zap.Field{zap.String("event", string(ev.Type))}
	if ev.ProjectID != "" {
		fields = append(fields, zap.String("project", ev.ProjectID))
	}
	if ev.Path != "" {
		fields = append(fields, zap.String("path", ev.Path))
	}
	if ev.Strategy != "" {
		fields = append(fields, zap.String("strategy", ev.Strategy))
	}
	if ev.Count > 0 {
		fields = append(fields, zap.Int("count", ev.Count))
	}

	l := Get(CategoryAudit).Zap()
	if ev.Error != "" {
		l.Warn("audit", append(fields, zap.String("error", ev.Error))...)
		return
	}
	l.Info("audit", fields...)
}
