package audit

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"order-desk/backend/internal/audit/domain"
	auditrepo "order-desk/backend/internal/audit/repository"
)

// SentinelOrgID is the org_id used for audit events that have no organization (e.g. a forced sign-out of a
// principal with no memberships left).
const SentinelOrgID = "_system"

// AuditLogger writes a single audit event with explicit action/resource. Used by the session facade and the
// synchronizer. LogEvent is best-effort: failures are logged and do not affect the caller.
type AuditLogger interface {
	LogEvent(ctx context.Context, orgID, subjectID, action, resource, metadata string)
}

// Logger implements AuditLogger using the audit repository.
type Logger struct {
	repo   auditrepo.Repository
	source string
	now    func() time.Time
}

// NewLogger returns an AuditLogger that persists to repo. source names the writing process; empty means "unknown".
func NewLogger(repo auditrepo.Repository, source string) *Logger {
	if source == "" {
		source = "unknown"
	}
	return &Logger{repo: repo, source: source, now: time.Now}
}

// LogEvent writes one audit log entry. Best-effort: errors are logged and not returned.
func (l *Logger) LogEvent(ctx context.Context, orgID, subjectID, action, resource, metadata string) {
	if l == nil || l.repo == nil {
		return
	}
	if orgID == "" {
		orgID = SentinelOrgID
	}
	entry := &domain.AuditLog{
		ID:        uuid.New().String(),
		OrgID:     orgID,
		SubjectID: subjectID,
		Action:    action,
		Resource:  resource,
		Source:    l.source,
		Metadata:  metadata,
		CreatedAt: l.now().UTC(),
	}
	if err := l.repo.Create(ctx, entry); err != nil {
		log.Printf("audit: failed to log event %s/%s: %v", action, resource, err)
	}
}
