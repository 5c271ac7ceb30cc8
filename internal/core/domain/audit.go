package domain

import "time"

// AuditCategory classifies audit events.
type AuditCategory string

const (
	AuditCategoryAuthentication AuditCategory = "authentication"
	AuditCategoryAuthorization  AuditCategory = "authorization"
	AuditCategoryDataAccess     AuditCategory = "data_access"
	AuditCategoryAdmin          AuditCategory = "admin"
	AuditCategorySecurity       AuditCategory = "security"
	AuditCategorySystem         AuditCategory = "system"
)

// AuditSeverity grades audit events.
type AuditSeverity string

const (
	AuditSeverityInfo     AuditSeverity = "info"
	AuditSeverityWarning  AuditSeverity = "warning"
	AuditSeverityError    AuditSeverity = "error"
	AuditSeverityCritical AuditSeverity = "critical"
)

// AuditResult records the outcome of the audited action.
type AuditResult string

const (
	AuditResultSuccess AuditResult = "success"
	AuditResultFailure AuditResult = "failure"
	AuditResultDenied  AuditResult = "denied"
)

// AuditEvent is an append-only structured record; rows are never mutated.
type AuditEvent struct {
	ID           string
	ActorID      *string
	Category     AuditCategory
	Severity     AuditSeverity
	ResourceType *string
	ResourceID   *string
	Action       string
	Result       AuditResult
	OldValue     map[string]any
	NewValue     map[string]any
	Origin       *string
	UserAgent    *string
	CreatedAt    time.Time
}

// AuditFilter narrows audit queries.
type AuditFilter struct {
	ActorID  *string
	Category *AuditCategory
	Severity *AuditSeverity
	From     *time.Time
	To       *time.Time
	Limit    int
	Offset   int
}

// AuditBucket is one aggregation cell of a compliance report.
type AuditBucket struct {
	Category AuditCategory
	Severity AuditSeverity
	Result   AuditResult
	Count    int
}

// ComplianceReport aggregates audit counts over a date range.
type ComplianceReport struct {
	From    time.Time
	To      time.Time
	Total   int
	Buckets []AuditBucket
}
