package entities

import "time"

// AlertSeverity ranks how urgently an alert needs attention.
type AlertSeverity string

const (
	AlertSeverityLow      AlertSeverity = "LOW"
	AlertSeverityMedium   AlertSeverity = "MEDIUM"
	AlertSeverityHigh     AlertSeverity = "HIGH"
	AlertSeverityCritical AlertSeverity = "CRITICAL"
)

// AlertType classifies the condition that raised the alert.
type AlertType string

const (
	AlertTypeSecurity    AlertType = "SECURITY"
	AlertTypePerformance AlertType = "PERFORMANCE"
	AlertTypeCompliance  AlertType = "COMPLIANCE"
	AlertTypeSystem      AlertType = "SYSTEM"
)

// Alert is a persisted operational or compliance alert raised by a worker,
// the integrity verifier, or the GDPR engine. OrganizationID is nil for
// infrastructure-level alerts (circuit breaker, queue backlog) that have no
// natural tenant owner; every other alert carries one, and every read path
// other than the explicit administrative ones filters by it.
type Alert struct {
	ID              int64          `json:"id" db:"id"`
	OrganizationID  *string        `json:"organizationId,omitempty" db:"organization_id"`
	Type            AlertType      `json:"type" db:"type"`
	Severity        AlertSeverity  `json:"severity" db:"severity"`
	Source          string         `json:"source" db:"source"`
	Title           string         `json:"title" db:"title"`
	Description     string         `json:"description" db:"description"`
	Timestamp       time.Time      `json:"timestamp" db:"timestamp"`
	Resolved        bool           `json:"resolved" db:"resolved"`
	ResolvedAt      *time.Time     `json:"resolvedAt,omitempty" db:"resolved_at"`
	ResolvedBy      *string        `json:"resolvedBy,omitempty" db:"resolved_by"`
	ResolutionNotes *string        `json:"resolutionNotes,omitempty" db:"resolution_notes"`
}

// Resolve marks the alert as handled, recording who closed it and why.
func (a *Alert) Resolve(resolvedBy, notes string, at time.Time) {
	a.Resolved = true
	a.ResolvedAt = &at
	a.ResolvedBy = &resolvedBy
	if notes != "" {
		a.ResolutionNotes = &notes
	}
}

// AlertStatistics summarizes alert volume for an organization (or, when
// scoped to no organization, for infrastructure-level alerts).
type AlertStatistics struct {
	Total      int64                    `json:"total"`
	Active     int64                    `json:"active"`
	BySeverity map[AlertSeverity]int64 `json:"bySeverity"`
	ByType     map[AlertType]int64     `json:"byType"`
}
