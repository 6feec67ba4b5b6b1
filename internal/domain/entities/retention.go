package entities

import "time"

// RetentionPolicy defines how long events of a given data classification
// (optionally narrowed to a single action) are kept before being archived
// and, later, permanently deleted. Archival and deletion are independent
// optional steps: ArchiveAfterDays gates the archive step, DeleteAfterDays
// gates the delete step, and deletion only ever touches events that have
// already been archived.
type RetentionPolicy struct {
	ID                 int64              `json:"id" db:"id"`
	Name               string             `json:"name" db:"name"`
	DataClassification DataClassification `json:"dataClassification" db:"data_classification"`
	Action             *string            `json:"action,omitempty" db:"action"`
	RetentionDays      int                `json:"retentionDays" db:"retention_days"`
	ArchiveAfterDays   *int               `json:"archiveAfterDays,omitempty" db:"archive_after_days"`
	DeleteAfterDays    *int               `json:"deleteAfterDays,omitempty" db:"delete_after_days"`
	IsActive           bool               `json:"isActive" db:"is_active"`
	CreatedAt          time.Time          `json:"createdAt" db:"created_at"`
	UpdatedAt          time.Time          `json:"updatedAt" db:"updated_at"`
}

// Matches reports whether this policy applies to an event with the given
// classification and action.
func (p *RetentionPolicy) Matches(classification DataClassification, action string) bool {
	if p.DataClassification != classification {
		return false
	}
	if p.Action != nil && *p.Action != action {
		return false
	}
	return true
}

// ArchiveCutoffFor returns the timestamp before which events should be
// archived, or the zero time if this policy has no archival step.
func (p *RetentionPolicy) ArchiveCutoffFor(now time.Time) (time.Time, bool) {
	if p.ArchiveAfterDays == nil {
		return time.Time{}, false
	}
	return now.AddDate(0, 0, -*p.ArchiveAfterDays), true
}

// DeleteCutoffFor returns the timestamp before which already-archived
// events should be permanently deleted, or the zero time if this policy
// has no delete step.
func (p *RetentionPolicy) DeleteCutoffFor(now time.Time) (time.Time, bool) {
	if p.DeleteAfterDays == nil {
		return time.Time{}, false
	}
	return now.AddDate(0, 0, -*p.DeleteAfterDays), true
}

// RetentionApplyResult summarizes the outcome of one retention sweep.
type RetentionApplyResult struct {
	PolicyID      int64 `json:"policyId"`
	ArchivedCount int64 `json:"archivedCount"`
	DeletedCount  int64 `json:"deletedCount"`
}
