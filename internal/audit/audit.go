package audit

import (
	"time"
)

// AuditInfo records who created a record and who last changed it.
type AuditInfo struct {
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedBy string    `json:"updated_by,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

// NewAuditInfo returns an AuditInfo stamped with the creator and the given time (UTC).
// An empty creator is recorded as "system".
func NewAuditInfo(creator string, at time.Time) *AuditInfo {
	var c string
	if creator != "" {
		c = creator
	} else {
		c = "system"
	}

	return &AuditInfo{
		CreatedBy: c,
		CreatedAt: at.UTC(),
	}
}

// UpdateAuditInfo stamps the record as changed by updatedBy at the given time.
func (a *AuditInfo) UpdateAuditInfo(updatedBy string, at time.Time) {
	if updatedBy == "" {
		updatedBy = "system"
	}
	a.UpdatedBy = updatedBy
	a.UpdatedAt = at.UTC()
}
