package models

import "time"

// StatusAudit records a forced status change applied by the recovery
// service. Writes are best-effort: a failed audit insert never fails the
// reset itself.
type StatusAudit struct {
	ID          int64  `gorm:"primary_key;AUTO_INCREMENT" json:"id"`
	InstanceID  string `gorm:"not null;index" json:"instance_id"`
	PriorStatus string `gorm:"not null" json:"prior_status"`
	NewStatus   string `gorm:"not null" json:"new_status"`
	Reason      string `gorm:"type:text" json:"reason"`

	CreatedAt *time.Time `json:"created_at"`
}
