package models

import "time"

// Conversation is the persistent thread with one remote contact on one
// instance. Created lazily on the first inbound message from an unseen
// contact; never deleted by this subsystem.
type Conversation struct {
	ID          string `gorm:"primary_key;type:varchar(36)" json:"id"`
	InstanceID  string `gorm:"not null;index;unique_index:idx_instance_contact" json:"instance_id"`
	ContactRef  string `gorm:"not null;unique_index:idx_instance_contact" json:"contact_ref"`
	ContactName string `gorm:"default:''" json:"contact_name"`
	PatientID   string `gorm:"default:''" json:"patient_id"`

	LastMessageText string     `gorm:"type:text" json:"last_message_text"`
	LastActivity    *time.Time `gorm:"index" json:"last_activity"`

	CreatedAt *time.Time `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at"`
}
