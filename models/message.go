package models

import "time"

/************************************************
/**** MARK: MESSAGE DIRECTION ****/
/************************************************/
const MESSAGE_DIRECTION_INBOUND = "inbound"
const MESSAGE_DIRECTION_OUTBOUND = "outbound"

/************************************************
/**** MARK: MESSAGE CONTENT TYPES ****/
/************************************************/
const MESSAGE_CONTENT_TEXT = "text"
const MESSAGE_CONTENT_IMAGE = "image"
const MESSAGE_CONTENT_AUDIO = "audio"
const MESSAGE_CONTENT_DOCUMENT = "document"

// Message is one inbound or outbound unit of content. Rows are append-only;
// ExternalID carries the provider-assigned id and keeps webhook redelivery
// idempotent.
type Message struct {
	ID             string `gorm:"primary_key;type:varchar(36)" json:"id"`
	ConversationID string `gorm:"not null;index" json:"conversation_id"`
	Direction      string `gorm:"not null" json:"direction"`
	ContentType    string `gorm:"not null;default:'text'" json:"content_type"`
	ContentText    string `gorm:"type:text" json:"content_text"`
	ExternalID     string `gorm:"unique_index" json:"external_id"`

	// SentAt is the provider-reported send time; CreatedAt is when the row
	// landed here.
	SentAt    *time.Time `json:"sent_at"`
	CreatedAt *time.Time `json:"created_at"`
}
