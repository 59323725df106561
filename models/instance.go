package models

import (
	"encoding/json"
	"strings"
	"time"
)

/************************************************
/**** MARK: INSTANCE STATUS ****/
/************************************************/
const INSTANCE_STATUS_DISCONNECTED = "disconnected"
const INSTANCE_STATUS_CONNECTING = "connecting"
const INSTANCE_STATUS_CONNECTED = "connected"
const INSTANCE_STATUS_ERROR = "error"
const INSTANCE_STATUS_SUSPENDED = "suspended"
const INSTANCE_STATUS_MAINTENANCE = "maintenance"

/************************************************
/**** MARK: CHANNEL TYPES ****/
/************************************************/
const CHANNEL_TYPE_WHATSAPP = "whatsapp"
const CHANNEL_TYPE_TELEGRAM = "telegram"
const CHANNEL_TYPE_VOICE = "voice"
const CHANNEL_TYPE_MOCK = "mock"

// ChannelInstance is one tenant-configured connection to a messaging
// provider endpoint. Status is only mutated through the lifecycle service,
// the connect flow and the recovery service, all using the same transition
// rules.
type ChannelInstance struct {
	ID          string `gorm:"primary_key;type:varchar(36)" json:"id"`
	TenantID    string `gorm:"not null;index" json:"tenant_id"`
	ChannelType string `gorm:"not null" json:"channel_type"`
	DisplayName string `gorm:"not null" json:"display_name"`
	Status      string `gorm:"not null;default:'disconnected';index" json:"status"`

	// Config holds the tenant-owned settings block as raw JSON. It is stored
	// verbatim so it round-trips byte-for-byte through create/update/read.
	Config string `gorm:"type:text" json:"config"`

	ErrorMessage string `gorm:"type:text" json:"error_message"`

	// Recovery flag, persisted on the row so cleanup survives restarts and
	// works across server replicas.
	FlaggedProblematic bool   `gorm:"default:false;index" json:"flagged_problematic"`
	FlagReason         string `gorm:"default:''" json:"flag_reason"`

	// Last linking code handed out by the provider, polled by the UI.
	Code          string     `gorm:"default:''" json:"code"`
	CodeExpiresAt *time.Time `json:"code_expires_at"`

	CreatedAt    *time.Time `json:"created_at"`
	UpdatedAt    *time.Time `json:"updated_at"`
	LastActivity *time.Time `json:"last_activity"`
}

// InstanceSettings is the typed view over the Config JSON block. Parsing is
// lenient: unknown keys are preserved in the raw column, never here.
type InstanceSettings struct {
	AutoReply     bool              `json:"auto_reply"`
	BusinessHours map[string]string `json:"business_hours,omitempty"`
	AISettings    map[string]any    `json:"ai_settings,omitempty"`
	WebhookURL    string            `json:"webhook_url,omitempty"`
	WebhookSecret string            `json:"webhook_secret,omitempty"`
	RateLimit     int               `json:"rate_limit,omitempty"`
	SessionLimit  int               `json:"session_limit,omitempty"`
}

// Settings decodes the Config column. An empty or invalid block yields the
// zero settings so callers never branch on parse errors for reads.
func (i ChannelInstance) Settings() InstanceSettings {
	var s InstanceSettings
	raw := strings.TrimSpace(i.Config)
	if raw == "" {
		return s
	}
	_ = json.Unmarshal([]byte(raw), &s)
	return s
}

// IsActiveStatus reports whether the status participates in the normal
// lifecycle (suspended/maintenance only leave via an admin transition).
func IsActiveStatus(status string) bool {
	switch status {
	case INSTANCE_STATUS_DISCONNECTED, INSTANCE_STATUS_CONNECTING,
		INSTANCE_STATUS_CONNECTED, INSTANCE_STATUS_ERROR:
		return true
	}
	return false
}

func IsValidStatus(status string) bool {
	switch status {
	case INSTANCE_STATUS_DISCONNECTED, INSTANCE_STATUS_CONNECTING,
		INSTANCE_STATUS_CONNECTED, INSTANCE_STATUS_ERROR,
		INSTANCE_STATUS_SUSPENDED, INSTANCE_STATUS_MAINTENANCE:
		return true
	}
	return false
}
