package channels

import (
	"context"
	"encoding/json"
	"time"

	"agendazap/models"
)

// ConnectResult is what the provider returns for a connection request. When
// the linking code is not available synchronously, Pending is set and the
// caller polls through the connect flow.
type ConnectResult struct {
	Code      string
	ExpiresAt *time.Time
	Pending   bool
}

// Provider connection states as reported by ConnectionState, already mapped
// to the local status enum by each implementation.
type ConnectionService interface {
	// CreateInstance registers the instance with the upstream provider.
	CreateInstance(ctx context.Context, inst *models.ChannelInstance) error
	// Connect requests a fresh linking code.
	Connect(ctx context.Context, inst *models.ChannelInstance) (*ConnectResult, error)
	// ConnectionState returns the live upstream status mapped to the local
	// enum (connected, connecting, disconnected, error).
	ConnectionState(ctx context.Context, inst *models.ChannelInstance) (string, error)
	// Disconnect terminates the upstream session.
	Disconnect(ctx context.Context, inst *models.ChannelInstance) error
	// DeleteInstance removes the instance upstream.
	DeleteInstance(ctx context.Context, inst *models.ChannelInstance) error
	// SendText delivers an outbound text message to a remote contact.
	SendText(ctx context.Context, inst *models.ChannelInstance, to, text string) error
}

// InboundMessage is the normalized form of one provider message event.
type InboundMessage struct {
	ExternalID  string
	ContactRef  string
	ContactName string
	ContentType string
	ContentText string
	FromMe      bool
	Timestamp   time.Time
}

// MessageProcessor turns the provider-specific webhook payload into an
// InboundMessage. Implementations return ErrMissingRequiredData when the
// contact identifier or external id is absent.
type MessageProcessor interface {
	ParseInbound(data json.RawMessage) (*InboundMessage, error)
}

// AppointmentBridge hands a persisted inbound message to the booking side
// (intent classification and whatever follows). Calls are best-effort: the
// webhook processor logs failures and never rolls the message back.
type AppointmentBridge interface {
	HandleInbound(ctx context.Context, inst *models.ChannelInstance, conv *models.Conversation, msg *models.Message) error
}
