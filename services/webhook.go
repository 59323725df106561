package services

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"agendazap/channels"
	"agendazap/models"
	"agendazap/tools"

	"github.com/google/uuid"
	"github.com/jinzhu/gorm"
	"github.com/rs/zerolog"
)

// WebhookEvent is the envelope the upstream provider posts per instance.
type WebhookEvent struct {
	Event    string          `json:"event"`
	Instance string          `json:"instance"`
	Data     json.RawMessage `json:"data"`
}

// Provider event names.
const (
	EVENT_MESSAGE_RECEIVED  = "messages.upsert"
	EVENT_CONNECTION_UPDATE = "connection.update"
	EVENT_CODE_UPDATED      = "qrcode.updated"
	EVENT_INSTANCE_CREATED  = "instance.created"
)

// WebhookService converts one upstream event into local state changes.
// Handlers are independently invokable and tolerant of out-of-order and
// duplicate delivery.
type WebhookService struct {
	db        *gorm.DB
	instances *InstanceService
	intent    IntentDispatcher
	log       zerolog.Logger
}

func NewWebhookService(db *gorm.DB, instances *InstanceService, intent IntentDispatcher, log zerolog.Logger) *WebhookService {
	if intent == nil {
		intent = noopDispatcher{}
	}
	return &WebhookService{
		db:        db,
		instances: instances,
		intent:    intent,
		log:       log.With().Str("component", "webhook").Logger(),
	}
}

// Process applies one event to the instance referenced in the URL. Unknown
// event types are acknowledged and dropped.
func (s *WebhookService) Process(ctx context.Context, instanceRef string, ev WebhookEvent) error {
	inst, err := s.instances.Get(instanceRef)
	if err != nil {
		return err
	}

	switch strings.ToLower(strings.TrimSpace(ev.Event)) {
	case EVENT_MESSAGE_RECEIVED:
		return s.handleMessage(ctx, inst, ev.Data)
	case EVENT_CONNECTION_UPDATE:
		return s.handleConnectionUpdate(inst, ev.Data)
	case EVENT_CODE_UPDATED:
		return s.handleCodeUpdated(inst, ev.Data)
	case EVENT_INSTANCE_CREATED:
		return s.handleInstanceCreated(inst)
	default:
		s.log.Debug().Str("instance_id", inst.ID).Str("event", ev.Event).Msg("ignoring unhandled event type")
		return nil
	}
}

// handleMessage persists the inbound message, creating the conversation on
// first contact, then hands it to the intent collaborator asynchronously.
// Redelivery of the same provider message id is a no-op.
func (s *WebhookService) handleMessage(ctx context.Context, inst *models.ChannelInstance, data json.RawMessage) error {
	ch, err := channels.Resolve(inst.ChannelType)
	if err != nil {
		return err
	}

	inbound, err := ch.Processor.ParseInbound(data)
	if err != nil {
		return err
	}
	if inbound.FromMe {
		// outbound echo: success, nothing to store
		return nil
	}

	conv, err := s.upsertConversation(inst, inbound)
	if err != nil {
		return err
	}

	var existing models.Message
	err = s.db.First(&existing, "external_id = ?", inbound.ExternalID).Error
	if err == nil {
		// duplicate delivery
		return nil
	}
	if !gorm.IsRecordNotFoundError(err) {
		return err
	}

	msg := models.Message{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		Direction:      models.MESSAGE_DIRECTION_INBOUND,
		ContentType:    inbound.ContentType,
		ContentText:    inbound.ContentText,
		ExternalID:     inbound.ExternalID,
	}
	if !inbound.Timestamp.IsZero() {
		sentAt := inbound.Timestamp
		msg.SentAt = &sentAt
	}
	if err := s.db.Create(&msg).Error; err != nil {
		// the unique index on external_id closes the check-then-insert race
		var again models.Message
		if s.db.First(&again, "external_id = ?", inbound.ExternalID).Error == nil {
			return nil
		}
		return err
	}

	now := time.Now()
	_ = s.db.Model(&models.Conversation{}).Where("id = ?", conv.ID).Updates(map[string]any{
		"last_message_text": inbound.ContentText,
		"last_activity":     &now,
	}).Error
	_ = s.db.Model(&models.ChannelInstance{}).Where("id = ?", inst.ID).
		Update("last_activity", &now).Error

	// Intent processing is best-effort and must not delay the webhook
	// response; a classifier failure never rolls back the stored message.
	go s.dispatchIntent(inst, conv, &msg)

	return nil
}

// dispatchIntent prefers the channel's appointment bridge; channels without
// one fall back to the configured intent dispatcher directly.
func (s *WebhookService) dispatchIntent(inst *models.ChannelInstance, conv *models.Conversation, msg *models.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if ch, err := channels.Resolve(inst.ChannelType); err == nil && ch.Bridge != nil {
		if err := ch.Bridge.HandleInbound(ctx, inst, conv, msg); err != nil {
			s.log.Warn().Str("instance_id", inst.ID).Str("message_id", msg.ID).Err(err).
				Msg("appointment bridge failed, message kept")
		}
		return
	}

	if !inst.Settings().AutoReply || msg.ContentText == "" {
		return
	}
	err := s.intent.Dispatch(ctx, tools.IntentRequest{
		TenantID:       inst.TenantID,
		InstanceID:     inst.ID,
		ConversationID: conv.ID,
		MessageID:      msg.ID,
		ContactRef:     conv.ContactRef,
		ContentType:    msg.ContentType,
		Text:           msg.ContentText,
	})
	if err != nil {
		s.log.Warn().Str("instance_id", inst.ID).Str("message_id", msg.ID).Err(err).
			Msg("intent dispatch failed, message kept")
	}
}

func (s *WebhookService) upsertConversation(inst *models.ChannelInstance, inbound *channels.InboundMessage) (*models.Conversation, error) {
	var conv models.Conversation
	err := s.db.First(&conv, "instance_id = ? AND contact_ref = ?", inst.ID, inbound.ContactRef).Error
	if err == nil {
		if inbound.ContactName != "" && conv.ContactName == "" {
			_ = s.db.Model(&models.Conversation{}).Where("id = ?", conv.ID).
				Update("contact_name", inbound.ContactName).Error
			conv.ContactName = inbound.ContactName
		}
		return &conv, nil
	}
	if !gorm.IsRecordNotFoundError(err) {
		return nil, err
	}

	conv = models.Conversation{
		ID:          uuid.NewString(),
		InstanceID:  inst.ID,
		ContactRef:  inbound.ContactRef,
		ContactName: inbound.ContactName,
	}
	if err := s.db.Create(&conv).Error; err != nil {
		// concurrent first message for the same contact: reuse the winner
		var again models.Conversation
		if s.db.First(&again, "instance_id = ? AND contact_ref = ?", inst.ID, inbound.ContactRef).Error == nil {
			return &again, nil
		}
		return nil, err
	}
	return &conv, nil
}

type connectionUpdateData struct {
	State string `json:"state"`
}

// handleConnectionUpdate maps the provider state onto the local enum and
// writes it. Suspended/maintenance are sticky: administrative overrides are
// never undone by provider traffic.
func (s *WebhookService) handleConnectionUpdate(inst *models.ChannelInstance, data json.RawMessage) error {
	var upd connectionUpdateData
	if err := json.Unmarshal(data, &upd); err != nil {
		return channels.WrapMissingData("state")
	}

	var status string
	switch strings.ToLower(strings.TrimSpace(upd.State)) {
	case "open":
		status = models.INSTANCE_STATUS_CONNECTED
	case "close":
		status = models.INSTANCE_STATUS_DISCONNECTED
	case "connecting":
		status = models.INSTANCE_STATUS_CONNECTING
	default:
		status = models.INSTANCE_STATUS_ERROR
	}

	if !models.IsActiveStatus(inst.Status) {
		s.log.Debug().Str("instance_id", inst.ID).Str("status", inst.Status).
			Msg("ignoring connection update for administratively held instance")
		return nil
	}

	extra := map[string]any{}
	if status == models.INSTANCE_STATUS_CONNECTED {
		extra["code"] = ""
		extra["code_expires_at"] = nil
		extra["error_message"] = ""
	}
	return s.instances.SetStatus(inst.ID, status, extra)
}

type codeUpdatedData struct {
	QRCode struct {
		Code string `json:"code"`
	} `json:"qrcode"`
	Code string `json:"code"`
}

// handleCodeUpdated stores the fresh linking code. The instance moves to
// connecting unless it is already connected.
func (s *WebhookService) handleCodeUpdated(inst *models.ChannelInstance, data json.RawMessage) error {
	var upd codeUpdatedData
	_ = json.Unmarshal(data, &upd)
	code := strings.TrimSpace(upd.QRCode.Code)
	if code == "" {
		code = strings.TrimSpace(upd.Code)
	}
	if code == "" {
		return channels.WrapMissingData("code")
	}

	exp := time.Now().Add(codeTTL)
	updates := map[string]any{
		"code":            code,
		"code_expires_at": &exp,
	}
	if inst.Status != models.INSTANCE_STATUS_CONNECTED && models.IsActiveStatus(inst.Status) {
		updates["status"] = models.INSTANCE_STATUS_CONNECTING
	}
	return s.db.Model(&models.ChannelInstance{}).Where("id = ?", inst.ID).Updates(updates).Error
}

// handleInstanceCreated is the provider-side acknowledgment of a fresh
// instance: disconnected moves to connecting, anything else is a no-op.
func (s *WebhookService) handleInstanceCreated(inst *models.ChannelInstance) error {
	if inst.Status != models.INSTANCE_STATUS_DISCONNECTED {
		return nil
	}
	return s.instances.SetStatus(inst.ID, models.INSTANCE_STATUS_CONNECTING, nil)
}
