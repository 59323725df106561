package services

import (
	"context"
	"fmt"
	"time"

	"agendazap/channels"
	"agendazap/models"

	"github.com/google/uuid"
)

// SendReply delivers an outbound text message on an existing conversation
// and persists it. The instance must be connected.
func (s *InstanceService) SendReply(ctx context.Context, conversationID, text string) (*models.Message, error) {
	if text == "" {
		return nil, fmt.Errorf("text is required")
	}

	var conv models.Conversation
	if err := s.db.First(&conv, "id = ?", conversationID).Error; err != nil {
		return nil, err
	}
	inst, err := s.Get(conv.InstanceID)
	if err != nil {
		return nil, err
	}
	if inst.Status != models.INSTANCE_STATUS_CONNECTED {
		return nil, fmt.Errorf("instance %s is not connected (status %q)", inst.ID, inst.Status)
	}

	ch, err := channels.Resolve(inst.ChannelType)
	if err != nil {
		return nil, err
	}

	cctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()
	if err := ch.Connection.SendText(cctx, inst, conv.ContactRef, text); err != nil {
		return nil, err
	}

	now := time.Now()
	msg := models.Message{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		Direction:      models.MESSAGE_DIRECTION_OUTBOUND,
		ContentType:    models.MESSAGE_CONTENT_TEXT,
		ContentText:    text,
		ExternalID:     "out-" + uuid.NewString(),
		SentAt:         &now,
	}
	if err := s.db.Create(&msg).Error; err != nil {
		return nil, err
	}

	_ = s.db.Model(&models.Conversation{}).Where("id = ?", conv.ID).Updates(map[string]any{
		"last_message_text": text,
		"last_activity":     &now,
	}).Error
	_ = s.db.Model(&models.ChannelInstance{}).Where("id = ?", inst.ID).
		Update("last_activity", &now).Error

	return &msg, nil
}
