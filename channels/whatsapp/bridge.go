package whatsapp

import (
	"context"

	"agendazap/channels"
	"agendazap/models"
	"agendazap/services"
	"agendazap/tools"
)

// Bridge forwards persisted inbound messages to the booking intent
// classifier. Tenants switch it off per instance via the auto_reply flag.
type Bridge struct {
	Intent services.IntentDispatcher
}

var _ channels.AppointmentBridge = (*Bridge)(nil)

func (b *Bridge) HandleInbound(ctx context.Context, inst *models.ChannelInstance, conv *models.Conversation, msg *models.Message) error {
	if b.Intent == nil {
		return nil
	}
	if !inst.Settings().AutoReply {
		return nil
	}
	if msg.ContentText == "" {
		return nil
	}
	return b.Intent.Dispatch(ctx, tools.IntentRequest{
		TenantID:       inst.TenantID,
		InstanceID:     inst.ID,
		ConversationID: conv.ID,
		MessageID:      msg.ID,
		ContactRef:     conv.ContactRef,
		ContentType:    msg.ContentType,
		Text:           msg.ContentText,
	})
}
