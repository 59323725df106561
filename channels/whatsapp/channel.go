package whatsapp

import (
	"context"
	"strings"
	"time"

	"agendazap/channels"
	"agendazap/models"
	"agendazap/tools"
)

// ConnectionService drives a WhatsApp instance through the chat gateway.
// The gateway identifies instances by our instance id.
type ConnectionService struct {
	Gateway *tools.GatewayClient

	// WebhookBase is the externally reachable base URL the gateway pushes
	// events to; the instance id is appended.
	WebhookBase string
}

var _ channels.ConnectionService = (*ConnectionService)(nil)

func (s *ConnectionService) CreateInstance(ctx context.Context, inst *models.ChannelInstance) error {
	webhook := strings.TrimRight(s.WebhookBase, "/") + "/api/webhook/" + inst.ID
	if custom := inst.Settings().WebhookURL; custom != "" {
		webhook = custom
	}
	return s.Gateway.CreateInstance(ctx, inst.ID, webhook)
}

func (s *ConnectionService) Connect(ctx context.Context, inst *models.ChannelInstance) (*channels.ConnectResult, error) {
	code, err := s.Gateway.Connect(ctx, inst.ID)
	if err != nil {
		return nil, err
	}
	if code == "" {
		// gateway will push it through qrcode.updated
		return &channels.ConnectResult{Pending: true}, nil
	}
	exp := time.Now().Add(60 * time.Second)
	return &channels.ConnectResult{Code: code, ExpiresAt: &exp}, nil
}

func (s *ConnectionService) ConnectionState(ctx context.Context, inst *models.ChannelInstance) (string, error) {
	state, err := s.Gateway.ConnectionState(ctx, inst.ID)
	if err != nil {
		return "", err
	}
	switch state {
	case "open":
		return models.INSTANCE_STATUS_CONNECTED, nil
	case "close":
		return models.INSTANCE_STATUS_DISCONNECTED, nil
	case "connecting":
		return models.INSTANCE_STATUS_CONNECTING, nil
	default:
		return models.INSTANCE_STATUS_ERROR, nil
	}
}

func (s *ConnectionService) Disconnect(ctx context.Context, inst *models.ChannelInstance) error {
	return s.Gateway.Logout(ctx, inst.ID)
}

func (s *ConnectionService) DeleteInstance(ctx context.Context, inst *models.ChannelInstance) error {
	return s.Gateway.DeleteInstance(ctx, inst.ID)
}

func (s *ConnectionService) SendText(ctx context.Context, inst *models.ChannelInstance, to, text string) error {
	return s.Gateway.SendText(ctx, inst.ID, to, text)
}
