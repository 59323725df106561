// Package mockchan is an in-memory channel implementation for development
// and tests: connecting hands out a fake code and the first status refresh
// after that reports connected.
package mockchan

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"agendazap/channels"
	"agendazap/models"
)

type ConnectionService struct {
	mu        sync.Mutex
	connected map[string]bool
	sent      []SentMessage
}

type SentMessage struct {
	InstanceID string
	To         string
	Text       string
}

func NewConnectionService() *ConnectionService {
	return &ConnectionService{connected: map[string]bool{}}
}

var _ channels.ConnectionService = (*ConnectionService)(nil)

func (s *ConnectionService) CreateInstance(ctx context.Context, inst *models.ChannelInstance) error {
	return nil
}

func (s *ConnectionService) Connect(ctx context.Context, inst *models.ChannelInstance) (*channels.ConnectResult, error) {
	s.mu.Lock()
	s.connected[inst.ID] = true
	s.mu.Unlock()
	exp := time.Now().Add(60 * time.Second)
	return &channels.ConnectResult{Code: "MOCK-CODE", ExpiresAt: &exp}, nil
}

func (s *ConnectionService) ConnectionState(ctx context.Context, inst *models.ChannelInstance) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connected[inst.ID] {
		return models.INSTANCE_STATUS_CONNECTED, nil
	}
	return models.INSTANCE_STATUS_DISCONNECTED, nil
}

func (s *ConnectionService) Disconnect(ctx context.Context, inst *models.ChannelInstance) error {
	s.mu.Lock()
	delete(s.connected, inst.ID)
	s.mu.Unlock()
	return nil
}

func (s *ConnectionService) DeleteInstance(ctx context.Context, inst *models.ChannelInstance) error {
	s.mu.Lock()
	delete(s.connected, inst.ID)
	s.mu.Unlock()
	return nil
}

func (s *ConnectionService) SendText(ctx context.Context, inst *models.ChannelInstance, to, text string) error {
	s.mu.Lock()
	s.sent = append(s.sent, SentMessage{InstanceID: inst.ID, To: to, Text: text})
	s.mu.Unlock()
	return nil
}

// Sent returns a copy of everything delivered through this service.
func (s *ConnectionService) Sent() []SentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SentMessage, len(s.sent))
	copy(out, s.sent)
	return out
}

// Processor accepts a flat payload: {"from", "id", "name", "text", "fromMe"}.
type Processor struct{}

var _ channels.MessageProcessor = (*Processor)(nil)

type mockPayload struct {
	From   string `json:"from"`
	ID     string `json:"id"`
	Name   string `json:"name"`
	Text   string `json:"text"`
	FromMe bool   `json:"fromMe"`
}

func (Processor) ParseInbound(data json.RawMessage) (*channels.InboundMessage, error) {
	var p mockPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, channels.WrapMissingData("payload")
	}
	if strings.TrimSpace(p.From) == "" {
		return nil, channels.WrapMissingData("from")
	}
	if strings.TrimSpace(p.ID) == "" {
		return nil, channels.WrapMissingData("id")
	}
	return &channels.InboundMessage{
		ExternalID:  strings.TrimSpace(p.ID),
		ContactRef:  strings.TrimSpace(p.From),
		ContactName: strings.TrimSpace(p.Name),
		ContentType: models.MESSAGE_CONTENT_TEXT,
		ContentText: strings.TrimSpace(p.Text),
		FromMe:      p.FromMe,
		Timestamp:   time.Now(),
	}, nil
}

// Bridge records what would have gone to the intent classifier.
type Bridge struct {
	mu      sync.Mutex
	handled []string
	Err     error
}

var _ channels.AppointmentBridge = (*Bridge)(nil)

func (b *Bridge) HandleInbound(ctx context.Context, inst *models.ChannelInstance, conv *models.Conversation, msg *models.Message) error {
	b.mu.Lock()
	b.handled = append(b.handled, msg.ID)
	b.mu.Unlock()
	return b.Err
}

func (b *Bridge) Handled() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.handled))
	copy(out, b.handled)
	return out
}
