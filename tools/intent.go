package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// IntentClient posts normalized inbound messages to the booking intent
// classifier over HTTP. The classifier is an external collaborator; callers
// treat every failure as non-fatal.
type IntentClient struct {
	BaseURL string
	APIKey  string

	HTTPClient *http.Client
}

// IntentRequest is the payload handed to the classifier.
type IntentRequest struct {
	TenantID       string `json:"tenant_id"`
	InstanceID     string `json:"instance_id"`
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
	ContactRef     string `json:"contact_ref"`
	ContentType    string `json:"content_type"`
	Text           string `json:"text"`
}

func (c *IntentClient) client() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: 30 * time.Second}
}

// Classify submits one message for intent processing.
func (c *IntentClient) Classify(ctx context.Context, req IntentRequest) error {
	url := strings.TrimRight(c.BaseURL, "/") + "/v1/intents"

	b, _ := json.Marshal(req)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	if strings.TrimSpace(c.APIKey) != "" {
		httpReq.Header.Set("Authorization", "Bearer "+strings.TrimSpace(c.APIKey))
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client().Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("intent api error: status=%d body=%s", resp.StatusCode, string(raw))
	}
	return nil
}
