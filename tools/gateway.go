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

// GatewayClient is a thin client for the WhatsApp-compatible chat gateway
// (Evolution-style REST API). One client per process; instance routing goes
// through the path, authentication through the global API key header.
type GatewayClient struct {
	BaseURL string
	APIKey  string

	// HTTPClient is swappable for tests; the zero value gets a 10s timeout
	// client on first use.
	HTTPClient *http.Client
}

// GatewayAPIError carries the provider's HTTP failure detail.
type GatewayAPIError struct {
	StatusCode int
	Body       string
}

func (e GatewayAPIError) Error() string {
	return fmt.Sprintf("gateway api error: status=%d body=%s", e.StatusCode, e.Body)
}

// IsNotFound reports an upstream 404, used to tell "instance gone" apart
// from transient failures.
func (e GatewayAPIError) IsNotFound() bool { return e.StatusCode == http.StatusNotFound }

func (c *GatewayClient) client() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: 10 * time.Second}
}

func (c *GatewayClient) do(ctx context.Context, method, path string, body any, out any) error {
	url := strings.TrimRight(c.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")

	var reader io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	req.Header.Set("apikey", strings.TrimSpace(c.APIKey))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return GatewayAPIError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

// CreateInstance registers a new instance on the gateway. The webhook URL
// tells the gateway where to push events for this instance.
func (c *GatewayClient) CreateInstance(ctx context.Context, instanceRef, webhookURL string) error {
	return c.do(ctx, http.MethodPost, "/instance/create", map[string]any{
		"instanceName": instanceRef,
		"webhook":      webhookURL,
		"qrcode":       false,
	}, nil)
}

type gatewayConnectResponse struct {
	Code        string `json:"code"`
	PairingCode string `json:"pairingCode"`
	Count       int    `json:"count"`
}

// Connect asks the gateway for a fresh linking code. An empty code means the
// gateway will deliver it asynchronously through the webhook.
func (c *GatewayClient) Connect(ctx context.Context, instanceRef string) (string, error) {
	var out gatewayConnectResponse
	if err := c.do(ctx, http.MethodGet, "/instance/connect/"+instanceRef, nil, &out); err != nil {
		return "", err
	}
	code := strings.TrimSpace(out.Code)
	if code == "" {
		code = strings.TrimSpace(out.PairingCode)
	}
	return code, nil
}

type gatewayStateResponse struct {
	Instance struct {
		InstanceName string `json:"instanceName"`
		State        string `json:"state"`
	} `json:"instance"`
}

// ConnectionState returns the raw provider state ("open", "close",
// "connecting", ...).
func (c *GatewayClient) ConnectionState(ctx context.Context, instanceRef string) (string, error) {
	var out gatewayStateResponse
	if err := c.do(ctx, http.MethodGet, "/instance/connectionState/"+instanceRef, nil, &out); err != nil {
		return "", err
	}
	return strings.ToLower(strings.TrimSpace(out.Instance.State)), nil
}

// Logout terminates the upstream session without deleting the instance.
func (c *GatewayClient) Logout(ctx context.Context, instanceRef string) error {
	return c.do(ctx, http.MethodDelete, "/instance/logout/"+instanceRef, nil, nil)
}

// DeleteInstance removes the instance from the gateway.
func (c *GatewayClient) DeleteInstance(ctx context.Context, instanceRef string) error {
	return c.do(ctx, http.MethodDelete, "/instance/delete/"+instanceRef, nil, nil)
}

// SendText delivers a text message to a remote contact.
func (c *GatewayClient) SendText(ctx context.Context, instanceRef, to, text string) error {
	return c.do(ctx, http.MethodPost, "/message/sendText/"+instanceRef, map[string]any{
		"number": to,
		"text":   text,
	}, nil)
}
