package services

import (
	"bytes"
	"care-alert/internal/models"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Transport delivers one rendered message to one resolved address on a
// single channel.
type Transport interface {
	Send(ctx context.Context, token, title, body string, data map[string]string, priority models.Priority) error
}

// PushTransport posts notifications to the configured push gateway. Tokens
// are resolved per recipient before calling Send.
type PushTransport struct {
	gatewayURL string
	apiKey     string
	client     *http.Client
}

func NewPushTransport() *PushTransport {
	timeout := viper.GetDuration("notify.timeout")
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &PushTransport{
		gatewayURL: strings.TrimRight(viper.GetString("notify.push_gateway_url"), "/"),
		apiKey:     viper.GetString("notify.push_api_key"),
		client:     &http.Client{Timeout: timeout},
	}
}

type pushRequest struct {
	To       string            `json:"to"`
	Title    string            `json:"title"`
	Body     string            `json:"body"`
	Data     map[string]string `json:"data,omitempty"`
	Priority string            `json:"priority"`
	Sound    string            `json:"sound"`
}

func (t *PushTransport) Send(ctx context.Context, token, title, body string, data map[string]string, priority models.Priority) error {
	if t.gatewayURL == "" {
		return fmt.Errorf("push gateway not configured")
	}

	payload, _ := json.Marshal(pushRequest{
		To:       token,
		Title:    title,
		Body:     body,
		Data:     data,
		Priority: string(priority),
		Sound:    "default",
	})

	req, err := http.NewRequestWithContext(ctx, "POST", t.gatewayURL+"/send", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if t.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.apiKey)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("push gateway request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("push gateway failed (HTTP %d): %s", resp.StatusCode, string(respBody))
	}
	return nil
}
