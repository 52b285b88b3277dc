package provider

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

const defaultGatewayTimeout = 10 * time.Second

// SMSConfig configures the SMS gateway client.
type SMSConfig struct {
	Endpoint string
	APIKey   string
	Sender   string
	Timeout  time.Duration
}

// SMSAdapter delivers text messages through an HTTP SMS gateway.
// Subject is ignored; SMS carries content only.
type SMSAdapter struct {
	client   *http.Client
	endpoint string
	apiKey   string
	sender   string
}

type smsRequest struct {
	To   string `json:"to"`
	From string `json:"from,omitempty"`
	Body string `json:"body"`
}

type smsResponse struct {
	MessageID string `json:"message_id"`
	Status    string `json:"status"`
}

func NewSMSAdapter(cfg SMSConfig) (*SMSAdapter, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("sms gateway endpoint is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultGatewayTimeout
	}
	return &SMSAdapter{
		client:   &http.Client{Timeout: timeout},
		endpoint: endpoint,
		apiKey:   cfg.APIKey,
		sender:   cfg.Sender,
	}, nil
}

func (a *SMSAdapter) Send(ctx context.Context, recipient, _, content string) (*Result, error) {
	payload, err := json.Marshal(smsRequest{
		To:   recipient,
		From: a.sender,
		Body: content,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal sms request: %w", err)
	}

	resp, err := a.post(ctx, payload)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, statusError(resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed smsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, &Error{
			Message: "gateway returned unparseable response",
			Cause:   err,
		}
	}

	return &Result{
		ExternalID: parsed.MessageID,
		Response: map[string]interface{}{
			"status_code": resp.StatusCode,
			"message_id":  parsed.MessageID,
			"status":      parsed.Status,
		},
	}, nil
}

func (a *SMSAdapter) post(ctx context.Context, payload []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if a.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.apiKey)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, &Error{
			Message:   "sms gateway request failed",
			Permanent: false,
			Cause:     err,
		}
	}
	return resp, nil
}
