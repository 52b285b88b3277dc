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

// WhatsAppConfig configures the WhatsApp business API client.
type WhatsAppConfig struct {
	Endpoint    string
	AccessToken string
	PhoneID     string
	Timeout     time.Duration
}

// WhatsAppAdapter delivers messages through a WhatsApp business API
// endpoint. Subject, when present, becomes a bold header line.
type WhatsAppAdapter struct {
	client      *http.Client
	endpoint    string
	accessToken string
	phoneID     string
}

type whatsappRequest struct {
	MessagingProduct string       `json:"messaging_product"`
	To               string       `json:"to"`
	Type             string       `json:"type"`
	Text             whatsappText `json:"text"`
}

type whatsappText struct {
	Body string `json:"body"`
}

type whatsappResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

func NewWhatsAppAdapter(cfg WhatsAppConfig) (*WhatsAppAdapter, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("whatsapp endpoint is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultGatewayTimeout
	}
	return &WhatsAppAdapter{
		client:      &http.Client{Timeout: timeout},
		endpoint:    endpoint,
		accessToken: cfg.AccessToken,
		phoneID:     cfg.PhoneID,
	}, nil
}

func (a *WhatsAppAdapter) Send(ctx context.Context, recipient, subject, content string) (*Result, error) {
	body := content
	if subject != "" {
		body = "*" + subject + "*\n" + content
	}

	payload, err := json.Marshal(whatsappRequest{
		MessagingProduct: "whatsapp",
		To:               recipient,
		Type:             "text",
		Text:             whatsappText{Body: body},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal whatsapp request: %w", err)
	}

	url := a.endpoint
	if a.phoneID != "" {
		url = strings.TrimRight(a.endpoint, "/") + "/" + a.phoneID + "/messages"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build whatsapp request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if a.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+a.accessToken)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, &Error{
			Message: "whatsapp request failed",
			Cause:   err,
		}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, statusError(resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var parsed whatsappResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, &Error{
			Message: "whatsapp returned unparseable response",
			Cause:   err,
		}
	}

	externalID := ""
	if len(parsed.Messages) > 0 {
		externalID = parsed.Messages[0].ID
	}

	return &Result{
		ExternalID: externalID,
		Response: map[string]interface{}{
			"status_code": resp.StatusCode,
			"message_id":  externalID,
		},
	}, nil
}
