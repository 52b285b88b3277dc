package reconciler

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// SMSNormalizer parses delivery reports posted by the SMS gateway as
// form-encoded callbacks (MessageSid/MessageStatus vocabulary).
type SMSNormalizer struct{}

func (SMSNormalizer) Normalize(payload []byte) ([]Event, error) {
	values, err := url.ParseQuery(string(payload))
	if err != nil {
		return nil, fmt.Errorf("invalid form payload: %w", err)
	}

	sid := values.Get("MessageSid")
	status := values.Get("MessageStatus")
	if sid == "" || status == "" {
		return nil, fmt.Errorf("missing MessageSid or MessageStatus")
	}

	raw, _ := json.Marshal(map[string]string{
		"message_sid":    sid,
		"message_status": status,
	})
	return []Event{{
		ExternalID: sid,
		EventType:  status,
		Timestamp:  time.Now(),
		Raw:        raw,
	}}, nil
}

// whatsappPayload mirrors the graph-style statuses array.
type whatsappPayload struct {
	Statuses []struct {
		ID        string `json:"id"`
		Status    string `json:"status"`
		Timestamp string `json:"timestamp"`
	} `json:"statuses"`
}

// WhatsAppNormalizer parses status callbacks from the WhatsApp
// business API. One payload may batch several message statuses.
type WhatsAppNormalizer struct{}

func (WhatsAppNormalizer) Normalize(payload []byte) ([]Event, error) {
	var parsed whatsappPayload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return nil, fmt.Errorf("invalid json payload: %w", err)
	}
	if len(parsed.Statuses) == 0 {
		return nil, fmt.Errorf("payload has no statuses")
	}

	events := make([]Event, 0, len(parsed.Statuses))
	for _, s := range parsed.Statuses {
		ts := time.Now()
		if epoch, err := strconv.ParseInt(s.Timestamp, 10, 64); err == nil && epoch > 0 {
			ts = time.Unix(epoch, 0)
		}
		raw, _ := json.Marshal(s)
		events = append(events, Event{
			ExternalID: s.ID,
			EventType:  s.Status,
			Timestamp:  ts,
			Raw:        raw,
		})
	}
	return events, nil
}

// emailEvent is the JSON shape posted by the mail relay for delivery
// and open notifications.
type emailEvent struct {
	MessageID string    `json:"message_id"`
	Event     string    `json:"event"`
	Timestamp time.Time `json:"timestamp"`
}

// EmailNormalizer parses relay notifications keyed by Message-ID.
type EmailNormalizer struct{}

func (EmailNormalizer) Normalize(payload []byte) ([]Event, error) {
	var parsed emailEvent
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return nil, fmt.Errorf("invalid json payload: %w", err)
	}
	if parsed.MessageID == "" {
		return nil, fmt.Errorf("payload missing message_id")
	}

	return []Event{{
		ExternalID: parsed.MessageID,
		EventType:  parsed.Event,
		Timestamp:  parsed.Timestamp,
		Raw:        payload,
	}}, nil
}
