package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/gomail.v2"
)

// EmailConfig configures the SMTP adapter.
type EmailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// EmailAdapter delivers mail over SMTP. It assigns its own Message-ID
// so delivery notifications can be correlated back to the job.
type EmailAdapter struct {
	dialer *gomail.Dialer
	from   string
	domain string
}

func NewEmailAdapter(cfg EmailConfig) (*EmailAdapter, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("smtp from address is required")
	}

	domain := cfg.Host
	if at := strings.LastIndex(cfg.From, "@"); at >= 0 {
		domain = cfg.From[at+1:]
	}

	return &EmailAdapter{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
		domain: domain,
	}, nil
}

func (a *EmailAdapter) Send(ctx context.Context, recipient, subject, content string) (*Result, error) {
	messageID := fmt.Sprintf("<%s@%s>", uuid.New().String(), a.domain)

	m := gomail.NewMessage()
	m.SetHeader("From", a.from)
	m.SetHeader("To", recipient)
	m.SetHeader("Subject", subject)
	m.SetHeader("Message-ID", messageID)
	m.SetBody("text/html", content)

	// gomail has no context support, so the dial-and-send runs in a
	// goroutine and the ctx deadline turns into a timeout error.
	errCh := make(chan error, 1)
	go func() {
		errCh <- a.dialer.DialAndSend(m)
	}()

	select {
	case <-ctx.Done():
		return nil, &Error{
			Message: "smtp send timed out",
			Cause:   ctx.Err(),
		}
	case err := <-errCh:
		if err != nil {
			return nil, &Error{
				Message: "smtp send failed",
				Cause:   err,
			}
		}
	}

	return &Result{
		ExternalID: messageID,
		Response: map[string]interface{}{
			"message_id": messageID,
			"smtp_host":  a.dialer.Host,
		},
	}, nil
}
