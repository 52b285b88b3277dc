package template

import (
	"bytes"
	"context"
	"fmt"
	texttemplate "text/template"

	"github.com/google/uuid"

	"github.com/jwalitptl/notify-engine/internal/repository"
)

// Resolver renders a notification template with customer/branch
// context into a subject and content. Rendering happens before
// enqueue; the dispatcher only ever sees the resolved payload.
type Resolver interface {
	Render(ctx context.Context, templateID uuid.UUID, data map[string]interface{}) (subject, content string, err error)
}

// StoreResolver renders text/template bodies fetched from the
// directory repository.
type StoreResolver struct {
	directory repository.DirectoryRepository
}

func NewStoreResolver(directory repository.DirectoryRepository) *StoreResolver {
	return &StoreResolver{directory: directory}
}

func (r *StoreResolver) Render(ctx context.Context, templateID uuid.UUID, data map[string]interface{}) (string, string, error) {
	tmpl, err := r.directory.GetTemplate(ctx, templateID)
	if err != nil {
		return "", "", err
	}

	subject, err := render("subject", tmpl.Subject, data)
	if err != nil {
		return "", "", fmt.Errorf("failed to render subject: %w", err)
	}
	content, err := render("body", tmpl.Body, data)
	if err != nil {
		return "", "", fmt.Errorf("failed to render body: %w", err)
	}
	return subject, content, nil
}

func render(name, text string, data map[string]interface{}) (string, error) {
	if text == "" {
		return "", nil
	}
	t, err := texttemplate.New(name).Option("missingkey=zero").Parse(text)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
