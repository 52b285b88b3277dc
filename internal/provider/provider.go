package provider

import (
	"context"
	"fmt"

	"github.com/jwalitptl/notify-engine/internal/model"
)

// Adapter is the outbound delivery port. Each channel implements one
// Send contract; the dispatcher never inspects anything beyond it.
type Adapter interface {
	// Send delivers a rendered payload to the recipient. Channels are
	// free to interpret subject/content (SMS ignores subject).
	Send(ctx context.Context, recipient, subject, content string) (*Result, error)
}

// Result stores provider call metadata for audit and correlation.
type Result struct {
	// ExternalID is the provider-assigned message id used to match
	// later delivery webhooks. May be empty when the provider does not
	// support correlation.
	ExternalID string
	Response   model.JSONMap
}

// Registry maps channels to their adapters.
type Registry struct {
	adapters map[model.Channel]Adapter
}

func NewRegistry() *Registry {
	return &Registry{adapters: make(map[model.Channel]Adapter)}
}

func (r *Registry) Register(channel model.Channel, adapter Adapter) {
	r.adapters[channel] = adapter
}

func (r *Registry) Resolve(channel model.Channel) (Adapter, error) {
	adapter, ok := r.adapters[channel]
	if !ok {
		return nil, fmt.Errorf("no adapter registered for channel %s", channel)
	}
	return adapter, nil
}
