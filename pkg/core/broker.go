package core

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mywio/pipeline-agent/pkg/masking"
)

// Broker dispatches internal events to subscribers. Every published event is
// masked before any listener sees it.
type Broker struct {
	logger *slog.Logger

	typesMu sync.RWMutex
	types   map[EventTypeName]EventTypeDesc

	// subscribers maps eventType (or pattern like "deploy_*") -> []Listener
	subscribersMu sync.RWMutex
	subscribers   map[string][]Listener

	maskerMu sync.RWMutex
	masker   masking.Masker
}

func NewBroker(logger *slog.Logger, masker masking.Masker) *Broker {
	return &Broker{
		logger:      logger,
		types:       make(map[EventTypeName]EventTypeDesc),
		subscribers: make(map[string][]Listener),
		masker:      masker,
	}
}

func (b *Broker) SetMasker(m masking.Masker) {
	b.maskerMu.Lock()
	defer b.maskerMu.Unlock()
	b.masker = m
}

// RegisterEventType lets plugins/core define a new event type
func (b *Broker) RegisterEventType(desc EventTypeDesc) error {
	b.typesMu.Lock()
	defer b.typesMu.Unlock()

	if _, exists := b.types[desc.Name]; exists {
		return fmt.Errorf("event type %s already registered", desc.Name)
	}
	b.types[desc.Name] = desc
	b.logger.Debug("Registered event type", "type", desc.Name, "description", desc.Description)
	return nil
}

// Subscribe registers a handler for an exact event type or a "prefix_*" pattern.
func (b *Broker) Subscribe(pattern string, handler Listener) {
	b.subscribersMu.Lock()
	defer b.subscribersMu.Unlock()

	b.subscribers[pattern] = append(b.subscribers[pattern], handler)
	b.logger.Debug("Subscribed to pattern", "pattern", pattern)
}

// Publish masks the event and sends it to all matching subscribers (async).
func (b *Broker) Publish(ctx context.Context, event InternalEvent) {
	if ctx == nil {
		ctx = context.Background()
	}
	event.Timestamp = time.Now()

	b.typesMu.RLock()
	desc, known := b.types[event.Type]
	b.typesMu.RUnlock()
	if known {
		for field, spec := range desc.PayloadSpec {
			if _, has := event.Details[field]; spec.Required && !has {
				b.logger.Warn("Published event missing required field", "type", event.Type, "field", field)
			}
		}
	}

	event = b.mask(event)

	b.subscribersMu.RLock()
	defer b.subscribersMu.RUnlock()

	for pattern, listeners := range b.subscribers {
		if matchesPattern(string(event.Type), pattern) {
			for _, listener := range listeners {
				go listener(ctx, event)
			}
		}
	}
}

func (b *Broker) mask(event InternalEvent) InternalEvent {
	b.maskerMu.RLock()
	m := b.masker
	b.maskerMu.RUnlock()
	if m == nil {
		return event
	}
	return MaskEvent(event, m)
}

// MaskEvent returns a copy of event with its message and textual details masked.
func MaskEvent(event InternalEvent, m masking.Masker) InternalEvent {
	event.String = m.Mask(event.String)
	if event.Details != nil {
		event.Details = maskDetails(event.Details, m)
	}
	return event
}

func maskDetails(details map[string]interface{}, m masking.Masker) map[string]interface{} {
	out := make(map[string]interface{}, len(details))
	for k, v := range details {
		out[k] = maskValue(v, m)
	}
	return out
}

func maskValue(v interface{}, m masking.Masker) interface{} {
	switch t := v.(type) {
	case string:
		return m.Mask(t)
	case []string:
		out := make([]string, len(t))
		for i, s := range t {
			out[i] = m.Mask(s)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, item := range t {
			out[i] = maskValue(item, m)
		}
		return out
	case map[string]interface{}:
		return maskDetails(t, m)
	case error:
		return m.Mask(t.Error())
	case fmt.Stringer:
		return m.Mask(t.String())
	default:
		return v
	}
}

// matchesPattern: Simple wildcard support (e.g., "deploy_*" matches "deploy_success")
func matchesPattern(eventType, pattern string) bool {
	if pattern == eventType || pattern == "*" {
		return true
	}
	if strings.HasSuffix(pattern, "*") {
		prefix := strings.TrimSuffix(pattern, "*")
		return strings.HasPrefix(eventType, prefix)
	}
	return false
}
