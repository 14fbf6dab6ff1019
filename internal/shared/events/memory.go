package events

import (
	"context"
	"log/slog"
	"sync"

	"github.com/sentinel-ops/casedesk/internal/shared/metrics"
)

// MemoryBus delivers events in process, synchronously and in publish order.
// It is the default when KurrentDB is disabled.
type MemoryBus struct {
	mu   sync.RWMutex
	subs []subscription
	log  *slog.Logger
}

type subscription struct {
	pattern  string
	consumer string
	handler  Handler
}

// NewMemoryBus creates an in-process event bus
func NewMemoryBus(log *slog.Logger) *MemoryBus {
	return &MemoryBus{log: log.With("component", "event_bus")}
}

// Publish hands the event to every matching subscriber. Handler failures are
// logged and do not fail the publish.
func (b *MemoryBus) Publish(ctx context.Context, event Event) error {
	b.mu.RLock()
	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for _, s := range subs {
		if !matchesPattern(event.Type, s.pattern) {
			continue
		}
		if err := s.handler(ctx, event); err != nil {
			b.log.Error("event handler failed",
				"consumer", s.consumer, "event_id", event.ID, "type", event.Type, "error", err)
		}
	}
	metrics.RecordEventPublished(event.Type, nil)
	return nil
}

// Subscribe registers handler for events matching pattern
func (b *MemoryBus) Subscribe(ctx context.Context, pattern string, consumerName string, handler Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, subscription{pattern: pattern, consumer: consumerName, handler: handler})
	return nil
}

// Close drops all subscriptions
func (b *MemoryBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = nil
}

// Health always succeeds for the in-process bus
func (b *MemoryBus) Health() error {
	return nil
}

// LogSubscriber returns a handler that writes each event to log. Event
// payloads are omitted; they may carry note text.
func LogSubscriber(log *slog.Logger) Handler {
	return func(ctx context.Context, event Event) error {
		log.InfoContext(ctx, "domain event",
			"event_id", event.ID,
			"type", event.Type,
			"actor", event.Actor,
			"correlation_id", event.CorrelationID,
		)
		return nil
	}
}
