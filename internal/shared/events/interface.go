package events

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sentinel-ops/casedesk/internal/shared/config"
)

// Publisher publishes events. Services only depend on this half of the bus.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// EventBus defines the interface for event publishing and subscription
type EventBus interface {
	Publisher

	// Subscribe creates a subscription to events matching a pattern
	Subscribe(ctx context.Context, pattern string, consumerName string, handler Handler) error

	// Close closes the event bus connection
	Close()

	// Health checks the event bus connection
	Health() error
}

// NewEventBus creates the KurrentDB bus when enabled, the in-process bus
// otherwise. The returned string names the backend for logging.
func NewEventBus(ctx context.Context, cfg config.KurrentDBConfig, log *slog.Logger) (EventBus, string, error) {
	if !cfg.Enabled {
		return NewMemoryBus(log), "memory", nil
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	bus, err := NewBus(timeoutCtx, cfg, log)
	if err != nil {
		return nil, "", err
	}

	if err := bus.Health(); err != nil {
		bus.Close()
		return nil, "", fmt.Errorf("KurrentDB health check failed: %w", err)
	}

	return bus, "kurrentdb", nil
}

var (
	_ EventBus = (*Bus)(nil)
	_ EventBus = (*MemoryBus)(nil)
)

// PublishAll publishes events in order after a commit. Failures are logged,
// never returned: the state change they describe is already durable.
func PublishAll(ctx context.Context, p Publisher, log *slog.Logger, evts []Event) {
	if p == nil {
		return
	}
	correlation := CorrelationID(ctx)
	for _, e := range evts {
		if e.CorrelationID == "" {
			e.CorrelationID = correlation
		}
		if err := p.Publish(ctx, e); err != nil {
			log.ErrorContext(ctx, "failed to publish event", "type", e.Type, "event_id", e.ID, "error", err)
		}
	}
}
