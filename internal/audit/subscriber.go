package audit

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sentinel-ops/casedesk/internal/shared/events"
)

// Subscriber listens to domain events and records them in a repository
type Subscriber struct {
	repo Repository
	bus  events.EventBus
	log  *slog.Logger
}

// NewSubscriber creates a new audit subscriber
func NewSubscriber(repo Repository, bus events.EventBus, log *slog.Logger) *Subscriber {
	return &Subscriber{repo: repo, bus: bus, log: log}
}

// Start subscribes to every engine event family
func (s *Subscriber) Start(ctx context.Context) error {
	patterns := []struct {
		pattern      string
		consumerName string
	}{
		{"case.*", "audit-case-subscriber"},
		{"incident.*", "audit-incident-subscriber"},
		{"operator.*", "audit-operator-subscriber"},
	}

	for _, p := range patterns {
		if err := s.bus.Subscribe(ctx, p.pattern, p.consumerName, s.handleEvent); err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", p.pattern, err)
		}
	}
	return nil
}

func (s *Subscriber) handleEvent(ctx context.Context, event events.Event) error {
	entry := NewEntry(event)
	if err := s.repo.Append(ctx, entry); err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	s.log.DebugContext(ctx, "audit entry appended", "sequence", entry.Sequence, "action", entry.Action)
	return nil
}
