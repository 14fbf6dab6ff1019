package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/EventStore/EventStore-Client-Go/v4/esdb"
	"github.com/google/uuid"
	"github.com/sentinel-ops/casedesk/internal/shared/config"
	"github.com/sentinel-ops/casedesk/internal/shared/metrics"
)

// Bus provides event publishing and subscription using KurrentDB
type Bus struct {
	client *esdb.Client
	prefix string
	log    *slog.Logger
}

// NewBus creates a new event bus connected to KurrentDB
func NewBus(ctx context.Context, cfg config.KurrentDBConfig, log *slog.Logger) (*Bus, error) {
	settings, err := esdb.ParseConnectionString(buildConnectionString(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	client, err := esdb.NewClient(settings)
	if err != nil {
		return nil, fmt.Errorf("failed to create KurrentDB client: %w", err)
	}

	prefix := cfg.StreamPrefix
	if prefix == "" {
		prefix = "casedesk"
	}

	return &Bus{
		client: client,
		prefix: prefix,
		log:    log.With("component", "kurrentdb"),
	}, nil
}

// buildConnectionString creates the esdb:// connection string
func buildConnectionString(cfg config.KurrentDBConfig) string {
	var auth string
	if cfg.Username != "" && cfg.Password != "" {
		auth = fmt.Sprintf("%s:%s@", cfg.Username, cfg.Password)
	}

	params := ""
	if cfg.Insecure {
		params = "?tls=false&tlsVerifyCert=false&keepAliveInterval=10000&keepAliveTimeout=10000"
	}

	return fmt.Sprintf("esdb://%s%s:%d%s", auth, cfg.Host, cfg.Port, params)
}

// streamName maps an event type to its stream: case.created -> casedesk-case-created
func (b *Bus) streamName(eventType string) string {
	return b.prefix + "-" + strings.ReplaceAll(eventType, ".", "-")
}

// Publish appends an event to its type stream
func (b *Bus) Publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	eventID, err := uuid.Parse(event.ID)
	if err != nil {
		eventID = uuid.New()
	}

	_, err = b.client.AppendToStream(ctx, b.streamName(event.Type), esdb.AppendToStreamOptions{
		ExpectedRevision: esdb.Any{},
	}, esdb.EventData{
		EventType:   event.Type,
		ContentType: esdb.ContentTypeJson,
		Data:        data,
		EventID:     eventID,
	})
	metrics.RecordEventPublished(event.Type, err)
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

// Subscribe starts a catch-up subscription on $all filtered to pattern.
// "*" uses a persistent subscription group named consumerName instead.
func (b *Bus) Subscribe(ctx context.Context, pattern string, consumerName string, handler Handler) error {
	if pattern == "*" || pattern == ">" {
		settings := esdb.SubscriptionSettingsDefault()
		settings.ResolveLinkTos = true

		err := b.client.CreatePersistentSubscriptionToAll(ctx, consumerName, esdb.PersistentAllSubscriptionOptions{
			Settings:  &settings,
			StartFrom: esdb.End{},
		})
		if err != nil {
			// FromError reports ok only for a nil error
			if esdbErr, _ := esdb.FromError(err); esdbErr.Code() != esdb.ErrorCodeResourceAlreadyExists {
				return fmt.Errorf("failed to create persistent subscription: %w", err)
			}
		}

		sub, err := b.client.SubscribeToPersistentSubscriptionToAll(ctx, consumerName, esdb.SubscribeToPersistentSubscriptionOptions{})
		if err != nil {
			return fmt.Errorf("failed to subscribe to persistent subscription: %w", err)
		}
		go b.handlePersistentSubscription(ctx, sub, pattern, handler)
		return nil
	}

	sub, err := b.client.SubscribeToAll(ctx, esdb.SubscribeToAllOptions{
		From: esdb.End{},
		Filter: &esdb.SubscriptionFilter{
			Type:  esdb.EventFilterType,
			Regex: patternToRegex(pattern),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to pattern: %w", err)
	}

	go b.handleCatchUpSubscription(ctx, sub, pattern, handler)
	return nil
}

// patternToRegex converts "case.*" to "^case\..*"
func patternToRegex(pattern string) string {
	var sb strings.Builder
	sb.WriteByte('^')
	for _, ch := range pattern {
		switch ch {
		case '.':
			sb.WriteString(`\.`)
		case '*':
			sb.WriteString(".*")
		default:
			sb.WriteRune(ch)
		}
	}
	return sb.String()
}

func (b *Bus) handlePersistentSubscription(ctx context.Context, sub *esdb.PersistentSubscription, pattern string, handler Handler) {
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		subEvent := sub.Recv()
		if subEvent.EventAppeared == nil {
			if subEvent.SubscriptionDropped != nil {
				b.log.Warn("subscription dropped", "error", subEvent.SubscriptionDropped.Error)
				return
			}
			continue
		}

		resolved := subEvent.EventAppeared.Event
		if resolved == nil || resolved.Event == nil {
			continue
		}
		recorded := resolved.Event

		if strings.HasPrefix(recorded.EventType, "$") || !matchesPattern(recorded.EventType, pattern) {
			sub.Ack(resolved)
			continue
		}

		event, err := recordedEventToEvent(recorded)
		if err != nil {
			b.log.Error("failed to decode event", "error", err)
			sub.Nack("conversion error", esdb.NackActionPark, resolved)
			continue
		}

		if err := handler(ctx, event); err != nil {
			b.log.Error("event handler failed", "event_id", event.ID, "type", event.Type, "error", err)
			sub.Nack("handler error", esdb.NackActionRetry, resolved)
			continue
		}

		sub.Ack(resolved)
	}
}

func (b *Bus) handleCatchUpSubscription(ctx context.Context, sub *esdb.Subscription, pattern string, handler Handler) {
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		subEvent := sub.Recv()
		if subEvent.EventAppeared == nil {
			if subEvent.SubscriptionDropped != nil {
				b.log.Warn("subscription dropped", "error", subEvent.SubscriptionDropped.Error)
				return
			}
			time.Sleep(10 * time.Millisecond)
			continue
		}

		recorded := subEvent.EventAppeared.Event
		if recorded == nil || strings.HasPrefix(recorded.EventType, "$") || !matchesPattern(recorded.EventType, pattern) {
			continue
		}

		event, err := recordedEventToEvent(recorded)
		if err != nil {
			b.log.Error("failed to decode event", "error", err)
			continue
		}

		if err := handler(ctx, event); err != nil {
			b.log.Error("event handler failed", "event_id", event.ID, "type", event.Type, "error", err)
		}
	}
}

// recordedEventToEvent converts a KurrentDB event to our Event type
func recordedEventToEvent(recorded *esdb.RecordedEvent) (Event, error) {
	var event Event
	if err := json.Unmarshal(recorded.Data, &event); err != nil {
		return Event{}, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	if event.ID == "" {
		event.ID = recorded.EventID.String()
	}
	return event, nil
}

// Close closes the event bus connection
func (b *Bus) Close() {
	if b.client != nil {
		b.client.Close()
	}
}

// Health reads one event from $streams to verify the connection
func (b *Bus) Health() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := b.client.ReadStream(ctx, "$streams", esdb.ReadStreamOptions{
		From:      esdb.Start{},
		Direction: esdb.Forwards,
	}, 1)
	if err != nil {
		return fmt.Errorf("KurrentDB health check failed: %w", err)
	}
	stream.Close()

	return nil
}
