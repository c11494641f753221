package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	TypeSyncCompleted = "pos.sync.completed"
	source            = "restaurantintel-backend"
)

// Event is the envelope written to the message bus.
type Event struct {
	ID          string            `json:"event_id"`
	Type        string            `json:"event_type"`
	AggregateID string            `json:"aggregate_id"`
	Version     int               `json:"version"`
	Timestamp   time.Time         `json:"timestamp"`
	Source      string            `json:"source"`
	Data        json.RawMessage   `json:"data"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

func New(eventType string, aggregateID string, data any, at time.Time) (Event, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return Event{}, err
	}
	return Event{
		ID:          uuid.NewString(),
		Type:        eventType,
		AggregateID: aggregateID,
		Version:     1,
		Timestamp:   at.UTC(),
		Source:      source,
		Data:        payload,
	}, nil
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// Noop drops every event. Used when no brokers are configured.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }

func (Noop) Close() error { return nil }
