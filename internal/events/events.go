// Package events publishes reconciliation status-change events for the
// notification service. Delivery to users happens downstream.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	MatchCreated        = "match_created"
	TradeMatched        = "trade_matched"
	SettlementGenerated = "settlement_generated"
)

type Event struct {
	ID         uuid.UUID              `json:"id"`
	Type       string                 `json:"type"`
	TenantID   uuid.UUID              `json:"tenant_id"`
	OccurredAt time.Time              `json:"occurred_at"`
	Payload    map[string]interface{} `json:"payload"`
}

// New stamps an event with an id and the current time.
func New(eventType string, tenantID uuid.UUID, payload map[string]interface{}) Event {
	return Event{
		ID:         uuid.New(),
		Type:       eventType,
		TenantID:   tenantID,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// LogPublisher writes events to the log. Used when no broker is configured.
type LogPublisher struct {
	logger zerolog.Logger
}

func NewLogPublisher(logger zerolog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, e Event) error {
	p.logger.Info().
		Str("event", e.Type).
		Str("tenant_id", e.TenantID.String()).
		Interface("payload", e.Payload).
		Msg("Event published")
	return nil
}

// MemoryPublisher keeps published events in memory.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []Event
}

func (p *MemoryPublisher) Publish(_ context.Context, e Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *MemoryPublisher) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Event(nil), p.events...)
}

// OfType returns the published events with the given type.
func (p *MemoryPublisher) OfType(eventType string) []Event {
	var out []Event
	for _, e := range p.Events() {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}
