package kafka

import (
	"time"
)

// Tracker event types published to the lifecycle topic.
const (
	EventHelpRequestOpened    = "help_request.opened"
	EventHelpRequestAnswered  = "help_request.answered"
	EventHelpRequestEscalated = "help_request.escalated"
	EventHelpRequestAbandoned = "help_request.abandoned"
	EventRatingFinalized      = "rating.finalized"
)

// TrackerSchemaVersion is stamped on every published envelope.
const TrackerSchemaVersion = "1.0"

// TrackerEvent is the lifecycle event envelope this service publishes for
// downstream consumers (dashboards, exports). Data carries event-specific
// fields; the envelope stays stable across event types.
type TrackerEvent struct {
	EventID       string                 `json:"event_id"`
	EventType     string                 `json:"event_type"`
	Timestamp     time.Time              `json:"timestamp"`
	Source        string                 `json:"source"`
	ServerID      string                 `json:"server_id,omitempty"`
	ChannelID     string                 `json:"channel_id,omitempty"`
	RequestID     *string                `json:"request_id,omitempty"`
	CuratorID     *string                `json:"curator_id,omitempty"`
	Data          map[string]interface{} `json:"data,omitempty"`
	SchemaVersion string                 `json:"schema_version"`
}

// ProducerInterface is the publishing surface the handlers depend on;
// tests substitute a capturing fake.
type ProducerInterface interface {
	ProduceMessage(topic string, key []byte, value []byte, headers map[string]string) error
	PublishTrackerEvent(topic string, event *TrackerEvent) error
	Close() error
}
