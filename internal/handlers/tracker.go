package handlers

import (
	"time"

	"github.com/google/uuid"

	"lookout/pkg/kafka"
	"lookout/pkg/logging"
)

// trackerPublisher emits lifecycle events onto the tracker_events topic.
// Publication is best-effort: a broker outage must never block correlation,
// so failures are logged and counted instead of returned.
type trackerPublisher struct {
	producer kafka.ProducerInterface
	topic    string
	logger   logging.Logger
	metrics  *LookoutMetrics
}

func newTrackerPublisher(producer kafka.ProducerInterface, topic string, logger logging.Logger, metrics *LookoutMetrics) *trackerPublisher {
	return &trackerPublisher{producer: producer, topic: topic, logger: logger, metrics: metrics}
}

func (p *trackerPublisher) publish(eventType, serverID, channelID string, requestID, curatorID *string, data map[string]interface{}) {
	if p == nil || p.producer == nil {
		return
	}

	event := &kafka.TrackerEvent{
		EventID:       uuid.New().String(),
		EventType:     eventType,
		Timestamp:     time.Now().UTC(),
		Source:        "lookout",
		ServerID:      serverID,
		ChannelID:     channelID,
		RequestID:     requestID,
		CuratorID:     curatorID,
		Data:          data,
		SchemaVersion: kafka.TrackerSchemaVersion,
	}

	if err := p.producer.PublishTrackerEvent(p.topic, event); err != nil {
		p.logger.WithFields(logging.Fields{
			"event_type": eventType,
			"server_id":  serverID,
			"error":      err,
		}).Warn("Failed to publish tracker event")
		if p.metrics != nil {
			p.metrics.TrackerEvents.WithLabelValues(eventType, "error").Inc()
		}
		return
	}
	if p.metrics != nil {
		p.metrics.TrackerEvents.WithLabelValues(eventType, "published").Inc()
	}
}
