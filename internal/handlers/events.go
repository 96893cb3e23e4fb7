package handlers

import (
	"context"
	"database/sql"

	"lookout/internal/config"
	"lookout/pkg/kafka"
	"lookout/pkg/logging"
	"lookout/pkg/models"
	"lookout/pkg/validation"
)

// dlqConsumerName identifies this consumer in dead-letter payloads.
const dlqConsumerName = "lookout-ingest"

// PipelineDeps wires the chat-event pipeline.
type PipelineDeps struct {
	DB       *sql.DB
	Roster   *Roster
	Ledger   *ActivityLedger
	Producer kafka.ProducerInterface
	Config   config.Config
	Logger   logging.Logger
	Metrics  *LookoutMetrics
}

// EventPipeline consumes normalized chat events and drives detection,
// response correlation, task reports and the activity ledger.
//
// Failure split: malformed payloads are dead-lettered and skipped (returning
// nil commits the offset), transient downstream failures are returned so the
// consumer holds the offset and redelivers. Every write along the pipeline is
// idempotent under redelivery.
type EventPipeline struct {
	validator  *validation.EventValidator
	detector   *Detector
	correlator *Correlator
	tasks      *TaskDesk
	roster     *Roster
	ledger     *ActivityLedger
	producer   kafka.ProducerInterface
	dlqTopic   string
	logger     logging.Logger
	metrics    *LookoutMetrics
}

func NewEventPipeline(deps PipelineDeps) *EventPipeline {
	return &EventPipeline{
		validator:  validation.NewEventValidator(),
		detector:   NewDetector(deps.Config.Detector),
		correlator: NewCorrelator(deps.DB, deps.Config.Correlator, deps.Producer, deps.Config.TrackerEventsTopic, deps.Logger, deps.Metrics),
		tasks:      NewTaskDesk(deps.DB, deps.Ledger, deps.Logger, deps.Metrics),
		roster:     deps.Roster,
		ledger:     deps.Ledger,
		producer:   deps.Producer,
		dlqTopic:   deps.Config.ChatEventsDLQTopic,
		logger:     deps.Logger,
		metrics:    deps.Metrics,
	}
}

// HandleChatEvent processes one message from the chat events topic.
func (p *EventPipeline) HandleChatEvent(ctx context.Context, msg kafka.Message) error {
	env, err := validation.DecodeEnvelope(msg.Value)
	if err != nil {
		p.countEvent("unknown", "invalid")
		p.deadLetter(msg, err)
		return nil
	}
	event, err := p.validator.ValidateEnvelope(env)
	if err != nil {
		p.countEvent(env.Kind, "invalid")
		p.deadLetter(msg, err)
		return nil
	}
	kind := string(event.Kind)
	p.countEvent(kind, "received")

	if event.AuthorIsBot {
		p.countEvent(kind, "bot_skipped")
		return nil
	}

	server, err := p.roster.Server(ctx, event.ServerID)
	if err != nil {
		p.countEvent(kind, "error")
		return err
	}
	if server == nil || !server.IsActive {
		p.countEvent(kind, "unmonitored")
		return nil
	}

	// Curator activity is processed first so a curator's own message can
	// close pending records before any help request of their own opens.
	if event.AuthorIsCurator {
		if err := p.handleCuratorEvent(ctx, server, event); err != nil {
			p.countEvent(kind, "error")
			return err
		}
	}

	if event.Kind == models.ChatEventMessage && server.WatchesChannel(event.ChannelID) {
		if err := p.trackHelpRequest(ctx, server, event); err != nil {
			p.countEvent(kind, "error")
			return err
		}
	}

	p.countEvent(kind, "processed")
	return nil
}

func (p *EventPipeline) handleCuratorEvent(ctx context.Context, server *models.MonitoredServer, event *models.ChatEvent) error {
	curator, err := p.roster.EnsureCurator(ctx, server.ID, event.AuthorID, event.AuthorName, event.Timestamp)
	if err != nil {
		return err
	}
	if !curator.IsActive {
		p.logger.WithFields(logging.Fields{
			"server_id":  server.ID,
			"curator_id": curator.ID,
		}).Debug("Skipping deactivated curator")
		return nil
	}

	if server.IsTaskChannel(event.ChannelID) {
		switch event.Kind {
		case models.ChatEventMessage:
			if _, err := p.tasks.SubmitReport(ctx, event, curator); err != nil {
				return err
			}
		case models.ChatEventReaction:
			if _, err := p.tasks.VerifyByReaction(ctx, event, curator); err != nil {
				return err
			}
		}
	}

	if _, err := p.correlator.CloseOnResponse(ctx, event, curator); err != nil {
		return err
	}

	return p.ledger.Record(ctx, models.ActivityRecord{
		EventID:        event.EventID,
		ServerID:       event.ServerID,
		ChannelID:      event.ChannelID,
		CuratorID:      curator.ID,
		PlatformUserID: curator.PlatformUserID,
		Kind:           activityKindFor(event.Kind),
		Detail:         activityDetail(event),
		Timestamp:      event.Timestamp,
	})
}

func (p *EventPipeline) trackHelpRequest(ctx context.Context, server *models.MonitoredServer, event *models.ChatEvent) error {
	det := p.detector.Detect(event.Content)
	if !det.HelpRequestFor(server.CuratorRoleID) {
		return nil
	}
	_, _, err := p.correlator.OpenOrExtend(ctx, event, det, server.CuratorRoleID)
	return err
}

func (p *EventPipeline) deadLetter(msg kafka.Message, cause error) {
	p.logger.WithFields(logging.Fields{
		"topic":  msg.Topic,
		"offset": msg.Offset,
		"error":  cause,
	}).Warn("Dead-lettering malformed chat event")

	if p.producer == nil || p.dlqTopic == "" {
		return
	}
	payload, err := kafka.EncodeDLQMessage(msg, cause, dlqConsumerName)
	if err != nil {
		p.logger.WithError(err).Error("Failed to encode DLQ payload")
		return
	}
	headers := map[string]string{"source": dlqConsumerName}
	if err := p.producer.ProduceMessage(p.dlqTopic, msg.Key, payload, headers); err != nil {
		p.logger.WithError(err).Error("Failed to publish DLQ message")
	}
}

func (p *EventPipeline) countEvent(kind, status string) {
	if p.metrics == nil || p.metrics.ChatEvents == nil {
		return
	}
	p.metrics.ChatEvents.WithLabelValues(kind, status).Inc()
}

func activityKindFor(kind models.ChatEventKind) models.ActivityKind {
	switch kind {
	case models.ChatEventReply:
		return models.ActivityReply
	case models.ChatEventReaction:
		return models.ActivityReaction
	default:
		return models.ActivityMessage
	}
}

func activityDetail(event *models.ChatEvent) string {
	if event.Kind == models.ChatEventReaction {
		return event.Emoji
	}
	return truncateExcerpt(event.Content)
}
