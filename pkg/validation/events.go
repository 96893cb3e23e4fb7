package validation

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"lookout/pkg/models"
)

// ChatEnvelope is the raw bridge payload for a single chat-platform event as
// published to the chat_events topic. The gateway bridge owns the platform
// connection; by the time an envelope reaches lookout the author's curator
// role has already been resolved into author_is_curator.
type ChatEnvelope struct {
	EventID         string `json:"event_id" validate:"required"`
	Kind            string `json:"kind" validate:"required,oneof=message reply reaction"`
	ServerID        string `json:"server_id" validate:"required"`
	ChannelID       string `json:"channel_id" validate:"required"`
	AuthorID        string `json:"author_id" validate:"required"`
	AuthorName      string `json:"author_name,omitempty"`
	AuthorIsBot     bool   `json:"author_is_bot,omitempty"`
	AuthorIsCurator bool   `json:"author_is_curator,omitempty"`
	MessageID       string `json:"message_id,omitempty"`
	TargetMessageID string `json:"target_message_id,omitempty"`
	TargetAuthorID  string `json:"target_author_id,omitempty"`
	Content         string `json:"content,omitempty"`
	Emoji           string `json:"emoji,omitempty"`
	Timestamp       string `json:"timestamp" validate:"required"`
}

// EventValidator performs structural and kind-specific validation on bridge
// envelopes before they enter the pipeline. Envelopes that fail here are
// dropped to the dead-letter topic, never processed.
type EventValidator struct {
	validator *validator.Validate
}

// NewEventValidator constructs an EventValidator with standard struct validation.
func NewEventValidator() *EventValidator {
	return &EventValidator{
		validator: validator.New(),
	}
}

// ValidateEnvelope checks the envelope and converts it into a normalized
// ChatEvent. The timestamp must be RFC 3339; fractional seconds are accepted.
func (v *EventValidator) ValidateEnvelope(env *ChatEnvelope) (*models.ChatEvent, error) {
	if err := v.validator.Struct(env); err != nil {
		return nil, fmt.Errorf("envelope validation failed: %w", err)
	}

	if err := v.validateKindFields(env); err != nil {
		return nil, err
	}

	ts, err := time.Parse(time.RFC3339Nano, env.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("invalid timestamp %q: %w", env.Timestamp, err)
	}

	return &models.ChatEvent{
		EventID:         env.EventID,
		Kind:            models.ChatEventKind(env.Kind),
		ServerID:        env.ServerID,
		ChannelID:       env.ChannelID,
		AuthorID:        env.AuthorID,
		AuthorName:      env.AuthorName,
		AuthorIsBot:     env.AuthorIsBot,
		AuthorIsCurator: env.AuthorIsCurator,
		MessageID:       env.MessageID,
		TargetMessageID: env.TargetMessageID,
		TargetAuthorID:  env.TargetAuthorID,
		Content:         env.Content,
		Emoji:           env.Emoji,
		Timestamp:       ts.UTC(),
	}, nil
}

// validateKindFields applies the per-kind field requirements.
func (v *EventValidator) validateKindFields(env *ChatEnvelope) error {
	switch models.ChatEventKind(env.Kind) {
	case models.ChatEventMessage:
		if env.MessageID == "" {
			return fmt.Errorf("message_id is required for message events")
		}
	case models.ChatEventReply:
		if env.MessageID == "" {
			return fmt.Errorf("message_id is required for reply events")
		}
		if env.TargetMessageID == "" {
			return fmt.Errorf("target_message_id is required for reply events")
		}
	case models.ChatEventReaction:
		if env.Emoji == "" {
			return fmt.Errorf("emoji is required for reaction events")
		}
		if env.TargetMessageID == "" {
			return fmt.Errorf("target_message_id is required for reaction events")
		}
	default:
		return fmt.Errorf("unknown event kind: %s", env.Kind)
	}
	return nil
}

// DecodeEnvelope unmarshals a raw Kafka payload into an envelope without
// validating it. Callers pass the result to ValidateEnvelope.
func DecodeEnvelope(payload []byte) (*ChatEnvelope, error) {
	var env ChatEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("failed to decode envelope: %w", err)
	}
	return &env, nil
}

// ToJSON serializes the envelope, used by tests and the DLQ path.
func (e *ChatEnvelope) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}
