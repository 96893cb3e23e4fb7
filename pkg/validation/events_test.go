package validation

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"lookout/pkg/models"
)

func baseEnvelope(kind string) ChatEnvelope {
	return ChatEnvelope{
		EventID:   uuid.NewString(),
		Kind:      kind,
		ServerID:  "srv-1",
		ChannelID: "chan-1",
		AuthorID:  "user-1",
		MessageID: "msg-1",
		Content:   "hello",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

func TestValidateEnvelope_Message_OK(t *testing.T) {
	v := NewEventValidator()
	env := baseEnvelope("message")
	evt, err := v.ValidateEnvelope(&env)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if evt.Kind != models.ChatEventMessage {
		t.Fatalf("expected message kind, got %s", evt.Kind)
	}
	if evt.Timestamp.IsZero() {
		t.Fatalf("timestamp not parsed")
	}
}

func TestValidateEnvelope_BadTimestamp(t *testing.T) {
	v := NewEventValidator()
	env := baseEnvelope("message")
	env.Timestamp = "yesterday around noon"
	if _, err := v.ValidateEnvelope(&env); err == nil {
		t.Fatalf("expected error for unparseable timestamp")
	}
}

func TestValidateEnvelope_FractionalTimestamp(t *testing.T) {
	v := NewEventValidator()
	env := baseEnvelope("message")
	env.Timestamp = "2025-03-01T12:00:00.123456Z"
	evt, err := v.ValidateEnvelope(&env)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if evt.Timestamp.Nanosecond() == 0 {
		t.Fatalf("fractional seconds dropped")
	}
}

func TestDecodeEnvelope_Garbage(t *testing.T) {
	if _, err := DecodeEnvelope([]byte("{not json")); err == nil {
		t.Fatalf("expected decode error")
	}
}
