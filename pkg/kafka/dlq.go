package kafka

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

// DLQPayload wraps a chat event the pipeline could not process. The raw
// value is base64-encoded so malformed bytes survive JSON transport and
// can be replayed or inspected later.
type DLQPayload struct {
	Consumer    string            `json:"consumer"`
	Error       string            `json:"error"`
	FailedAt    time.Time         `json:"failed_at"`
	Topic       string            `json:"topic"`
	Partition   int32             `json:"partition"`
	Offset      int64             `json:"offset"`
	EventTime   time.Time         `json:"event_time"`
	KeyBase64   string            `json:"key_base64,omitempty"`
	ValueBase64 string            `json:"value_base64"`
	Headers     map[string]string `json:"headers,omitempty"`
}

// EncodeDLQMessage builds the dead-letter payload for a rejected message.
func EncodeDLQMessage(msg Message, cause error, consumer string) ([]byte, error) {
	p := DLQPayload{
		Consumer:    consumer,
		FailedAt:    time.Now().UTC(),
		Topic:       msg.Topic,
		Partition:   msg.Partition,
		Offset:      msg.Offset,
		EventTime:   msg.Timestamp,
		ValueBase64: base64.StdEncoding.EncodeToString(msg.Value),
		Headers:     msg.Headers,
	}
	if len(msg.Key) > 0 {
		p.KeyBase64 = base64.StdEncoding.EncodeToString(msg.Key)
	}
	if cause != nil {
		p.Error = cause.Error()
	}

	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal dlq payload: %w", err)
	}
	return b, nil
}
