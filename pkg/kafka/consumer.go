package kafka

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Message is one consumed record, decoupled from the franz-go types so
// handlers and tests never touch kgo directly.
type Message struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int32
	Offset    int64
	Timestamp time.Time
}

// Handler processes one message. A returned error blocks the offset of
// that partition so the message is re-delivered after restart.
type Handler func(ctx context.Context, msg Message) error

// Consumer polls the chat-event stream and routes records by topic.
// Commits are manual: only offsets whose handlers succeeded are committed,
// per partition, so a failed event is never silently skipped.
type Consumer struct {
	client    *kgo.Client
	logger    *logrus.Logger
	clusterID string
	groupID   string
	handlers  map[string]Handler
	mu        sync.RWMutex
}

func NewConsumer(brokers []string, groupID string, clusterID string, clientID string, logger *logrus.Logger) (*Consumer, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ConsumerGroup(groupID),
		kgo.ClientID(clientID),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
		kgo.DisableAutoCommit(),
		kgo.BlockRebalanceOnPoll(),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	return &Consumer{
		client:    client,
		logger:    logger,
		clusterID: clusterID,
		groupID:   groupID,
		handlers:  make(map[string]Handler),
	}, nil
}

// AddHandler registers a handler and subscribes the group to the topic.
func (c *Consumer) AddHandler(topic string, handler Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[topic] = handler
	c.client.AddConsumeTopics(topic)
}

func (c *Consumer) Close() error {
	c.client.Close()
	return nil
}

// GetClient exposes the underlying client for health probes.
func (c *Consumer) GetClient() *kgo.Client {
	return c.client
}

// Start polls until the context is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		fetches := c.client.PollFetches(ctx)
		if errs := fetches.Errors(); len(errs) > 0 {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Errorf("kafka poll errors: %v", errs)
			continue
		}

		var batch []*kgo.Record
		for iter := fetches.RecordIter(); !iter.Done(); {
			batch = append(batch, iter.Next())
		}

		if commits := c.dispatch(ctx, batch); len(commits) > 0 {
			if err := c.client.CommitRecords(ctx, commits...); err != nil {
				c.logger.WithError(err).Error("Failed to commit offsets")
			}
		}
	}
}

type partitionKey struct {
	topic     string
	partition int32
}

// dispatch runs handlers in fetch order and returns, per partition, the
// last record whose handler succeeded. Once a handler fails, the rest of
// that partition's batch is held back; committing past the failure would
// drop the event on restart.
func (c *Consumer) dispatch(ctx context.Context, batch []*kgo.Record) []*kgo.Record {
	stalled := make(map[partitionKey]bool)
	committable := make(map[partitionKey]*kgo.Record)

	for _, rec := range batch {
		pk := partitionKey{rec.Topic, rec.Partition}
		if stalled[pk] {
			continue
		}

		c.mu.RLock()
		handler, ok := c.handlers[rec.Topic]
		c.mu.RUnlock()
		if !ok {
			// Unroutable records are committed anyway; re-delivering
			// them on restart would not make a handler appear.
			c.logger.WithField("topic", rec.Topic).Warn("No handler registered for topic")
			committable[pk] = rec
			continue
		}

		headers := make(map[string]string, len(rec.Headers))
		for _, h := range rec.Headers {
			headers[h.Key] = string(h.Value)
		}

		err := handler(ctx, Message{
			Key:       rec.Key,
			Value:     rec.Value,
			Headers:   headers,
			Topic:     rec.Topic,
			Partition: rec.Partition,
			Offset:    rec.Offset,
			Timestamp: rec.Timestamp,
		})
		if err != nil {
			c.logger.WithError(err).WithFields(logrus.Fields{
				"topic":     rec.Topic,
				"partition": rec.Partition,
				"offset":    rec.Offset,
			}).Error("Handler failed, holding partition offset for redelivery")
			stalled[pk] = true
			continue
		}
		committable[pk] = rec
	}

	if len(committable) == 0 {
		return nil
	}
	out := make([]*kgo.Record, 0, len(committable))
	for _, rec := range committable {
		out = append(out, rec)
	}
	return out
}
