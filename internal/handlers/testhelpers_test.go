package handlers

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"lookout/internal/config"
	"lookout/internal/notify"
	"lookout/pkg/kafka"
	"lookout/pkg/logging"
)

func testLogger() logging.Logger {
	logger := logging.NewLogger()
	logger.SetOutput(io.Discard)
	return logger
}

var testWeights = config.ActivityWeights{Message: 3, Reaction: 1, Reply: 2, TaskVerification: 5}

// fakeBatch records appended rows and simulates append/send failures.
type fakeBatch struct {
	appendErrAt int
	appendCalls int
	sendErr     error
	sendCalled  bool
	rows        [][]interface{}
}

func (b *fakeBatch) Append(v ...interface{}) error {
	b.appendCalls++
	if b.appendErrAt > 0 && b.appendCalls >= b.appendErrAt {
		return errors.New("append failed")
	}
	row := make([]interface{}, len(v))
	copy(row, v)
	b.rows = append(b.rows, row)
	return nil
}

func (b *fakeBatch) Send() error {
	b.sendCalled = true
	return b.sendErr
}

// fakeRows feeds canned result rows through the clickhouseRows interface.
type fakeRows struct {
	rows    [][]interface{}
	idx     int
	scanErr error
	iterErr error
	closed  bool
}

func (r *fakeRows) Next() bool { return r.idx < len(r.rows) }

func (r *fakeRows) Scan(dest ...interface{}) error {
	if r.scanErr != nil {
		return r.scanErr
	}
	row := r.rows[r.idx]
	r.idx++
	for i := range dest {
		switch d := dest[i].(type) {
		case *string:
			*d = row[i].(string)
		case *int32:
			*d = row[i].(int32)
		case *int64:
			*d = row[i].(int64)
		case *float64:
			*d = row[i].(float64)
		case *time.Time:
			*d = row[i].(time.Time)
		default:
			return errors.New("unsupported scan destination")
		}
	}
	return nil
}

func (r *fakeRows) Close() error { r.closed = true; return nil }
func (r *fakeRows) Err() error   { return r.iterErr }

// fakeClickhouse implements clickhouseConn for ledger tests.
type fakeClickhouse struct {
	batch      *fakeBatch
	prepareErr error
	queryRows  *fakeRows
	queryErr   error
	execErr    error

	queries []string
	execs   []string
}

func (f *fakeClickhouse) PrepareBatch(ctx context.Context, query string) (clickhouseBatch, error) {
	if f.prepareErr != nil {
		return nil, f.prepareErr
	}
	if f.batch == nil {
		f.batch = &fakeBatch{}
	}
	return f.batch, nil
}

func (f *fakeClickhouse) Query(ctx context.Context, query string, args ...interface{}) (clickhouseRows, error) {
	f.queries = append(f.queries, query)
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	if f.queryRows == nil {
		return &fakeRows{}, nil
	}
	return f.queryRows, nil
}

func (f *fakeClickhouse) Exec(ctx context.Context, query string, args ...interface{}) error {
	f.execs = append(f.execs, query)
	return f.execErr
}

func newTestLedger(fake *fakeClickhouse) *ActivityLedger {
	return &ActivityLedger{ch: fake, weights: testWeights, logger: testLogger()}
}

// fakeProducer captures published tracker events and DLQ messages.
type fakeProducer struct {
	mu         sync.Mutex
	events     []*kafka.TrackerEvent
	topics     []string
	dlqTopics  []string
	dlqValues  [][]byte
	publishErr error
}

func (p *fakeProducer) ProduceMessage(topic string, key []byte, value []byte, headers map[string]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dlqTopics = append(p.dlqTopics, topic)
	p.dlqValues = append(p.dlqValues, value)
	return p.publishErr
}

func (p *fakeProducer) PublishTrackerEvent(topic string, event *kafka.TrackerEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.publishErr != nil {
		return p.publishErr
	}
	p.topics = append(p.topics, topic)
	p.events = append(p.events, event)
	return nil
}

func (p *fakeProducer) Close() error { return nil }

func (p *fakeProducer) eventTypes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]string, 0, len(p.events))
	for _, event := range p.events {
		types = append(types, event.EventType)
	}
	return types
}

// recorderSink captures notifications instead of delivering them.
type recorderSink struct {
	mu       sync.Mutex
	alerts   []notify.Alert
	digests  []notify.Digest
	alertErr error
}

func (s *recorderSink) Alert(ctx context.Context, alert notify.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.alertErr != nil {
		return s.alertErr
	}
	s.alerts = append(s.alerts, alert)
	return nil
}

func (s *recorderSink) Digest(ctx context.Context, digest notify.Digest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.digests = append(s.digests, digest)
	return nil
}
