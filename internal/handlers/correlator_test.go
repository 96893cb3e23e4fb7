package handlers

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"lookout/internal/config"
	"lookout/pkg/kafka"
	"lookout/pkg/models"
)

func newCorrelatorMock(t *testing.T, cfg config.CorrelatorConfig) (*Correlator, sqlmock.Sqlmock, *fakeProducer, func()) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	producer := &fakeProducer{}
	correlator := NewCorrelator(db, cfg, producer, "tracker_events", testLogger(), nil)
	return correlator, mock, producer, func() { db.Close() }
}

func helpEvent(ts time.Time) *models.ChatEvent {
	return &models.ChatEvent{
		EventID:    "evt-1",
		Kind:       models.ChatEventMessage,
		ServerID:   "srv-1",
		ChannelID:  "chan-1",
		AuthorID:   "user-7",
		AuthorName: "Игрок",
		MessageID:  "msg-100",
		Content:    "нужна помощь куратор <@&role-9>",
		Timestamp:  ts,
	}
}

func testCurator() *models.Curator {
	return &models.Curator{
		ID:             "11111111-1111-1111-1111-111111111111",
		ServerID:       "srv-1",
		PlatformUserID: "curator-1",
		DisplayName:    "Куратор",
		IsActive:       true,
	}
}

func closedColumns() []string {
	return []string{"id", "server_id", "channel_id", "requester_id", "mentioned_at", "latency_seconds"}
}

func TestOpenCreatesRecord(t *testing.T) {
	correlator, mock, producer, done := newCorrelatorMock(t, config.CorrelatorConfig{ReactionCloses: true})
	defer done()

	asked := time.Date(2025, 3, 12, 10, 0, 0, 0, time.UTC)
	event := helpEvent(asked)

	mock.ExpectQuery(`INSERT INTO help_requests`).
		WithArgs("srv-1", "chan-1", "user-7", "Игрок", "msg-100", "role-9",
			sqlmock.AnyArg(), event.Content, asked).
		WillReturnRows(sqlmock.NewRows([]string{"id", "mentioned_at", "nudge_count"}).
			AddRow("req-1", asked, 0))

	det := Detection{KeywordHit: true, MentionedRoles: []string{"role-9"}}
	id, opened, err := correlator.OpenOrExtend(context.Background(), event, det, "role-9")
	if err != nil {
		t.Fatalf("OpenOrExtend returned error: %v", err)
	}
	if !opened {
		t.Error("expected a freshly opened record")
	}
	if id != "req-1" {
		t.Errorf("expected request id req-1, got %s", id)
	}

	types := producer.eventTypes()
	if len(types) != 1 || types[0] != kafka.EventHelpRequestOpened {
		t.Errorf("expected one opened event, got %v", types)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestRepeatRequestExtendsInsteadOfDuplicating(t *testing.T) {
	correlator, mock, producer, done := newCorrelatorMock(t, config.CorrelatorConfig{ReactionCloses: true})
	defer done()

	asked := time.Date(2025, 3, 12, 10, 0, 0, 0, time.UTC)
	repeat := helpEvent(asked.Add(3 * time.Minute))
	repeat.MessageID = "msg-101"
	repeat.Content = "куратор, ну пожалуйста"

	// The upsert lands on the existing awaiting row: nudge count bumped,
	// mentioned_at keeps the original ask.
	mock.ExpectQuery(`INSERT INTO help_requests`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "mentioned_at", "nudge_count"}).
			AddRow("req-1", asked, 1))

	id, opened, err := correlator.OpenOrExtend(context.Background(), repeat, Detection{KeywordHit: true}, "role-9")
	if err != nil {
		t.Fatalf("OpenOrExtend returned error: %v", err)
	}
	if opened {
		t.Error("repeat request must extend, not open")
	}
	if id != "req-1" {
		t.Errorf("expected the existing record id, got %s", id)
	}
	if types := producer.eventTypes(); len(types) != 0 {
		t.Errorf("extension must not publish an opened event, got %v", types)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestReplyClosesTargetedRecord(t *testing.T) {
	correlator, mock, producer, done := newCorrelatorMock(t, config.CorrelatorConfig{ReactionCloses: true})
	defer done()

	asked := time.Date(2025, 3, 12, 10, 0, 0, 0, time.UTC)
	responded := asked.Add(45 * time.Second)
	curator := testCurator()
	reply := &models.ChatEvent{
		Kind:            models.ChatEventReply,
		ServerID:        "srv-1",
		ChannelID:       "chan-1",
		AuthorID:        curator.PlatformUserID,
		MessageID:       "msg-200",
		TargetMessageID: "msg-100",
		TargetAuthorID:  "user-7",
		Timestamp:       responded,
	}

	mock.ExpectQuery(`UPDATE help_requests`).
		WithArgs(curator.ID, responded, "chan-1", curator.PlatformUserID, "user-7", "msg-100").
		WillReturnRows(sqlmock.NewRows(closedColumns()).
			AddRow("req-1", "srv-1", "chan-1", "user-7", asked, int64(45)))

	closed, err := correlator.CloseOnResponse(context.Background(), reply, curator)
	if err != nil {
		t.Fatalf("CloseOnResponse returned error: %v", err)
	}
	if len(closed) != 1 {
		t.Fatalf("expected one closed record, got %d", len(closed))
	}
	if closed[0].LatencySeconds != 45 {
		t.Errorf("expected latency 45s, got %d", closed[0].LatencySeconds)
	}

	types := producer.eventTypes()
	if len(types) != 1 || types[0] != kafka.EventHelpRequestAnswered {
		t.Errorf("expected one answered event, got %v", types)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestSecondResponderIsNoOp(t *testing.T) {
	correlator, mock, producer, done := newCorrelatorMock(t, config.CorrelatorConfig{ReactionCloses: true})
	defer done()

	curator := testCurator()
	reply := &models.ChatEvent{
		Kind:            models.ChatEventReply,
		ServerID:        "srv-1",
		ChannelID:       "chan-1",
		AuthorID:        curator.PlatformUserID,
		TargetMessageID: "msg-100",
		TargetAuthorID:  "user-7",
		Timestamp:       time.Now().UTC(),
	}

	// The record was already answered: the CAS matches zero rows and the
	// losing responder changes nothing.
	mock.ExpectQuery(`UPDATE help_requests`).
		WillReturnRows(sqlmock.NewRows(closedColumns()))

	closed, err := correlator.CloseOnResponse(context.Background(), reply, curator)
	if err != nil {
		t.Fatalf("CloseOnResponse returned error: %v", err)
	}
	if len(closed) != 0 {
		t.Fatalf("expected no closed records, got %d", len(closed))
	}
	if types := producer.eventTypes(); len(types) != 0 {
		t.Errorf("losing responder must not publish events, got %v", types)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPlainMessageClosesAllOpenInChannel(t *testing.T) {
	correlator, mock, producer, done := newCorrelatorMock(t, config.CorrelatorConfig{ReactionCloses: true})
	defer done()

	asked := time.Date(2025, 3, 12, 10, 0, 0, 0, time.UTC)
	responded := asked.Add(2 * time.Minute)
	curator := testCurator()
	message := &models.ChatEvent{
		Kind:      models.ChatEventMessage,
		ServerID:  "srv-1",
		ChannelID: "chan-1",
		AuthorID:  curator.PlatformUserID,
		MessageID: "msg-300",
		Content:   "иду, сейчас разберёмся",
		Timestamp: responded,
	}

	mock.ExpectQuery(`UPDATE help_requests`).
		WithArgs(curator.ID, responded, "chan-1", curator.PlatformUserID).
		WillReturnRows(sqlmock.NewRows(closedColumns()).
			AddRow("req-1", "srv-1", "chan-1", "user-7", asked, int64(120)).
			AddRow("req-2", "srv-1", "chan-1", "user-8", asked.Add(30*time.Second), int64(90)))

	closed, err := correlator.CloseOnResponse(context.Background(), message, curator)
	if err != nil {
		t.Fatalf("CloseOnResponse returned error: %v", err)
	}
	if len(closed) != 2 {
		t.Fatalf("expected two closed records, got %d", len(closed))
	}
	if types := producer.eventTypes(); len(types) != 2 {
		t.Errorf("expected two answered events, got %v", types)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestReactionCloseDisabledByConfig(t *testing.T) {
	correlator, mock, _, done := newCorrelatorMock(t, config.CorrelatorConfig{ReactionCloses: false})
	defer done()

	reaction := &models.ChatEvent{
		Kind:            models.ChatEventReaction,
		ServerID:        "srv-1",
		ChannelID:       "chan-1",
		AuthorID:        "curator-1",
		TargetMessageID: "msg-100",
		Emoji:           "👍",
		Timestamp:       time.Now().UTC(),
	}

	closed, err := correlator.CloseOnResponse(context.Background(), reaction, testCurator())
	if err != nil {
		t.Fatalf("CloseOnResponse returned error: %v", err)
	}
	if closed != nil {
		t.Fatalf("expected no close attempt with reactions disabled, got %v", closed)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("no query should have run: %v", err)
	}
}

func TestReactionClosesOnlyReactedMention(t *testing.T) {
	correlator, mock, _, done := newCorrelatorMock(t, config.CorrelatorConfig{ReactionCloses: true})
	defer done()

	asked := time.Date(2025, 3, 12, 10, 0, 0, 0, time.UTC)
	responded := asked.Add(10 * time.Second)
	curator := testCurator()
	reaction := &models.ChatEvent{
		Kind:            models.ChatEventReaction,
		ServerID:        "srv-1",
		ChannelID:       "chan-1",
		AuthorID:        curator.PlatformUserID,
		TargetMessageID: "msg-100",
		Emoji:           "👀",
		Timestamp:       responded,
	}

	mock.ExpectQuery(`UPDATE help_requests`).
		WithArgs(curator.ID, responded, "chan-1", curator.PlatformUserID, "msg-100").
		WillReturnRows(sqlmock.NewRows(closedColumns()).
			AddRow("req-1", "srv-1", "chan-1", "user-7", asked, int64(10)))

	closed, err := correlator.CloseOnResponse(context.Background(), reaction, curator)
	if err != nil {
		t.Fatalf("CloseOnResponse returned error: %v", err)
	}
	if len(closed) != 1 || closed[0].ID != "req-1" {
		t.Fatalf("expected req-1 closed, got %v", closed)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestSkewedClockClampsLatencyToZero(t *testing.T) {
	correlator, mock, _, done := newCorrelatorMock(t, config.CorrelatorConfig{ReactionCloses: true})
	defer done()

	asked := time.Date(2025, 3, 12, 10, 0, 0, 0, time.UTC)
	// Producer clock runs behind: response carries an earlier timestamp.
	responded := asked.Add(-5 * time.Second)
	curator := testCurator()
	message := &models.ChatEvent{
		Kind:      models.ChatEventMessage,
		ServerID:  "srv-1",
		ChannelID: "chan-1",
		AuthorID:  curator.PlatformUserID,
		Timestamp: responded,
	}

	mock.ExpectQuery(`UPDATE help_requests`).
		WillReturnRows(sqlmock.NewRows(closedColumns()).
			AddRow("req-1", "srv-1", "chan-1", "user-7", asked, int64(0)))

	closed, err := correlator.CloseOnResponse(context.Background(), message, curator)
	if err != nil {
		t.Fatalf("CloseOnResponse returned error: %v", err)
	}
	if len(closed) != 1 || closed[0].LatencySeconds != 0 {
		t.Fatalf("expected clamped zero latency, got %v", closed)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestTruncateExcerpt(t *testing.T) {
	long := make([]rune, 0, 1200)
	for i := 0; i < 1200; i++ {
		long = append(long, 'ж')
	}
	got := truncateExcerpt(string(long))
	if len([]rune(got)) != excerptLimit {
		t.Errorf("expected %d runes, got %d", excerptLimit, len([]rune(got)))
	}
	if short := truncateExcerpt("помощь"); short != "помощь" {
		t.Errorf("short content must pass through, got %q", short)
	}
}
