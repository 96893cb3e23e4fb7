package handlers

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"lookout/internal/config"
	"lookout/pkg/kafka"
)

const ratingCuratorID = "11111111-1111-1111-1111-111111111111"

func testRatingConfig() config.RatingConfig {
	return config.RatingConfig{
		Period:              config.PeriodWeek,
		RecomputeInterval:   time.Hour,
		Weights:             testWeights,
		FastResponseSeconds: 60,
		SlowResponseSeconds: 300,
		FastResponseBonus:   2,
		SlowResponsePenalty: -1,
		Tiers:               config.DefaultRatingTiers,
	}
}

func newRatingMock(t *testing.T, fake *fakeClickhouse) (*RatingEngine, sqlmock.Sqlmock, *recorderSink, *fakeProducer, func()) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	sink := &recorderSink{}
	producer := &fakeProducer{}
	engine := NewRatingEngine(db, newTestLedger(fake), testRatingConfig(), "admin@example.com",
		sink, producer, "tracker_events", testLogger(), nil)
	return engine, mock, sink, producer, func() { db.Close() }
}

func TestRunCycleComputesSnapshots(t *testing.T) {
	fake := &fakeClickhouse{queryRows: &fakeRows{rows: [][]interface{}{
		{ratingCuratorID, int64(10), int64(2), int64(3), int64(1), int64(43)},
	}}}
	engine, mock, sink, _, done := newRatingMock(t, fake)
	defer done()

	// Wednesday inside the 2025-03-10 ISO week.
	now := time.Date(2025, 3, 12, 15, 30, 0, 0, time.UTC)
	start := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 3, 17, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT id, name FROM servers`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow("srv-1", "Test Guild"))
	// One fast response (+2) and one slow one (-1): net modifier +1.
	mock.ExpectQuery(`SELECT responder_id, latency_seconds`).
		WithArgs("srv-1", start, end).
		WillReturnRows(sqlmock.NewRows([]string{"responder_id", "latency_seconds"}).
			AddRow(ratingCuratorID, int64(45)).
			AddRow(ratingCuratorID, int64(400)))
	mock.ExpectQuery(`SELECT id, display_name FROM curators`).
		WithArgs("srv-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "display_name"}).
			AddRow(ratingCuratorID, "Вика"))
	// 43 activity points + 1 modifier = 44, tier Хорошо. The snapshot is
	// replaced wholesale on conflict.
	mock.ExpectExec(`INSERT INTO rating_snapshots[\s\S]*ON CONFLICT \(curator_id, period_start\) DO UPDATE`).
		WithArgs(ratingCuratorID, "srv-1", start, end,
			int64(10), int64(2), int64(3), int64(1), int64(43),
			int64(2), 222.5, int64(1), int64(44), "Хорошо", sqlmock.AnyArg(), now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	engine.RunCycle(context.Background(), now)

	if len(sink.digests) != 0 {
		t.Errorf("first cycle must not send digests, got %d", len(sink.digests))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestRunCycleFloorsScoreAtZero(t *testing.T) {
	fake := &fakeClickhouse{}
	engine, mock, _, _, done := newRatingMock(t, fake)
	defer done()

	now := time.Date(2025, 3, 12, 15, 30, 0, 0, time.UTC)
	start := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT id, name FROM servers`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow("srv-1", "Test Guild"))
	// No ledger activity, one slow response: 0 - 1 floors at 0.
	mock.ExpectQuery(`SELECT responder_id, latency_seconds`).
		WillReturnRows(sqlmock.NewRows([]string{"responder_id", "latency_seconds"}).
			AddRow(ratingCuratorID, int64(400)))
	mock.ExpectQuery(`SELECT id, display_name FROM curators`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "display_name"}).
			AddRow(ratingCuratorID, "Вика"))
	mock.ExpectExec(`INSERT INTO rating_snapshots`).
		WithArgs(ratingCuratorID, "srv-1", start, sqlmock.AnyArg(),
			int64(0), int64(0), int64(0), int64(0), int64(0),
			int64(1), 400.0, int64(-1), int64(0), "Ужасно", sqlmock.AnyArg(), now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	engine.RunCycle(context.Background(), now)

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestRunCycleFinalizesPreviousPeriodOnRollover(t *testing.T) {
	fake := &fakeClickhouse{}
	engine, mock, sink, producer, done := newRatingMock(t, fake)
	defer done()

	week1 := time.Date(2025, 3, 12, 15, 0, 0, 0, time.UTC)
	week2 := week1.AddDate(0, 0, 7)
	prevStart := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	prevEnd := time.Date(2025, 3, 17, 0, 0, 0, 0, time.UTC)

	// Cycle 1 primes the running period; no servers keeps it a no-op.
	mock.ExpectQuery(`SELECT id, name FROM servers`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}))
	engine.RunCycle(context.Background(), week1)

	// Cycle 2 lands in the next ISO week: the closed week is recomputed one
	// final time and its standings go out as a digest.
	mock.ExpectQuery(`SELECT id, name FROM servers`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow("srv-1", "Test Guild"))
	mock.ExpectQuery(`SELECT responder_id, latency_seconds`).
		WithArgs("srv-1", prevStart, prevEnd).
		WillReturnRows(sqlmock.NewRows([]string{"responder_id", "latency_seconds"}))
	mock.ExpectQuery(`SELECT id, display_name FROM curators`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "display_name"}).
			AddRow(ratingCuratorID, "Вика"))
	mock.ExpectExec(`INSERT INTO rating_snapshots`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT id, name FROM servers`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow("srv-1", "Test Guild"))
	avg := 222.5
	mock.ExpectQuery(`SELECT c.display_name, rs.final_score`).
		WithArgs("srv-1", prevStart).
		WillReturnRows(sqlmock.NewRows([]string{"display_name", "final_score", "tier_label", "tier_color", "response_count", "avg_latency_seconds", "activity_points"}).
			AddRow("Вика", int64(44), "Хорошо", "#2ecc71", int64(2), avg, int64(43)))
	// Current week recompute after finalization.
	mock.ExpectQuery(`SELECT id, name FROM servers`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}))

	engine.RunCycle(context.Background(), week2)

	if len(sink.digests) != 1 {
		t.Fatalf("expected one digest after rollover, got %d", len(sink.digests))
	}
	digest := sink.digests[0]
	if !digest.PeriodStart.Equal(prevStart) || !digest.PeriodEnd.Equal(prevEnd) {
		t.Errorf("digest covers [%v, %v), want [%v, %v)", digest.PeriodStart, digest.PeriodEnd, prevStart, prevEnd)
	}
	if digest.ServerName != "Test Guild" || digest.RecipientEmail != "admin@example.com" {
		t.Errorf("digest routing wrong: %+v", digest)
	}
	if len(digest.Entries) != 1 || digest.Entries[0].CuratorName != "Вика" {
		t.Fatalf("unexpected digest entries: %+v", digest.Entries)
	}
	if digest.TotalPoints != 43 || digest.TotalResponses != 2 {
		t.Errorf("digest totals = (%d, %d), want (43, 2)", digest.TotalPoints, digest.TotalResponses)
	}

	finalized := false
	for _, eventType := range producer.eventTypes() {
		if eventType == kafka.EventRatingFinalized {
			finalized = true
		}
	}
	if !finalized {
		t.Errorf("expected rating.finalized event, got %v", producer.eventTypes())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestRunCycleSameWeekDoesNotFinalize(t *testing.T) {
	fake := &fakeClickhouse{}
	engine, mock, sink, _, done := newRatingMock(t, fake)
	defer done()

	wednesday := time.Date(2025, 3, 12, 15, 0, 0, 0, time.UTC)
	friday := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT id, name FROM servers`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}))
	engine.RunCycle(context.Background(), wednesday)

	mock.ExpectQuery(`SELECT id, name FROM servers`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}))
	engine.RunCycle(context.Background(), friday)

	if len(sink.digests) != 0 {
		t.Errorf("same-period cycles must not send digests, got %d", len(sink.digests))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
