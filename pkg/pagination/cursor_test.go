package pagination

import (
	"encoding/base64"
	"testing"
	"time"
)

func strptr(s string) *string { return &s }

func token(t *testing.T, raw string) string {
	t.Helper()
	return base64.URLEncoding.EncodeToString([]byte(raw))
}

func TestCursorEncodeDecode(t *testing.T) {
	tests := []struct {
		name      string
		timestamp time.Time
		id        string
	}{
		{
			name:      "basic cursor",
			timestamp: time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
			id:        "abc123",
		},
		{
			name:      "cursor with uuid",
			timestamp: time.Date(2024, 12, 7, 0, 55, 0, 0, time.UTC),
			id:        "550e8400-e29b-41d4-a716-446655440000",
		},
		{
			name:      "id containing separator",
			timestamp: time.Now().Truncate(time.Millisecond),
			id:        "shard.0.record",
		},
		{
			name:      "zero time",
			timestamp: time.UnixMilli(0),
			id:        "first",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded := EncodeCursor(tt.timestamp, tt.id)

			cursor, err := DecodeCursor(encoded)
			if err != nil {
				t.Fatalf("DecodeCursor: %v", err)
			}
			if !cursor.Timestamp.Equal(tt.timestamp) {
				t.Fatalf("timestamp = %v, want %v", cursor.Timestamp, tt.timestamp)
			}
			if cursor.ID != tt.id {
				t.Fatalf("id = %q, want %q", cursor.ID, tt.id)
			}
		})
	}
}

func TestDecodeCursorErrors(t *testing.T) {
	t.Run("empty token is first page", func(t *testing.T) {
		cursor, err := DecodeCursor("")
		if err != nil || cursor != nil {
			t.Fatalf("empty token: got %v, %v; want nil, nil", cursor, err)
		}
	})

	tests := []struct {
		name  string
		token string
	}{
		{"not base64", "%%%not-base64%%%"},
		{"no separator", ""},
		{"missing id", ""},
		{"non-numeric timestamp", ""},
	}
	tests[1].token = token(t, "1700000000000")
	tests[2].token = token(t, "1700000000000.")
	tests[3].token = token(t, "yesterday.req-1")

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeCursor(tt.token); err == nil {
				t.Fatalf("expected error for token %q", tt.token)
			}
		})
	}
}

func TestClampLimit(t *testing.T) {
	tests := []struct {
		in   int
		want int
	}{
		{-5, DefaultLimit},
		{0, DefaultLimit},
		{1, 1},
		{DefaultLimit, DefaultLimit},
		{MaxLimit, MaxLimit},
		{MaxLimit + 1, MaxLimit},
	}
	for _, tt := range tests {
		if got := ClampLimit(tt.in); got != tt.want {
			t.Errorf("ClampLimit(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestParseDefaults(t *testing.T) {
	for _, req := range []*Request{nil, {}} {
		params, err := Parse(req)
		if err != nil {
			t.Fatalf("Parse(%+v): %v", req, err)
		}
		if params.Limit != DefaultLimit || params.Direction != Forward || params.Cursor != nil {
			t.Fatalf("Parse(%+v) = %+v, want defaults", req, params)
		}
	}
}

func TestParseForward(t *testing.T) {
	after := EncodeCursor(time.UnixMilli(1700000000000), "r1")
	params, err := Parse(&Request{First: 20, After: &after})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if params.Direction != Forward || params.Limit != 20 {
		t.Fatalf("params = %+v, want forward limit 20", params)
	}
	if params.Cursor == nil || params.Cursor.ID != "r1" {
		t.Fatalf("cursor = %+v, want id r1", params.Cursor)
	}
}

func TestParseBackwardTakesPrecedence(t *testing.T) {
	before := EncodeCursor(time.UnixMilli(1700000000000), "r9")
	params, err := Parse(&Request{First: 10, Last: 5, Before: &before})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if params.Direction != Backward || params.Limit != 5 {
		t.Fatalf("params = %+v, want backward limit 5", params)
	}
	if params.Cursor == nil || params.Cursor.ID != "r9" {
		t.Fatalf("cursor = %+v, want id r9", params.Cursor)
	}
}

func TestParseRejectsBadCursor(t *testing.T) {
	if _, err := Parse(&Request{First: 10, After: strptr("!!bad!!")}); err == nil {
		t.Fatal("expected error for bad after cursor")
	}
	if _, err := Parse(&Request{Last: 10, Before: strptr("!!bad!!")}); err == nil {
		t.Fatal("expected error for bad before cursor")
	}
}

func TestKeysetBuilderFirstPage(t *testing.T) {
	b := &KeysetBuilder{TimestampColumn: "mentioned_at", IDColumn: "id"}
	params := &Params{Limit: 50, Direction: Forward}

	cond, args := b.Condition(params, 1)
	if cond != "" || args != nil {
		t.Fatalf("first page should have no condition, got %q %v", cond, args)
	}
	if got := b.OrderBy(params); got != "ORDER BY mentioned_at DESC, id DESC" {
		t.Fatalf("OrderBy = %q", got)
	}
}

func TestKeysetBuilderWithCursor(t *testing.T) {
	b := &KeysetBuilder{TimestampColumn: "mentioned_at", IDColumn: "id"}
	ts := time.UnixMilli(1700000000000)

	forward := &Params{Limit: 50, Direction: Forward, Cursor: &Cursor{Timestamp: ts, ID: "r1"}}
	cond, args := b.Condition(forward, 3)
	if cond != "(mentioned_at, id) < ($3, $4)" {
		t.Fatalf("forward condition = %q", cond)
	}
	if len(args) != 2 || args[1] != "r1" {
		t.Fatalf("forward args = %v", args)
	}

	backward := &Params{Limit: 50, Direction: Backward, Cursor: &Cursor{Timestamp: ts, ID: "r1"}}
	cond, _ = b.Condition(backward, 1)
	if cond != "(mentioned_at, id) > ($1, $2)" {
		t.Fatalf("backward condition = %q", cond)
	}
	if got := b.OrderBy(backward); got != "ORDER BY mentioned_at ASC, id ASC" {
		t.Fatalf("backward OrderBy = %q", got)
	}
}

func TestBuildResponse(t *testing.T) {
	start := EncodeCursor(time.UnixMilli(2000), "a")
	end := EncodeCursor(time.UnixMilli(1000), "b")

	t.Run("forward overfull fetch has next page", func(t *testing.T) {
		resp := BuildResponse(11, 10, Forward, 42, start, end)
		if !resp.HasNextPage {
			t.Fatal("expected next page when fetch exceeded limit")
		}
		if resp.TotalCount != 42 {
			t.Fatalf("total = %d, want 42", resp.TotalCount)
		}
		if resp.StartCursor == nil || *resp.StartCursor != start {
			t.Fatalf("start cursor = %v, want %q", resp.StartCursor, start)
		}
	})

	t.Run("forward exact limit has no next page", func(t *testing.T) {
		resp := BuildResponse(10, 10, Forward, 42, start, end)
		if resp.HasNextPage {
			t.Fatal("expected no next page at exact limit")
		}
	})

	t.Run("backward overfull fetch has previous page", func(t *testing.T) {
		resp := BuildResponse(11, 10, Backward, 42, start, end)
		if !resp.HasPreviousPage {
			t.Fatal("expected previous page on overfull backward fetch")
		}
	})

	t.Run("empty result", func(t *testing.T) {
		resp := BuildResponse(0, 10, Forward, 0, "", "")
		if resp.HasNextPage || resp.HasPreviousPage || resp.StartCursor != nil || resp.EndCursor != nil {
			t.Fatalf("empty page flags = %+v", resp)
		}
	})
}
