// Package pagination implements keyset (cursor) pagination for the
// projection API's list endpoints. A cursor pins a position by
// (timestamp, id), so pages stay stable while new tracking records are
// inserted ahead of the reader.
package pagination

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// Request carries the raw pagination inputs from a list query.
// First/After page forward (newest to oldest); Last/Before page backward.
type Request struct {
	First  int32
	After  *string
	Last   int32
	Before *string
}

// Response describes the page boundaries of a list result.
type Response struct {
	HasNextPage     bool    `json:"has_next_page"`
	HasPreviousPage bool    `json:"has_previous_page"`
	StartCursor     *string `json:"start_cursor,omitempty"`
	EndCursor       *string `json:"end_cursor,omitempty"`
	TotalCount      int32   `json:"total_count"`
}

// Cursor is a stable position: the sort timestamp plus the row id as a
// tiebreaker for rows sharing a timestamp.
type Cursor struct {
	Timestamp time.Time
	ID        string
}

// Encode serializes the cursor into the opaque token handed to clients.
func (c Cursor) Encode() string {
	raw := fmt.Sprintf("%d.%s", c.Timestamp.UnixMilli(), c.ID)
	return base64.URLEncoding.EncodeToString([]byte(raw))
}

// EncodeCursor builds and encodes a cursor in one step.
func EncodeCursor(timestamp time.Time, id string) string {
	return Cursor{Timestamp: timestamp, ID: id}.Encode()
}

// DecodeCursor parses a client-supplied token. An empty token decodes to
// a nil cursor (first page); anything unparseable is an error the caller
// maps to a 400.
func DecodeCursor(encoded string) (*Cursor, error) {
	if encoded == "" {
		return nil, nil
	}

	data, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor encoding: %w", err)
	}

	millis, id, ok := strings.Cut(string(data), ".")
	if !ok || id == "" {
		return nil, fmt.Errorf("invalid cursor format")
	}
	ms, err := strconv.ParseInt(millis, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor timestamp: %w", err)
	}

	return &Cursor{Timestamp: time.UnixMilli(ms), ID: id}, nil
}

// ClampLimit bounds a requested page size to [1, MaxLimit], defaulting
// non-positive values.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	}
	return limit
}

// Direction indicates which way the client is paging.
type Direction int

const (
	// Forward pages newest-first toward older rows (first/after).
	Forward Direction = iota
	// Backward pages toward newer rows (last/before); the query runs
	// ascending and the caller reverses the page.
	Backward
)

// Params is the parsed form of a Request.
type Params struct {
	Limit     int
	Cursor    *Cursor
	Direction Direction
}

// Parse resolves a Request into Params. When both directions are given,
// backward wins.
func Parse(req *Request) (*Params, error) {
	params := &Params{Limit: DefaultLimit, Direction: Forward}
	if req == nil {
		return params, nil
	}

	if req.Last > 0 {
		params.Direction = Backward
		params.Limit = ClampLimit(int(req.Last))
		if req.Before != nil && *req.Before != "" {
			cursor, err := DecodeCursor(*req.Before)
			if err != nil {
				return nil, fmt.Errorf("invalid before cursor: %w", err)
			}
			params.Cursor = cursor
		}
		return params, nil
	}

	if req.First > 0 {
		params.Limit = ClampLimit(int(req.First))
	}
	if req.After != nil && *req.After != "" {
		cursor, err := DecodeCursor(*req.After)
		if err != nil {
			return nil, fmt.Errorf("invalid after cursor: %w", err)
		}
		params.Cursor = cursor
	}
	return params, nil
}

// KeysetBuilder emits the WHERE fragment and ORDER BY for keyset queries
// over (timestamp, id). Placeholders are Postgres-style $N.
type KeysetBuilder struct {
	TimestampColumn string
	IDColumn        string
}

// Condition returns the cursor predicate, or ("", nil) on the first page.
func (b *KeysetBuilder) Condition(params *Params, startArgIdx int) (string, []interface{}) {
	if params.Cursor == nil {
		return "", nil
	}

	op := "<" // forward: rows older than the cursor
	if params.Direction == Backward {
		op = ">"
	}
	return fmt.Sprintf("(%s, %s) %s ($%d, $%d)",
			b.TimestampColumn, b.IDColumn, op, startArgIdx, startArgIdx+1),
		[]interface{}{params.Cursor.Timestamp, params.Cursor.ID}
}

// OrderBy returns the matching sort clause; backward queries run ASC and
// are reversed by the caller after trimming.
func (b *KeysetBuilder) OrderBy(params *Params) string {
	dir := "DESC"
	if params.Direction == Backward {
		dir = "ASC"
	}
	return fmt.Sprintf("ORDER BY %s %s, %s %s", b.TimestampColumn, dir, b.IDColumn, dir)
}

// BuildResponse derives the page flags. resultsLen is the raw fetch size
// (limit+1 probing for another page) before trimming.
func BuildResponse(resultsLen, limit int, direction Direction, totalCount int32, startCursor, endCursor string) *Response {
	resp := &Response{TotalCount: totalCount}
	if startCursor != "" {
		resp.StartCursor = &startCursor
	}
	if endCursor != "" {
		resp.EndCursor = &endCursor
	}

	hasMore := resultsLen > limit
	onPage := startCursor != "" && endCursor != ""
	if direction == Forward {
		resp.HasNextPage = hasMore
		resp.HasPreviousPage = onPage
	} else {
		resp.HasPreviousPage = hasMore
		resp.HasNextPage = onPage
	}
	return resp
}
