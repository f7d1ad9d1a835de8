// Package pagination implements keyset paging over (timestamp, id) ordered
// rows with opaque, query-string safe cursors.
package pagination

import (
	"encoding/base64"
	"errors"
	"strings"
	"time"
)

// Cursor is the position after the last row of a page
type Cursor struct {
	LastID    string
	Timestamp time.Time
}

// PageResult is one page of items plus the cursor of the next page
type PageResult[T any] struct {
	Items   []T    `json:"items"`
	Cursor  string `json:"cursor,omitempty"`
	HasMore bool   `json:"has_more"`
}

var ErrInvalidCursor = errors.New("invalid cursor format")

// Encode returns the opaque form of c
func (c Cursor) Encode() string {
	if c.LastID == "" {
		return ""
	}
	raw := c.LastID + "|" + c.Timestamp.UTC().Format(time.RFC3339Nano)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor parses an opaque cursor. The empty cursor is the first page
// and decodes to nil.
func DecodeCursor(cursor string) (*Cursor, error) {
	if cursor == "" {
		return nil, nil
	}

	decoded, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return nil, ErrInvalidCursor
	}

	id, ts, ok := strings.Cut(string(decoded), "|")
	if !ok || id == "" {
		return nil, ErrInvalidCursor
	}

	timestamp, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return nil, ErrInvalidCursor
	}

	return &Cursor{LastID: id, Timestamp: timestamp}, nil
}

// ClampLimit returns fallback for a non-positive limit and caps it at maxLimit
func ClampLimit(limit, fallback, maxLimit int) int {
	if limit <= 0 {
		return fallback
	}
	return min(limit, maxLimit)
}

// NewPage builds a page from rows fetched with limit+1. The extra row only
// signals that another page exists and is dropped.
func NewPage[T any](rows []T, limit int, position func(T) Cursor) *PageResult[T] {
	page := &PageResult[T]{Items: rows}
	if len(rows) > limit {
		page.Items = rows[:limit]
		page.HasMore = true
		page.Cursor = position(page.Items[limit-1]).Encode()
	}
	return page
}
