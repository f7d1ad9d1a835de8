package pagination

import (
	"encoding/base64"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeCursor(t *testing.T) {
	ts := time.Date(2026, 5, 1, 12, 30, 0, 123456000, time.UTC)

	encoded := Cursor{LastID: "3f1c9a7e-41d2-4b8e-9e55-0c1f2a3b4c5d", Timestamp: ts}.Encode()
	require.NotEmpty(t, encoded)
	assert.Equal(t, url.QueryEscape(encoded), encoded, "cursor must be safe in a query string")

	c, err := DecodeCursor(encoded)
	require.NoError(t, err)
	assert.Equal(t, "3f1c9a7e-41d2-4b8e-9e55-0c1f2a3b4c5d", c.LastID)
	assert.True(t, c.Timestamp.Equal(ts))
}

func TestCursorEncode_EmptyID(t *testing.T) {
	assert.Empty(t, Cursor{Timestamp: time.Now()}.Encode())
}

func TestDecodeCursor(t *testing.T) {
	t.Run("empty cursor is the first page", func(t *testing.T) {
		c, err := DecodeCursor("")
		assert.NoError(t, err)
		assert.Nil(t, c)
	})

	tests := []struct {
		name   string
		cursor string
	}{
		{"not base64", "!!!"},
		{"missing separator", base64.RawURLEncoding.EncodeToString([]byte("abc"))},
		{"missing id", base64.RawURLEncoding.EncodeToString([]byte("|2026-05-01T12:30:00Z"))},
		{"bad timestamp", base64.RawURLEncoding.EncodeToString([]byte("abc|yesterday"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeCursor(tt.cursor)
			assert.ErrorIs(t, err, ErrInvalidCursor)
		})
	}
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, 20, ClampLimit(0, 20, 100))
	assert.Equal(t, 20, ClampLimit(-3, 20, 100))
	assert.Equal(t, 7, ClampLimit(7, 20, 100))
	assert.Equal(t, 100, ClampLimit(500, 20, 100))
}

func TestNewPage(t *testing.T) {
	type row struct {
		id string
		at time.Time
	}
	now := time.Now().UTC()
	position := func(r row) Cursor { return Cursor{LastID: r.id, Timestamp: r.at} }
	rows := []row{{"a", now}, {"b", now.Add(-time.Second)}, {"c", now.Add(-2 * time.Second)}}

	t.Run("last page", func(t *testing.T) {
		page := NewPage(rows, 3, position)
		assert.Len(t, page.Items, 3)
		assert.False(t, page.HasMore)
		assert.Empty(t, page.Cursor)
	})

	t.Run("look-ahead row is dropped", func(t *testing.T) {
		page := NewPage(rows, 2, position)
		require.Len(t, page.Items, 2)
		assert.True(t, page.HasMore)

		c, err := DecodeCursor(page.Cursor)
		require.NoError(t, err)
		assert.Equal(t, "b", c.LastID)
		assert.True(t, c.Timestamp.Equal(rows[1].at))
	})

	t.Run("empty", func(t *testing.T) {
		page := NewPage([]row{}, 2, position)
		assert.Empty(t, page.Items)
		assert.False(t, page.HasMore)
	})
}
