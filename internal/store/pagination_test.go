package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	in := Cursor{CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), ID: 42}

	out, err := DecodeCursor(EncodeCursor(in))
	require.NoError(t, err)
	assert.True(t, in.CreatedAt.Equal(out.CreatedAt))
	assert.Equal(t, in.ID, out.ID)
}

func TestDecodeEmptyCursorStartsAtNewest(t *testing.T) {
	c, err := DecodeCursor("")
	require.NoError(t, err)
	assert.True(t, c.CreatedAt.After(time.Now()))
}

func TestDecodeCursorRejectsGarbage(t *testing.T) {
	_, err := DecodeCursor("not base64!!")
	assert.ErrorIs(t, err, ErrInvalidCursor)

	_, err = DecodeCursor("bm90IGpzb24")
	assert.ErrorIs(t, err, ErrInvalidCursor)
}

func TestNormalizePage(t *testing.T) {
	page, size := normalizePage(0, 0)
	assert.Equal(t, 1, page)
	assert.Equal(t, 20, size)

	_, size = normalizePage(3, 1000)
	assert.Equal(t, 100, size)

	assert.Equal(t, 3, totalPages(41, 20))
	assert.Equal(t, 0, totalPages(0, 20))
}
