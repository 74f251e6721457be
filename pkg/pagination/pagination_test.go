package pagination

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTripKeepsOrderID(t *testing.T) {
	at := time.Date(2026, 3, 2, 10, 5, 0, 123, time.UTC)
	encoded := EncodeCursor(Cursor{At: at, ID: "gid://shopify/Order/42"})

	decoded, err := ParseCursor(encoded)
	require.NoError(t, err)
	require.NotNil(t, decoded)
	assert.True(t, decoded.At.Equal(at))
	assert.Equal(t, "gid://shopify/Order/42", decoded.ID)
}

func TestParseCursorRejectsGarbage(t *testing.T) {
	c, err := ParseCursor("")
	require.NoError(t, err)
	assert.Nil(t, c)

	_, err = ParseCursor("%%%")
	assert.Error(t, err)

	_, err = ParseCursor(EncodeCursor(Cursor{At: time.Now()})[:4])
	assert.Error(t, err)
}

func TestNormalizeLimitAndTrim(t *testing.T) {
	assert.Equal(t, DefaultLimit, NormalizeLimit(0))
	assert.Equal(t, MaxLimit, NormalizeLimit(MaxLimit+1))
	assert.Equal(t, 3, LimitWithBuffer(2))

	rows, more := Trim([]int{1, 2, 3}, 2)
	assert.Equal(t, []int{1, 2}, rows)
	assert.True(t, more)

	rows, more = Trim([]int{1, 2}, 2)
	assert.Len(t, rows, 2)
	assert.False(t, more)
}

func TestParseCursorTagsMalformed(t *testing.T) {
	_, err := ParseCursor(EncodeCursor(Cursor{At: time.Now()}))
	assert.ErrorIs(t, err, errMalformedCursor, "cursor without an id")
}
