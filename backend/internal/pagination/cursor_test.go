package pagination

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"social-graph-service/backend/internal/repo"
	"social-graph-service/backend/internal/txn"
)

func TestCursorRoundTrip(t *testing.T) {
	enc := ForScored(repo.ScoredRow{Key: "item-7", Score: 42.5}).Encode()
	c, err := Decode(enc)
	require.NoError(t, err)
	sr, err := c.Scored()
	require.NoError(t, err)
	assert.Equal(t, &repo.ScoredRow{Key: "item-7", Score: 42.5}, sr)

	c, err = Decode(ForRow("h1").Encode())
	require.NoError(t, err)
	assert.Equal(t, "h1", c.Key)
	_, err = c.Scored()
	assert.Error(t, err)
}

func TestDecodeEmptyAndGarbage(t *testing.T) {
	c, err := Decode("")
	require.NoError(t, err)
	sr, err := c.Scored()
	require.NoError(t, err)
	assert.Nil(t, sr)
	assert.Equal(t, "", Cursor{}.Encode())

	_, err = Decode("!!not-base64!!")
	assert.ErrorIs(t, err, txn.ErrInvalidArgument)
}

func TestLimit(t *testing.T) {
	assert.Equal(t, DefaultLimit, Limit(0))
	assert.Equal(t, 5, Limit(5))
	assert.Equal(t, MaxLimit, Limit(10_000))
}
