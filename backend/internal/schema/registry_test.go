package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistry_DefaultTables(t *testing.T) {
	r, err := NewRegistry(DefaultTables()...)
	require.NoError(t, err)

	likes, err := r.Table(ContainerLikes, TableRecords)
	require.NoError(t, err)
	assert.Equal(t, KindObject, likes.Kind)
	assert.Equal(t, "likes_records", likes.Physical)

	ranks := r.MustTable(ContainerPopular, TableRanks)
	assert.Equal(t, 1000, ranks.MaxFeedLength)
	assert.Len(t, r.Tables(), len(DefaultTables()))
}

func TestNewRegistry_Rejects(t *testing.T) {
	cases := map[string][]Table{
		"duplicate logical": {
			{Container: "a", Name: "b", Physical: "x", Kind: KindFeed},
			{Container: "a", Name: "b", Physical: "y", Kind: KindFeed},
		},
		"duplicate physical": {
			{Container: "a", Name: "b", Physical: "x", Kind: KindFeed},
			{Container: "a", Name: "c", Physical: "x", Kind: KindCount},
		},
		"unknown kind":    {{Container: "a", Name: "b", Physical: "x", Kind: "list"}},
		"empty physical":  {{Container: "a", Name: "b", Kind: KindFeed}},
		"negative length": {{Container: "a", Name: "b", Physical: "x", Kind: KindRank, MaxFeedLength: -1}},
	}
	for name, defs := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewRegistry(defs...)
			require.Error(t, err)
		})
	}
}

func TestRegistry_UnknownTable(t *testing.T) {
	r, err := NewRegistry()
	require.NoError(t, err)
	_, err = r.Table("nope", "nope")
	require.ErrorIs(t, err, ErrUnknownTable)
	assert.Panics(t, func() { r.MustTable("nope", "nope") })
}
