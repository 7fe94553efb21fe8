package ranking

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"social-graph-service/backend/internal/badgerdb"
	"social-graph-service/backend/internal/repo"
	"social-graph-service/backend/internal/schema"
	"social-graph-service/backend/internal/txn"
)

func newFeed(capacity int) *Feed {
	return &Feed{
		Name:        "popular",
		Ranks:       schema.Table{Container: "popular", Name: "ranks", Physical: "p_ranks", Kind: schema.KindRank, MaxFeedLength: capacity},
		Expirations: schema.Table{Container: "popular", Name: "expirations", Physical: "p_exp", Kind: schema.KindRank},
	}
}

func newStore(t *testing.T) *badgerdb.Store {
	t.Helper()
	db, err := badgerdb.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return badgerdb.NewStore(db, nil)
}

func mustExec(t *testing.T, s *badgerdb.Store, tx *txn.Transaction, err error) {
	t.Helper()
	require.NoError(t, err)
	res := s.Execute(context.Background(), tx)
	require.True(t, res.OK(), res.String())
}

func TestPruneExpired(t *testing.T) {
	s := newStore(t)
	f := newFeed(0)
	ctx := context.Background()
	expires := time.Unix(1_700_000_000, 0)

	tx, err := f.Upsert("app", "daily", "X", 50, expires)
	mustExec(t, s, tx, err)

	items, err := f.PruneExpired(ctx, s, "app", "daily", expires.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, []string{"X"}, items)

	items, err = f.PruneExpired(ctx, s, "app", "daily", expires.Add(-time.Second))
	require.NoError(t, err)
	assert.Empty(t, items)

	// 严格小于
	items, err = f.PruneExpired(ctx, s, "app", "daily", expires)
	require.NoError(t, err)
	assert.Empty(t, items)

	tx, err = f.Remove("app", "daily", "X")
	mustExec(t, s, tx, err)
	items, err = f.PruneExpired(ctx, s, "app", "daily", expires.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, items)
	n, err := f.Size(ctx, s, "app", "daily")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPruneExpiredSubSecond(t *testing.T) {
	s := newStore(t)
	f := newFeed(0)
	ctx := context.Background()
	expires := time.Unix(1_700_000_000, 250*int64(time.Millisecond))

	tx, err := f.Upsert("app", "daily", "X", 50, expires)
	mustExec(t, s, tx, err)
	tx, err = f.Upsert("app", "daily", "Y", 40, expires.Add(500*time.Millisecond))
	mustExec(t, s, tx, err)

	items, err := f.PruneExpired(ctx, s, "app", "daily", expires.Add(-time.Millisecond))
	require.NoError(t, err)
	assert.Empty(t, items)

	items, err = f.PruneExpired(ctx, s, "app", "daily", expires)
	require.NoError(t, err)
	assert.Empty(t, items)

	items, err = f.PruneExpired(ctx, s, "app", "daily", expires.Add(time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, []string{"X"}, items)

	items, err = f.PruneExpired(ctx, s, "app", "daily", expires.Add(900*time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, []string{"X", "Y"}, items)
}

func TestAllTimeSkipsExpirationIndex(t *testing.T) {
	f := newFeed(0)
	tx, err := f.Upsert("app", string(AllTime), "X", 1, AllTime.ExpiresAt(time.Now()))
	require.NoError(t, err)
	require.Equal(t, 1, tx.Len())
	assert.Equal(t, f.Ranks, tx.Ops()[0].Table)

	tx, err = f.Upsert("app", string(Daily), "X", 1, Daily.ExpiresAt(time.Now()))
	require.NoError(t, err)
	assert.Equal(t, 2, tx.Len())
}

func TestQueryPagesDescending(t *testing.T) {
	s := newStore(t)
	f := newFeed(0)
	ctx := context.Background()
	for item, score := range map[string]float64{"a": 10, "b": 30, "c": 20, "d": 40, "e": 5} {
		tx, err := f.Upsert("app", "weekly", item, score, time.Time{})
		mustExec(t, s, tx, err)
	}

	page, next, err := f.Query(ctx, s, "app", "weekly", "", 2)
	require.NoError(t, err)
	assert.Equal(t, []repo.ScoredRow{{Key: "d", Score: 40}, {Key: "b", Score: 30}}, page)
	require.NotEmpty(t, next)

	page, next, err = f.Query(ctx, s, "app", "weekly", next, 2)
	require.NoError(t, err)
	assert.Equal(t, []repo.ScoredRow{{Key: "c", Score: 20}, {Key: "a", Score: 10}}, page)

	page, next, err = f.Query(ctx, s, "app", "weekly", next, 2)
	require.NoError(t, err)
	assert.Equal(t, []repo.ScoredRow{{Key: "e", Score: 5}}, page)
	assert.Empty(t, next)

	// 空游标 + limit 1 是淘汰探针
	page, _, err = f.Query(ctx, s, "app", "weekly", "", 1)
	require.NoError(t, err)
	assert.Equal(t, []repo.ScoredRow{{Key: "e", Score: 5}}, page)

	page, _, err = f.Query(ctx, s, "app", "monthly", "", 1)
	require.NoError(t, err)
	assert.Empty(t, page)
}

func TestBoundedEvictsLowest(t *testing.T) {
	s := newStore(t)
	f := newFeed(2)
	ctx := context.Background()
	exp := time.Now().Add(time.Hour)

	for item, score := range map[string]float64{"a": 10, "b": 20} {
		tx, ok, err := f.Bounded(ctx, s, "app", "daily", item, score, exp)
		require.True(t, ok)
		mustExec(t, s, tx, err)
	}

	tx, ok, err := f.Bounded(ctx, s, "app", "daily", "low", 5, exp)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, tx)

	// 已在榜内的条目只是改分
	tx, ok, err = f.Bounded(ctx, s, "app", "daily", "a", 15, exp)
	require.True(t, ok)
	mustExec(t, s, tx, err)

	tx, ok, err = f.Bounded(ctx, s, "app", "daily", "c", 30, exp)
	require.True(t, ok)
	mustExec(t, s, tx, err)

	page, _, err := f.Query(ctx, s, "app", "daily", "", 10)
	require.NoError(t, err)
	assert.Equal(t, []repo.ScoredRow{{Key: "c", Score: 30}, {Key: "b", Score: 20}}, page)

	items, err := f.PruneExpired(ctx, s, "app", "daily", exp.Add(time.Hour))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"b", "c"}, items)
}

func TestWindow(t *testing.T) {
	w, err := ParseWindow("Weekly")
	require.NoError(t, err)
	assert.Equal(t, Weekly, w)
	now := time.Unix(0, 0)
	assert.Equal(t, now.Add(7*24*time.Hour), w.ExpiresAt(now))
	assert.True(t, AllTime.ExpiresAt(now).IsZero())

	_, err = ParseWindow("hourly")
	assert.ErrorIs(t, err, txn.ErrInvalidArgument)
}

func TestFeedValidation(t *testing.T) {
	f := newFeed(0)
	_, err := f.Upsert("", "daily", "x", 1, time.Time{})
	assert.ErrorIs(t, err, txn.ErrInvalidArgument)
	_, err = f.Remove("app", "daily", "")
	assert.ErrorIs(t, err, txn.ErrInvalidArgument)
	_, _, err = f.Query(context.Background(), nil, "app", "", "", 10)
	assert.ErrorIs(t, err, txn.ErrInvalidArgument)
}
