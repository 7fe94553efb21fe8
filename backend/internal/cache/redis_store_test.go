package cache

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"social-graph-service/backend/internal/badgerdb"
	"social-graph-service/backend/internal/repo"
	"social-graph-service/backend/internal/schema"
	"social-graph-service/backend/internal/txn"
)

var (
	records = schema.Table{Container: "likes", Name: "records", Physical: "likes_records", Kind: schema.KindObject}
	counts  = schema.Table{Container: "likes", Name: "count", Physical: "likes_count", Kind: schema.KindCount}
	feed    = schema.Table{Container: "likes", Name: "feed", Physical: "likes_feed", Kind: schema.KindFeed}
)

func setup(t *testing.T) (repo.Store, *badgerdb.Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	db, err := badgerdb.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	backing := badgerdb.NewStore(db, nil)
	return NewRedisStore(rdb, backing, nil), backing, mr
}

func TestGetRowCacheAside(t *testing.T) {
	s, backing, mr := setup(t)
	ctx := context.Background()

	// 不存在时写空值标记
	row, err := s.GetRow(ctx, records, "c1", "u1")
	require.NoError(t, err)
	assert.Nil(t, row)
	marker, err := mr.Get(rowKey(records, "c1", "u1"))
	require.NoError(t, err)
	assert.Equal(t, EmptyCacheMarker, marker)

	// 写入后缓存被删，下一次读回源
	require.True(t, s.Execute(ctx, txn.New(txn.Strong).Add(txn.Insert(records, "c1", "u1", []byte("liked")))).OK())
	assert.False(t, mr.Exists(rowKey(records, "c1", "u1")))

	row, err = s.GetRow(ctx, records, "c1", "u1")
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, []byte("liked"), row.Value)
	assert.Equal(t, int64(1), row.Version)
	assert.True(t, mr.Exists(rowKey(records, "c1", "u1")))
	assert.Greater(t, mr.TTL(rowKey(records, "c1", "u1")), BaseTTL-1)

	// 绕过缓存直接改底层，缓存命中时仍返回旧值
	require.True(t, backing.Execute(ctx, txn.New(txn.Strong).Add(txn.Replace(records, "c1", "u1", []byte("changed")))).OK())
	row, err = s.GetRow(ctx, records, "c1", "u1")
	require.NoError(t, err)
	assert.Equal(t, []byte("liked"), row.Value)

	// 基于旧版本的写会冲突，冲突后缓存同样被删
	res := s.Execute(ctx, txn.New(txn.Strong).Add(txn.ReplaceIfVersion(records, "c1", "u1", []byte("x"), 1)))
	assert.True(t, res.ConflictAt(0))
	row, err = s.GetRow(ctx, records, "c1", "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), row.Version)
}

func TestGetCountCacheAside(t *testing.T) {
	s, _, mr := setup(t)
	ctx := context.Background()

	n, err := s.GetCount(ctx, counts, "c1", "app|Liked")
	require.NoError(t, err)
	assert.Zero(t, n)

	require.True(t, s.Execute(ctx, txn.New(txn.Strong).Add(txn.InsertOrIncrement(counts, "c1", "app|Liked", 3))).OK())
	n, err = s.GetCount(ctx, counts, "c1", "app|Liked")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	cached, err := mr.Get(countKey(counts, "c1", "app|Liked"))
	require.NoError(t, err)
	assert.Equal(t, "3", cached)
}

func TestRedisDownFallsBackToStore(t *testing.T) {
	s, _, mr := setup(t)
	ctx := context.Background()
	require.True(t, s.Execute(ctx, txn.New(txn.Strong).Add(txn.InsertOrIncrement(counts, "c", "k", 1))).OK())

	mr.Close()
	n, err := s.GetCount(ctx, counts, "c", "k")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// 缓存失败不影响已提交的写
	res := s.Execute(ctx, txn.New(txn.Strong).Add(txn.Increment(counts, "c", "k", 1)))
	assert.True(t, res.OK())
}

func TestNonCachedReadsPassThrough(t *testing.T) {
	s, _, mr := setup(t)
	ctx := context.Background()
	require.True(t, s.Execute(ctx, txn.New(txn.Strong).Add(txn.Insert(feed, "c|app|Liked", "h1", nil))).OK())
	rows, err := s.ListRows(ctx, feed, "c|app|Liked", "", 0)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.Empty(t, mr.Keys())
}

func TestTouchedKeys(t *testing.T) {
	tx := txn.New(txn.Strong).Add(
		txn.Insert(records, "c", "u", nil),
		txn.Insert(feed, "c|s", "h", nil),
		txn.InsertOrIncrement(counts, "c", "s", 1),
	)
	assert.Equal(t, []string{
		"sg:row:{likes_records:c}:u",
		"sg:count:{likes_count:c}:s",
	}, touchedKeys(tx))
}
