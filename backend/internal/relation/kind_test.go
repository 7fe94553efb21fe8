package relation

import (
	"context"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"social-graph-service/backend/internal/badgerdb"
	"social-graph-service/backend/internal/schema"
	"social-graph-service/backend/internal/txn"
)

type likeStatus string

const (
	unliked likeStatus = "Unliked"
	liked   likeStatus = "Liked"
)

type followStatus string

const (
	fNone    followStatus = "None"
	fPending followStatus = "Pending"
	fFollow  followStatus = "Follow"
	fBlocked followStatus = "Blocked"
)

func table(name string, kind schema.Kind) schema.Table {
	return schema.Table{Container: "test", Name: name, Physical: "test_" + name, Kind: kind}
}

func likeKind() *Kind[likeStatus] {
	return &Kind[likeStatus]{
		Name:    "like",
		None:    unliked,
		Records: table("likes", schema.KindObject),
		Namespaces: []Namespace[likeStatus]{{
			Name:   "app",
			Feeds:  table("likesfeed", schema.KindFeed),
			Counts: table("likescount", schema.KindCount),
			Shard:  ScopedShard[likeStatus],
		}},
		Statuses: []likeStatus{unliked, liked},
	}
}

func followKind() *Kind[followStatus] {
	return &Kind[followStatus]{
		Name:    "follow",
		None:    fNone,
		Records: table("follows", schema.KindObject),
		Namespaces: []Namespace[followStatus]{
			{Name: "app", Feeds: table("ffeed", schema.KindFeed), Counts: table("fcount", schema.KindCount), Shard: ScopedShard[followStatus]},
			{Name: "global", Feeds: table("gfeed", schema.KindFeed), Counts: table("gcount", schema.KindCount), Shard: GlobalShard[followStatus]},
		},
	}
}

func newStore(t *testing.T) *badgerdb.Store {
	t.Helper()
	db, err := badgerdb.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return badgerdb.NewStore(db, nil)
}

// transition 读取-迁移-执行一次，模拟调用方
func transition[S Status](t *testing.T, s *badgerdb.Store, k *Kind[S], c Change[S]) {
	t.Helper()
	ctx := context.Background()
	prev, err := k.Read(ctx, s, c.Scope, c.Subject, c.Object)
	require.NoError(t, err)
	tx, err := k.Transition(c, prev)
	require.NoError(t, err)
	res := s.Execute(ctx, tx)
	require.True(t, res.OK(), res.String())
}

func handles(t *testing.T, items []Item) []string {
	t.Helper()
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Handle
	}
	return out
}

func TestLikeToggle(t *testing.T) {
	s := newStore(t)
	k := likeKind()
	ctx := context.Background()
	base := Change[likeStatus]{Scope: "app1", Subject: "content1", Object: "user1", Actor: "user1"}

	step := func(handle string, st likeStatus, wantFeed []string, wantCount int64) {
		c := base
		c.Handle, c.Status = handle, st
		transition(t, s, k, c)
		items, _, err := k.List(ctx, s, "app1", "content1", liked, "", 0)
		require.NoError(t, err)
		assert.Equal(t, wantFeed, handles(t, items))
		n, err := k.Count(ctx, s, "app1", "content1", liked)
		require.NoError(t, err)
		assert.Equal(t, wantCount, n)
	}

	step("L1", liked, []string{"L1"}, 1)
	step("L1", unliked, []string{}, 0)
	step("L2", liked, []string{"L2"}, 1)

	rec, err := k.Read(ctx, s, "app1", "content1", "user1")
	require.NoError(t, err)
	assert.Equal(t, "L2", rec.Handle)
	assert.Equal(t, liked, rec.Status)
	assert.Equal(t, int64(3), rec.Version)

	items, _, err := k.List(ctx, s, "app1", "content1", liked, "", 0)
	require.NoError(t, err)
	assert.Equal(t, Entry{Object: "user1", Actor: "user1"}, items[0].Entry)
}

func TestFollowLifecycle(t *testing.T) {
	s := newStore(t)
	k := followKind()
	ctx := context.Background()
	base := Change[followStatus]{Scope: "app1", Subject: "alice", Object: "bob"}

	for _, step := range []struct {
		handle string
		status followStatus
	}{{"H1", fPending}, {"H2", fFollow}, {"H3", fBlocked}} {
		c := base
		c.Handle, c.Status = step.handle, step.status
		transition(t, s, k, c)
	}

	for _, ns := range k.Namespaces {
		for st, want := range map[followStatus]int64{fPending: 0, fFollow: 0, fBlocked: 1} {
			n, err := ns.Count(ctx, s, "app1", "alice", st)
			require.NoError(t, err)
			assert.Equal(t, want, n, "%s %s", ns.Name, st)

			items, _, err := ns.List(ctx, s, "app1", "alice", st, "", 0)
			require.NoError(t, err)
			if st == fBlocked {
				assert.Equal(t, []string{"H3"}, handles(t, items))
			} else {
				assert.Empty(t, items)
			}
		}
	}
}

func TestGlobalNamespaceAggregatesScopes(t *testing.T) {
	s := newStore(t)
	k := followKind()
	ctx := context.Background()
	transition(t, s, k, Change[followStatus]{Scope: "app1", Subject: "alice", Object: "bob", Handle: "h1", Status: fFollow})
	transition(t, s, k, Change[followStatus]{Scope: "app2", Subject: "alice", Object: "carol", Handle: "h2", Status: fFollow})

	local, err := k.Count(ctx, s, "app1", "alice", fFollow)
	require.NoError(t, err)
	assert.Equal(t, int64(1), local)
	global, err := k.Namespaces[1].Count(ctx, s, "", "alice", fFollow)
	require.NoError(t, err)
	assert.Equal(t, int64(2), global)
}

func TestSameStatusReplayIsNoop(t *testing.T) {
	k := likeKind()
	prev := &Record[likeStatus]{Handle: "L1", Status: liked, Version: 4}
	tx, err := k.Transition(Change[likeStatus]{Subject: "c", Object: "u", Handle: "L1", Status: liked}, prev)
	require.NoError(t, err)
	ops := tx.Ops()
	require.Len(t, ops, 1)
	assert.Equal(t, txn.OpReplace, ops[0].Kind)
	assert.Equal(t, int64(4), ops[0].IfVersion)
}

func TestSameStatusNewHandleMovesEntry(t *testing.T) {
	s := newStore(t)
	k := likeKind()
	ctx := context.Background()
	c := Change[likeStatus]{Subject: "c", Object: "u", Handle: "L1", Status: liked}
	transition(t, s, k, c)
	c.Handle = "L9"
	transition(t, s, k, c)

	items, _, err := k.List(ctx, s, "", "c", liked, "", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"L9"}, handles(t, items))
	n, err := k.Count(ctx, s, "", "c", liked)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestStalePreviousConflicts(t *testing.T) {
	s := newStore(t)
	k := likeKind()
	ctx := context.Background()
	c := Change[likeStatus]{Subject: "c", Object: "u", Handle: "L1", Status: liked}
	transition(t, s, k, c)

	stale, err := k.Read(ctx, s, "", "c", "u")
	require.NoError(t, err)

	c.Status = unliked
	transition(t, s, k, c)

	// 基于过期记录再取消一次，会重复扣减，必须被拒绝
	tx, err := k.Transition(c, stale)
	require.NoError(t, err)
	res := s.Execute(ctx, tx)
	assert.True(t, res.ConflictAt(0))
	n, err := k.Count(ctx, s, "", "c", liked)
	require.NoError(t, err)
	assert.Zero(t, n)

	// 并发首次创建以 Insert 冲突暴露
	tx, err = k.Transition(Change[likeStatus]{Subject: "c", Object: "u", Handle: "L2", Status: liked}, nil)
	require.NoError(t, err)
	assert.True(t, s.Execute(ctx, tx).ConflictAt(0))
}

func TestTransitionRejectsMissingKeys(t *testing.T) {
	k := likeKind()
	for _, c := range []Change[likeStatus]{
		{Object: "u", Handle: "h", Status: liked},
		{Subject: "c", Handle: "h", Status: liked},
		{Subject: "c", Object: "u", Status: liked},
		{Subject: "c", Object: "u", Handle: "h", Status: "Loved"},
	} {
		tx, err := k.Transition(c, nil)
		assert.Nil(t, tx)
		assert.ErrorIs(t, err, txn.ErrInvalidArgument)
	}
	_, err := k.Read(context.Background(), nil, "", "", "u")
	assert.ErrorIs(t, err, txn.ErrInvalidArgument)
}

// 任意迁移序列之后，每个状态分片的计数都等于 feed 条目数
func TestCountMatchesFeedForRandomSequences(t *testing.T) {
	s := newStore(t)
	k := followKind()
	ctx := context.Background()
	rng := rand.New(rand.NewSource(7))
	statuses := []followStatus{fNone, fPending, fFollow, fBlocked}
	objects := []string{"u1", "u2", "u3", "u4", "u5"}

	final := map[string]followStatus{}
	for i := 0; i < 200; i++ {
		obj := objects[rng.Intn(len(objects))]
		st := statuses[rng.Intn(len(statuses))]
		handle := fmt.Sprintf("h%03d", i)
		if rng.Intn(3) == 0 {
			// 偶尔复用旧 handle
			if prev, _ := k.Read(ctx, s, "app", "subj", obj); prev != nil {
				handle = prev.Handle
			}
		}
		transition(t, s, k, Change[followStatus]{
			Scope: "app", Subject: "subj", Object: obj, Handle: handle, Status: st,
			UpdatedAt: time.Unix(int64(i), 0),
		})
		final[obj] = st
	}

	for _, st := range statuses[1:] {
		var want int64
		for _, got := range final {
			if got == st {
				want++
			}
		}
		for _, ns := range k.Namespaces {
			n, err := ns.Count(ctx, s, "app", "subj", st)
			require.NoError(t, err)
			items, _, err := ns.List(ctx, s, "app", "subj", st, "", 0)
			require.NoError(t, err)
			assert.Equal(t, want, n, "%s/%s count", ns.Name, st)
			assert.Len(t, items, int(want), "%s/%s feed", ns.Name, st)
		}
	}
	for obj, st := range final {
		rec, err := k.Read(ctx, s, "app", "subj", obj)
		require.NoError(t, err)
		assert.Equal(t, st, rec.Status)
	}
}

// id 里带分隔符时，不同 (scope, subject) 的 feed 分区不能串
func TestSeparatorInKeysKeepsPartitionsApart(t *testing.T) {
	s := newStore(t)
	k := likeKind()
	ctx := context.Background()
	transition(t, s, k, Change[likeStatus]{Scope: "a", Subject: "c|x", Object: "u1", Actor: "u1", Handle: "H1", Status: liked})

	for _, other := range []struct{ scope, subject string }{
		{"x|a", "c"},
		{"a", "c"},
		{`a\`, "c|x"},
	} {
		items, _, err := k.List(ctx, s, other.scope, other.subject, liked, "", 0)
		require.NoError(t, err)
		assert.Empty(t, items, "scope=%q subject=%q", other.scope, other.subject)
		n, err := k.Count(ctx, s, other.scope, other.subject, liked)
		require.NoError(t, err)
		assert.Zero(t, n)
	}

	items, _, err := k.List(ctx, s, "a", "c|x", liked, "", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"H1"}, handles(t, items))
	n, err := k.Count(ctx, s, "a", "c|x", liked)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	rec, err := k.Read(ctx, s, "x|a", "c", "u1")
	require.NoError(t, err)
	assert.Nil(t, rec)
}
