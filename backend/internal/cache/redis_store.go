package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"social-graph-service/backend/internal/repo"
	"social-graph-service/backend/internal/schema"
	"social-graph-service/backend/internal/txn"
)

// cachedStore 在 repo.Store 前加一层 Redis：
// object 行和计数走 cache-aside，提交（或冲突）后删掉事务涉及的 key
type cachedStore struct {
	repo.Store
	rdb    redis.UniversalClient
	sf     singleflight.Group
	logger *slog.Logger
}

// 确保 cachedStore 实现了 repo.Store 接口
var _ repo.Store = (*cachedStore)(nil)

func NewRedisStore(rdb redis.UniversalClient, next repo.Store, logger *slog.Logger) repo.Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &cachedStore{Store: next, rdb: rdb, logger: logger}
}

type cachedRow struct {
	Version int64  `json:"v"`
	Data    []byte `json:"d"`
}

func (c *cachedStore) Execute(ctx context.Context, tx *txn.Transaction) txn.Result {
	res := c.Store.Execute(ctx, tx)
	// 冲突也要删，调用方重读时才能拿到新版本
	if res.OK() || res.IsConflict() {
		c.invalidate(ctx, tx)
	}
	return res
}

func (c *cachedStore) invalidate(ctx context.Context, tx *txn.Transaction) {
	keys := touchedKeys(tx)
	if len(keys) == 0 {
		return
	}
	// 集群模式下多 key DEL 可能跨 slot，逐个删
	pipe := c.rdb.Pipeline()
	for _, k := range keys {
		pipe.Del(ctx, k)
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		c.logger.Warn("cache invalidation failed", "keys", len(keys), "error", err)
	}
}

func (c *cachedStore) GetRow(ctx context.Context, t schema.Table, pk, rk string) (*repo.Row, error) {
	if t.Kind != schema.KindObject {
		return c.Store.GetRow(ctx, t, pk, rk)
	}
	decode := func(s string) (interface{}, error) {
		var cr cachedRow
		if err := json.Unmarshal([]byte(s), &cr); err != nil {
			return nil, err
		}
		return &repo.Row{Key: rk, Value: cr.Data, Version: cr.Version}, nil
	}
	v, err := c.getWithProtection(ctx, rowKey(t, pk, rk), (*repo.Row)(nil), decode,
		func() (interface{}, string, bool, error) {
			row, err := c.Store.GetRow(ctx, t, pk, rk)
			if err != nil || row == nil {
				return nil, "", false, err
			}
			b, err := json.Marshal(cachedRow{Version: row.Version, Data: row.Value})
			if err != nil {
				return nil, "", false, err
			}
			return row, string(b), true, nil
		})
	if err != nil {
		return nil, err
	}
	// 使用断言确保不会panic
	row, _ := v.(*repo.Row)
	return row, nil
}

func (c *cachedStore) GetCount(ctx context.Context, t schema.Table, pk, counter string) (int64, error) {
	decode := func(s string) (interface{}, error) {
		return strconv.ParseInt(s, 10, 64)
	}
	v, err := c.getWithProtection(ctx, countKey(t, pk, counter), int64(0), decode,
		func() (interface{}, string, bool, error) {
			n, err := c.Store.GetCount(ctx, t, pk, counter)
			if err != nil {
				return int64(0), "", false, err
			}
			return n, strconv.FormatInt(n, 10), true, nil
		})
	if err != nil {
		return 0, err
	}
	n, ok := v.(int64)
	if !ok {
		return 0, errors.New("internal type error")
	}
	return n, nil
}
