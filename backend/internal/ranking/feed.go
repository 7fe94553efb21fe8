package ranking

import (
	"context"
	"fmt"
	"math"
	"time"

	"social-graph-service/backend/internal/pagination"
	"social-graph-service/backend/internal/repo"
	"social-graph-service/backend/internal/schema"
	"social-graph-service/backend/internal/txn"
)

// Feed 分数排序的榜单 + 按过期时间排序的平行索引
//
// 过期是惰性的：读过期索引的人负责删除
type Feed struct {
	Name        string
	Ranks       schema.Table
	Expirations schema.Table
	Mode        txn.ConsistencyMode
}

func partition(scope, feedKey string) string { return txn.Compose(scope, feedKey) }

// expiryScore 过期索引的分数：Unix 毫秒，float64 可精确表示
func expiryScore(t time.Time) float64 { return float64(t.UnixMilli()) }

func (f *Feed) check(scope, feedKey, item string) error {
	if scope == "" || feedKey == "" || item == "" {
		return fmt.Errorf("%w: %s: scope, feed key and item are required", txn.ErrInvalidArgument, f.Name)
	}
	return nil
}

// Upsert expiresAt 为零值表示不限时（alltime），不写过期索引
func (f *Feed) Upsert(scope, feedKey, item string, score float64, expiresAt time.Time) (*txn.Transaction, error) {
	if err := f.check(scope, feedKey, item); err != nil {
		return nil, err
	}
	if math.IsNaN(score) {
		return nil, fmt.Errorf("%w: %s: score is NaN", txn.ErrInvalidArgument, f.Name)
	}
	pk := partition(scope, feedKey)
	tx := txn.New(f.Mode).Add(txn.Scored(f.Ranks, pk, item, score))
	if !expiresAt.IsZero() {
		tx.Add(txn.Scored(f.Expirations, pk, item, expiryScore(expiresAt)))
	}
	return tx, nil
}

// Remove 两个索引一起删
func (f *Feed) Remove(scope, feedKey, item string) (*txn.Transaction, error) {
	if err := f.check(scope, feedKey, item); err != nil {
		return nil, err
	}
	pk := partition(scope, feedKey)
	return txn.New(f.Mode).Add(
		txn.DeleteIfExists(f.Ranks, pk, item),
		txn.DeleteIfExists(f.Expirations, pk, item),
	), nil
}

// Bounded 容量受 Ranks.MaxFeedLength 限制的 Upsert
//
// 榜单已满且新分数不高于最低分时 admitted=false；否则必要时连带淘汰最低分那条
func (f *Feed) Bounded(ctx context.Context, r repo.Reader, scope, feedKey, item string, score float64, expiresAt time.Time) (tx *txn.Transaction, admitted bool, err error) {
	tx, err = f.Upsert(scope, feedKey, item, score, expiresAt)
	if err != nil {
		return nil, false, err
	}
	capacity := f.Ranks.MaxFeedLength
	if capacity <= 0 {
		return tx, true, nil
	}
	pk := partition(scope, feedKey)
	if _, present, err := r.GetScore(ctx, f.Ranks, pk, item); err != nil {
		return nil, false, err
	} else if present {
		return tx, true, nil
	}
	n, err := r.Cardinality(ctx, f.Ranks, pk)
	if err != nil {
		return nil, false, err
	}
	if n < int64(capacity) {
		return tx, true, nil
	}
	lowest, err := f.Lowest(ctx, r, scope, feedKey)
	if err != nil {
		return nil, false, err
	}
	if lowest == nil {
		return tx, true, nil
	}
	if score <= lowest.Score {
		return nil, false, nil
	}
	tx.Add(
		txn.DeleteIfExists(f.Ranks, pk, lowest.Key),
		txn.DeleteIfExists(f.Expirations, pk, lowest.Key),
	)
	return tx, true, nil
}

// PruneExpired 返回过期时间严格早于 asOf 的条目；只读，删除由调用方发起
func (f *Feed) PruneExpired(ctx context.Context, r repo.Reader, scope, feedKey string, asOf time.Time) ([]string, error) {
	if scope == "" || feedKey == "" {
		return nil, fmt.Errorf("%w: %s: scope and feed key are required", txn.ErrInvalidArgument, f.Name)
	}
	rows, err := r.ScoredBelow(ctx, f.Expirations, partition(scope, feedKey), expiryScore(asOf), 0)
	if err != nil {
		return nil, err
	}
	items := make([]string, len(rows))
	for i, row := range rows {
		items[i] = row.Key
	}
	return items, nil
}

// Query 按分数降序分页
//
// 空游标且 limit 为 1 时返回最低分那条，用于找淘汰候选
func (f *Feed) Query(ctx context.Context, r repo.Reader, scope, feedKey, cursor string, limit int) ([]repo.ScoredRow, string, error) {
	if scope == "" || feedKey == "" {
		return nil, "", fmt.Errorf("%w: %s: scope and feed key are required", txn.ErrInvalidArgument, f.Name)
	}
	if cursor == "" && limit == 1 {
		lowest, err := f.Lowest(ctx, r, scope, feedKey)
		if err != nil || lowest == nil {
			return nil, "", err
		}
		return []repo.ScoredRow{*lowest}, "", nil
	}
	cur, err := pagination.Decode(cursor)
	if err != nil {
		return nil, "", err
	}
	after, err := cur.Scored()
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", txn.ErrInvalidArgument, err)
	}
	limit = pagination.Limit(limit)
	rows, err := r.RevRange(ctx, f.Ranks, partition(scope, feedKey), after, limit)
	if err != nil {
		return nil, "", err
	}
	var next string
	if len(rows) == limit {
		next = pagination.ForScored(rows[len(rows)-1]).Encode()
	}
	return rows, next, nil
}

// Lowest 最低分条目，空榜返回 nil
func (f *Feed) Lowest(ctx context.Context, r repo.Reader, scope, feedKey string) (*repo.ScoredRow, error) {
	rows, err := r.ScoredBelow(ctx, f.Ranks, partition(scope, feedKey), math.Inf(1), 1)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return &rows[0], nil
}

func (f *Feed) Size(ctx context.Context, r repo.Reader, scope, feedKey string) (int64, error) {
	return r.Cardinality(ctx, f.Ranks, partition(scope, feedKey))
}
