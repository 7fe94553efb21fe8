package repo

import (
	"context"

	"social-graph-service/backend/internal/schema"
	"social-graph-service/backend/internal/txn"
)

// Row object/feed 表里的一行
type Row struct {
	Key   string
	Value []byte
	// Version 只对 object 表有意义：插入为 1，每次 Replace +1
	Version int64
}

// ScoredRow rank 表里的一行
type ScoredRow struct {
	Key   string  `json:"key"`
	Score float64 `json:"score"`
}

// Executor 事务端口：原子执行一组有序操作，结果区分冲突与其他失败
type Executor interface {
	Execute(ctx context.Context, tx *txn.Transaction) txn.Result
}

// Reader 查询契约；不存在不是错误，返回 nil / 0 / 空切片。limit <= 0 表示不限
type Reader interface {
	GetRow(ctx context.Context, t schema.Table, pk, rk string) (*Row, error)
	// ListRows 按 row key 升序，从 cursor 之后开始（不含 cursor）
	ListRows(ctx context.Context, t schema.Table, pk, cursor string, limit int) ([]Row, error)
	GetCount(ctx context.Context, t schema.Table, pk, counter string) (int64, error)
	// GetScore rank 表成员的分数，ok=false 表示不存在
	GetScore(ctx context.Context, t schema.Table, pk, item string) (score float64, ok bool, err error)
	// ScoredBelow 分数严格小于 below 的行，按分数升序
	ScoredBelow(ctx context.Context, t schema.Table, pk string, below float64, limit int) ([]ScoredRow, error)
	// RevRange 按分数降序分页；after 为空从最高分开始
	RevRange(ctx context.Context, t schema.Table, pk string, after *ScoredRow, limit int) ([]ScoredRow, error)
	Cardinality(ctx context.Context, t schema.Table, pk string) (int64, error)
}

type Store interface {
	Executor
	Reader
}

// ExecutorFunc 方便装饰器和测试
type ExecutorFunc func(ctx context.Context, tx *txn.Transaction) txn.Result

func (f ExecutorFunc) Execute(ctx context.Context, tx *txn.Transaction) txn.Result {
	return f(ctx, tx)
}
