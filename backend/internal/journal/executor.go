package journal

import (
	"context"
	"log/slog"
	"time"

	"social-graph-service/backend/internal/repo"
	"social-graph-service/backend/internal/txn"
)

// Enqueuer 事件出口，KafkaDispatcher 实现
type Enqueuer interface {
	Enqueue(ctx context.Context, evt TxCommitted) error
}

// Executor 已提交的事务投递一条 TxCommitted 事件；投递失败只记日志，不改变结果
//
// Express 事务的提交是异步确认的，事件带 Confirmed=false，下游需要自己对账
type Executor struct {
	next    repo.Executor
	out     Enqueuer
	timeout time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

func NewExecutor(next repo.Executor, out Enqueuer, enqueueTimeout time.Duration, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	if enqueueTimeout <= 0 {
		enqueueTimeout = 50 * time.Millisecond
	}
	return &Executor{next: next, out: out, timeout: enqueueTimeout, logger: logger, now: time.Now}
}

func (e *Executor) Execute(ctx context.Context, tx *txn.Transaction) txn.Result {
	res := e.next.Execute(ctx, tx)
	if !res.OK() {
		return res
	}
	// 请求 ctx 可能马上被取消，入队用独立的超时
	qctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.timeout)
	defer cancel()
	evt := NewTxCommitted(tx, e.now())
	if err := e.out.Enqueue(qctx, evt); err != nil {
		e.logger.Warn("journal queue full, drop event",
			slog.String("event", evt.EventID),
			slog.String("key", evt.Key()),
			slog.String("error", err.Error()))
	}
	return res
}
