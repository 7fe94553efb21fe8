package appender

import (
	"context"
	"fmt"
	"log/slog"

	"social-graph-service/backend/internal/pagination"
	"social-graph-service/backend/internal/repo"
	"social-graph-service/backend/internal/schema"
	"social-graph-service/backend/internal/txn"
)

type Outcome int

const (
	Inserted Outcome = iota + 1
	AlreadyPresent
)

func (o Outcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case AlreadyPresent:
		return "already_present"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Appender 只追加的 feed + count，重复投递时 feed 行已存在视为成功；其他冲突照常返回
type Appender struct {
	Name   string
	Feeds  schema.Table
	Counts schema.Table
	Exec   repo.Executor
	Mode   txn.ConsistencyMode
	Logger *slog.Logger
}

func New(name string, feeds, counts schema.Table, exec repo.Executor, mode txn.ConsistencyMode, logger *slog.Logger) *Appender {
	if logger == nil {
		logger = slog.Default()
	}
	return &Appender{Name: name, Feeds: feeds, Counts: counts, Exec: exec, Mode: mode, Logger: logger}
}

func (a *Appender) feedPartition(subject, shardKey string) string { return txn.Compose(subject, shardKey) }

// AppendOnce feed 插入（不是 InsertOrReplace）+ 计数，一个事务
func (a *Appender) AppendOnce(ctx context.Context, subject, shardKey, handle string, payload []byte) (Outcome, error) {
	if subject == "" || shardKey == "" || handle == "" {
		return 0, fmt.Errorf("%w: %s: subject, shard key and handle are required", txn.ErrInvalidArgument, a.Name)
	}
	tx := txn.New(a.Mode).Add(
		txn.Insert(a.Feeds, a.feedPartition(subject, shardKey), handle, payload),
		txn.InsertOrIncrement(a.Counts, subject, shardKey, 1),
	)
	res := a.Exec.Execute(ctx, tx)
	switch {
	case res.OK():
		return Inserted, nil
	case res.RowExistsAt(0):
		a.Logger.Info("append skipped, entry already present",
			slog.String("feed", a.Name),
			slog.String("subject", subject),
			slog.String("shard", shardKey),
			slog.String("handle", handle))
		return AlreadyPresent, nil
	default:
		return 0, res.Err()
	}
}

func (a *Appender) Count(ctx context.Context, r repo.Reader, subject, shardKey string) (int64, error) {
	return r.GetCount(ctx, a.Counts, subject, shardKey)
}

func (a *Appender) List(ctx context.Context, r repo.Reader, subject, shardKey, cursor string, limit int) ([]repo.Row, string, error) {
	cur, err := pagination.Decode(cursor)
	if err != nil {
		return nil, "", err
	}
	limit = pagination.Limit(limit)
	rows, err := r.ListRows(ctx, a.Feeds, a.feedPartition(subject, shardKey), cur.Key, limit)
	if err != nil {
		return nil, "", err
	}
	var next string
	if len(rows) == limit {
		next = pagination.ForRow(rows[len(rows)-1].Key).Encode()
	}
	return rows, next, nil
}
