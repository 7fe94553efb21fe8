package occurrence

import (
	"context"
	"fmt"

	"social-graph-service/backend/internal/pagination"
	"social-graph-service/backend/internal/repo"
	"social-graph-service/backend/internal/schema"
	"social-graph-service/backend/internal/txn"
)

// Occurrence 一次事件（例如一次举报）
type Occurrence struct {
	Scope   string
	Subject string
	Actor   string
	Handle  string
	Payload []byte
}

// Counter 事件全量入 feed，计数只统计不同的 actor
//
// BySubject / ByActor 为零值时不维护对应索引
type Counter struct {
	Name        string
	Occurrences schema.Table
	BySubject   schema.Table
	ByActor     schema.Table
	Markers     schema.Table
	Counts      schema.Table
	Mode        txn.ConsistencyMode
}

func markerRow(subject, actor string) string { return txn.Compose(subject, actor) }

// Record 构建一次事件的事务；alreadyOccurred 由调用方通过 HasOccurred 预先确定
//
// 首次出现时写唯一标记（Insert），并发的首次出现因此以冲突暴露，不会重复计数
func (c *Counter) Record(o Occurrence, alreadyOccurred bool) (*txn.Transaction, error) {
	if o.Scope == "" || o.Subject == "" || o.Actor == "" || o.Handle == "" {
		return nil, fmt.Errorf("%w: %s: scope, subject, actor and handle are required", txn.ErrInvalidArgument, c.Name)
	}
	tx := txn.New(c.Mode)
	tx.Add(txn.Insert(c.Occurrences, o.Scope, o.Handle, o.Payload))
	if !c.BySubject.IsZero() {
		tx.Add(txn.Insert(c.BySubject, txn.Compose(o.Scope, o.Subject), o.Handle, o.Payload))
	}
	if !c.ByActor.IsZero() {
		tx.Add(txn.Insert(c.ByActor, txn.Compose(o.Scope, o.Actor), o.Handle, o.Payload))
	}
	if !alreadyOccurred {
		tx.Add(txn.Insert(c.Markers, o.Scope, markerRow(o.Subject, o.Actor), nil))
		tx.Add(txn.InsertOrIncrement(c.Counts, o.Subject, o.Scope, 1))
	}
	return tx, nil
}

// HasOccurred actor 是否已经对 subject 计过数
func (c *Counter) HasOccurred(ctx context.Context, r repo.Reader, scope, subject, actor string) (bool, error) {
	if scope == "" || subject == "" || actor == "" {
		return false, fmt.Errorf("%w: %s: scope, subject and actor are required", txn.ErrInvalidArgument, c.Name)
	}
	row, err := r.GetRow(ctx, c.Markers, scope, markerRow(subject, actor))
	if err != nil {
		return false, err
	}
	return row != nil, nil
}

// Count 不同 actor 的数量
func (c *Counter) Count(ctx context.Context, r repo.Reader, scope, subject string) (int64, error) {
	return r.GetCount(ctx, c.Counts, subject, scope)
}

// List 全部事件
func (c *Counter) List(ctx context.Context, r repo.Reader, scope, cursor string, limit int) ([]repo.Row, string, error) {
	return list(ctx, r, c.Occurrences, scope, cursor, limit)
}

func (c *Counter) ListBySubject(ctx context.Context, r repo.Reader, scope, subject, cursor string, limit int) ([]repo.Row, string, error) {
	if c.BySubject.IsZero() {
		return nil, "", fmt.Errorf("%w: %s keeps no by-subject index", txn.ErrInvalidArgument, c.Name)
	}
	return list(ctx, r, c.BySubject, txn.Compose(scope, subject), cursor, limit)
}

func (c *Counter) ListByActor(ctx context.Context, r repo.Reader, scope, actor, cursor string, limit int) ([]repo.Row, string, error) {
	if c.ByActor.IsZero() {
		return nil, "", fmt.Errorf("%w: %s keeps no by-actor index", txn.ErrInvalidArgument, c.Name)
	}
	return list(ctx, r, c.ByActor, txn.Compose(scope, actor), cursor, limit)
}

func list(ctx context.Context, r repo.Reader, t schema.Table, pk, cursor string, limit int) ([]repo.Row, string, error) {
	cur, err := pagination.Decode(cursor)
	if err != nil {
		return nil, "", err
	}
	limit = pagination.Limit(limit)
	rows, err := r.ListRows(ctx, t, pk, cur.Key, limit)
	if err != nil {
		return nil, "", err
	}
	var next string
	if len(rows) == limit {
		next = pagination.ForRow(rows[len(rows)-1].Key).Encode()
	}
	return rows, next, nil
}
