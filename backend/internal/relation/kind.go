package relation

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"social-graph-service/backend/internal/pagination"
	"social-graph-service/backend/internal/repo"
	"social-graph-service/backend/internal/schema"
	"social-graph-service/backend/internal/txn"
)

// Status 关系状态枚举，None 值表示不活跃
type Status interface {
	~string
}

// Record (subject, object) 的权威状态记录；从不删除，失效时置为 None
type Record[S Status] struct {
	Handle    string    `json:"handle"`
	Status    S         `json:"status"`
	UpdatedAt time.Time `json:"updatedAt"`
	// Version 存储层维护，用于版本校验的 Replace
	Version int64 `json:"-"`
}

// Entry feed 行的负载
type Entry struct {
	Object string `json:"objectId"`
	Actor  string `json:"actorId,omitempty"`
}

// Item feed 中的一条
type Item struct {
	Handle string `json:"handle"`
	Entry
}

// Change 一次状态迁移请求
type Change[S Status] struct {
	Scope     string
	Subject   string
	Object    string
	Actor     string
	Handle    string
	Status    S
	UpdatedAt time.Time
}

// Namespace 一组 feed/count 表和分片规则；同一迁移可以同时写多个命名空间
type Namespace[S Status] struct {
	Name   string
	Feeds  schema.Table
	Counts schema.Table
	// Shard 由 (scope, status) 得到 shardKey
	Shard func(scope string, s S) string
}

// ScopedShard 按 scope+status 分片
func ScopedShard[S Status](scope string, s S) string { return txn.Compose(scope, string(s)) }

// GlobalShard 忽略 scope，只按状态分片
func GlobalShard[S Status](_ string, s S) string { return string(s) }

func (ns Namespace[S]) feedPartition(subject, scope string, s S) string {
	return txn.Compose(subject, ns.Shard(scope, s))
}

func (ns Namespace[S]) add(tx *txn.Transaction, c Change[S], payload []byte) {
	tx.Add(txn.Insert(ns.Feeds, ns.feedPartition(c.Subject, c.Scope, c.Status), c.Handle, payload))
	tx.Add(txn.InsertOrIncrement(ns.Counts, c.Subject, ns.Shard(c.Scope, c.Status), 1))
}

func (ns Namespace[S]) remove(tx *txn.Transaction, c Change[S], handle string, s S) {
	tx.Add(txn.Delete(ns.Feeds, ns.feedPartition(c.Subject, c.Scope, s), handle))
	tx.Add(txn.Increment(ns.Counts, c.Subject, ns.Shard(c.Scope, s), -1))
}

func (ns Namespace[S]) move(tx *txn.Transaction, c Change[S], oldHandle string, payload []byte) {
	pk := ns.feedPartition(c.Subject, c.Scope, c.Status)
	tx.Add(txn.Delete(ns.Feeds, pk, oldHandle))
	tx.Add(txn.Insert(ns.Feeds, pk, c.Handle, payload))
}

// List 分页读 subject 在某状态分片下的 feed
func (ns Namespace[S]) List(ctx context.Context, r repo.Reader, scope, subject string, s S, cursor string, limit int) ([]Item, string, error) {
	cur, err := pagination.Decode(cursor)
	if err != nil {
		return nil, "", err
	}
	limit = pagination.Limit(limit)
	rows, err := r.ListRows(ctx, ns.Feeds, ns.feedPartition(subject, scope, s), cur.Key, limit)
	if err != nil {
		return nil, "", err
	}
	items := make([]Item, 0, len(rows))
	for _, row := range rows {
		it := Item{Handle: row.Key}
		if len(row.Value) > 0 {
			if err := json.Unmarshal(row.Value, &it.Entry); err != nil {
				return nil, "", fmt.Errorf("decode feed entry %s: %w", row.Key, err)
			}
		}
		items = append(items, it)
	}
	var next string
	if len(rows) == limit {
		next = pagination.ForRow(rows[len(rows)-1].Key).Encode()
	}
	return items, next, nil
}

func (ns Namespace[S]) Count(ctx context.Context, r repo.Reader, scope, subject string, s S) (int64, error) {
	return r.GetCount(ctx, ns.Counts, subject, ns.Shard(scope, s))
}

// Kind 一种关系（点赞、置顶、关注……）的状态迁移引擎
type Kind[S Status] struct {
	Name    string
	None    S
	Records schema.Table
	// Namespaces 第一个为本地命名空间，其余为更粗粒度的聚合（如全局）
	Namespaces []Namespace[S]
	// Statuses 合法状态，空表示不校验
	Statuses []S
	Mode     txn.ConsistencyMode
}

func (k *Kind[S]) Local() Namespace[S] { return k.Namespaces[0] }

func recordRow(scope, object string) string { return txn.Compose(scope, object) }

func (k *Kind[S]) validate(c Change[S]) error {
	if c.Subject == "" || c.Object == "" || c.Handle == "" {
		return fmt.Errorf("%w: %s: subject, object and handle are required", txn.ErrInvalidArgument, k.Name)
	}
	if len(k.Statuses) > 0 && !slices.Contains(k.Statuses, c.Status) {
		return fmt.Errorf("%w: %s: unknown status %q", txn.ErrInvalidArgument, k.Name, c.Status)
	}
	return nil
}

// Transition 计算把 (subject, object) 从 previous 迁移到 c.Status/c.Handle 所需的全部索引操作
//
// previous 为调用方最近一次读到的记录，nil 表示不存在；引擎本身不读
func (k *Kind[S]) Transition(c Change[S], previous *Record[S]) (*txn.Transaction, error) {
	if err := k.validate(c); err != nil {
		return nil, err
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = time.Now().UTC()
	}
	record, err := json.Marshal(Record[S]{Handle: c.Handle, Status: c.Status, UpdatedAt: c.UpdatedAt})
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(Entry{Object: c.Object, Actor: c.Actor})
	if err != nil {
		return nil, err
	}

	tx := txn.New(k.Mode)
	row := recordRow(c.Scope, c.Object)

	if previous == nil {
		tx.Add(txn.Insert(k.Records, c.Subject, row, record))
		if c.Status != k.None {
			for _, ns := range k.Namespaces {
				ns.add(tx, c, payload)
			}
		}
		return tx, nil
	}

	// 版本校验：previous 过期时存储端口返回冲突
	tx.Add(txn.ReplaceIfVersion(k.Records, c.Subject, row, record, previous.Version))
	oldStatus, oldHandle := previous.Status, previous.Handle

	if c.Status == oldStatus {
		if c.Handle != oldHandle && c.Status != k.None {
			for _, ns := range k.Namespaces {
				ns.move(tx, c, oldHandle, payload)
			}
		}
		return tx, nil
	}
	for _, ns := range k.Namespaces {
		if c.Status != k.None {
			ns.add(tx, c, payload)
		}
		if oldStatus != k.None {
			ns.remove(tx, c, oldHandle, oldStatus)
		}
	}
	return tx, nil
}

// Read 读当前记录，不存在返回 nil, nil
func (k *Kind[S]) Read(ctx context.Context, r repo.Reader, scope, subject, object string) (*Record[S], error) {
	if subject == "" || object == "" {
		return nil, fmt.Errorf("%w: %s: subject and object are required", txn.ErrInvalidArgument, k.Name)
	}
	row, err := r.GetRow(ctx, k.Records, subject, recordRow(scope, object))
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, nil
	}
	var rec Record[S]
	if err := json.Unmarshal(row.Value, &rec); err != nil {
		return nil, fmt.Errorf("decode %s record: %w", k.Name, err)
	}
	rec.Version = row.Version
	return &rec, nil
}

// List 本地命名空间的 feed
func (k *Kind[S]) List(ctx context.Context, r repo.Reader, scope, subject string, s S, cursor string, limit int) ([]Item, string, error) {
	return k.Local().List(ctx, r, scope, subject, s, cursor, limit)
}

// Count 本地命名空间的计数
func (k *Kind[S]) Count(ctx context.Context, r repo.Reader, scope, subject string, s S) (int64, error) {
	return k.Local().Count(ctx, r, scope, subject, s)
}
