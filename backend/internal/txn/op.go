package txn

import (
	"fmt"
	"strings"

	"social-graph-service/backend/internal/schema"
)

// OpKind 单个索引操作的类型
type OpKind int

const (
	OpInsert OpKind = iota + 1
	OpReplace
	OpInsertOrReplace
	OpDelete
	OpDeleteIfExists
	OpIncrement
	OpInsertOrIncrement
)

var opKindNames = map[OpKind]string{
	OpInsert:            "Insert",
	OpReplace:           "Replace",
	OpInsertOrReplace:   "InsertOrReplace",
	OpDelete:            "Delete",
	OpDeleteIfExists:    "DeleteIfExists",
	OpIncrement:         "Increment",
	OpInsertOrIncrement: "InsertOrIncrement",
}

func (k OpKind) String() string {
	if s, ok := opKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("OpKind(%d)", int(k))
}

// Op 对一张表的一次行级/计数操作
//
// count 表里 Row 是计数器 key；rank 表里 Score 为排序分数
type Op struct {
	Kind      OpKind
	Table     schema.Table
	Partition string
	Row       string
	Value     []byte
	Score     float64
	Delta     int64
	// IfVersion > 0 时 Replace 要求存量版本相等，否则冲突
	IfVersion int64
}

func Insert(t schema.Table, pk, rk string, value []byte) Op {
	return Op{Kind: OpInsert, Table: t, Partition: pk, Row: rk, Value: value}
}

func Replace(t schema.Table, pk, rk string, value []byte) Op {
	return Op{Kind: OpReplace, Table: t, Partition: pk, Row: rk, Value: value}
}

// ReplaceIfVersion 带版本校验的 Replace
func ReplaceIfVersion(t schema.Table, pk, rk string, value []byte, version int64) Op {
	return Op{Kind: OpReplace, Table: t, Partition: pk, Row: rk, Value: value, IfVersion: version}
}

func InsertOrReplace(t schema.Table, pk, rk string, value []byte) Op {
	return Op{Kind: OpInsertOrReplace, Table: t, Partition: pk, Row: rk, Value: value}
}

// Scored rank 表的 InsertOrReplace
func Scored(t schema.Table, pk, item string, score float64) Op {
	return Op{Kind: OpInsertOrReplace, Table: t, Partition: pk, Row: item, Score: score}
}

func Delete(t schema.Table, pk, rk string) Op {
	return Op{Kind: OpDelete, Table: t, Partition: pk, Row: rk}
}

func DeleteIfExists(t schema.Table, pk, rk string) Op {
	return Op{Kind: OpDeleteIfExists, Table: t, Partition: pk, Row: rk}
}

func Increment(t schema.Table, pk, counter string, delta int64) Op {
	return Op{Kind: OpIncrement, Table: t, Partition: pk, Row: counter, Delta: delta}
}

func InsertOrIncrement(t schema.Table, pk, counter string, delta int64) Op {
	return Op{Kind: OpInsertOrIncrement, Table: t, Partition: pk, Row: counter, Delta: delta}
}

// Validate 检查操作与表类型是否匹配、key 是否合法
func (o Op) Validate() error {
	if o.Table.IsZero() {
		return fmt.Errorf("%w: %s: table not set", ErrInvalidArgument, o.Kind)
	}
	if o.Partition == "" || o.Row == "" {
		return fmt.Errorf("%w: %s on %s: empty partition or row key", ErrInvalidArgument, o.Kind, o.Table)
	}
	if strings.IndexByte(o.Partition, 0) >= 0 || strings.IndexByte(o.Row, 0) >= 0 {
		return fmt.Errorf("%w: %s on %s: key contains NUL", ErrInvalidArgument, o.Kind, o.Table)
	}

	counting := o.Kind == OpIncrement || o.Kind == OpInsertOrIncrement
	switch o.Table.Kind {
	case schema.KindCount:
		if !counting && o.Kind != OpDelete && o.Kind != OpDeleteIfExists {
			return fmt.Errorf("%w: %s not allowed on count table %s", ErrInvalidArgument, o.Kind, o.Table)
		}
	case schema.KindObject, schema.KindFeed, schema.KindRank:
		if counting {
			return fmt.Errorf("%w: %s not allowed on %s table %s", ErrInvalidArgument, o.Kind, o.Table.Kind, o.Table)
		}
	default:
		return fmt.Errorf("%w: table %s has unknown kind %q", ErrInvalidArgument, o.Table, o.Table.Kind)
	}
	if _, ok := opKindNames[o.Kind]; !ok {
		return fmt.Errorf("%w: unknown op kind %d", ErrInvalidArgument, int(o.Kind))
	}
	if o.IfVersion != 0 && (o.Kind != OpReplace || o.Table.Kind != schema.KindObject) {
		return fmt.Errorf("%w: version check only applies to Replace on object tables", ErrInvalidArgument)
	}
	if o.IfVersion < 0 {
		return fmt.Errorf("%w: negative version", ErrInvalidArgument)
	}
	return nil
}

// Compose 把多个 key 片段用 | 拼接
//
// 片段内的 | 和 \ 用 \ 转义，空片段保留位置，不同的片段元组不会拼出同一个 key
func Compose(parts ...string) string {
	var b strings.Builder
	for i, p := range parts {
		if i > 0 {
			b.WriteByte('|')
		}
		for j := 0; j < len(p); j++ {
			if c := p[j]; c == '|' || c == '\\' {
				b.WriteByte('\\')
			}
			b.WriteByte(p[j])
		}
	}
	return b.String()
}
