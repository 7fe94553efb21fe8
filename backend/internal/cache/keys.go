package cache

import (
	"fmt"

	"social-graph-service/backend/internal/schema"
	"social-graph-service/backend/internal/txn"
)

// 键语义：
// - rowKey:   object 表的一行（JSON{v,d}，或空值标记 -1）
// - countKey: count 表的一个计数器（整数字符串）
//
// {} 内是 hash tag，同一分区落在同一个 slot 上
const (
	keyRowFmt   = "sg:row:{%s:%s}:%s"
	keyCountFmt = "sg:count:{%s:%s}:%s"
)

func rowKey(t schema.Table, pk, rk string) string {
	return fmt.Sprintf(keyRowFmt, t.Physical, pk, rk)
}

func countKey(t schema.Table, pk, counter string) string {
	return fmt.Sprintf(keyCountFmt, t.Physical, pk, counter)
}

// touchedKeys 事务涉及的可缓存 key
func touchedKeys(tx *txn.Transaction) []string {
	var keys []string
	for _, op := range tx.Ops() {
		switch op.Table.Kind {
		case schema.KindObject:
			keys = append(keys, rowKey(op.Table, op.Partition, op.Row))
		case schema.KindCount:
			keys = append(keys, countKey(op.Table, op.Partition, op.Row))
		}
	}
	return keys
}
