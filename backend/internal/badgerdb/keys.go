package badgerdb

import (
	"encoding/binary"
	"math"

	"social-graph-service/backend/internal/schema"
)

// key 布局（片段中不允许出现 NUL）:
//
//	object/feed/count: phys \0 pk \0 row
//	rank 成员:          phys \0 pk \0 m \0 row          -> 8 字节分数
//	rank 索引:          phys \0 pk \0 s \0 sortable(score) row

func partitionPrefix(t schema.Table, pk string) []byte {
	b := make([]byte, 0, len(t.Physical)+len(pk)+2)
	b = append(b, t.Physical...)
	b = append(b, 0)
	b = append(b, pk...)
	return append(b, 0)
}

func rowKey(t schema.Table, pk, rk string) []byte {
	return append(partitionPrefix(t, pk), rk...)
}

func memberPrefix(t schema.Table, pk string) []byte {
	return append(partitionPrefix(t, pk), 'm', 0)
}

func memberKey(t schema.Table, pk, item string) []byte {
	return append(memberPrefix(t, pk), item...)
}

func indexPrefix(t schema.Table, pk string) []byte {
	return append(partitionPrefix(t, pk), 's', 0)
}

// indexEnd 紧跟在索引区间之后的 key，反向迭代从这里 Seek
func indexEnd(t schema.Table, pk string) []byte {
	return append(partitionPrefix(t, pk), 's', 1)
}

func indexKey(t schema.Table, pk, item string, score float64) []byte {
	b := indexPrefix(t, pk)
	b = binary.BigEndian.AppendUint64(b, sortableScore(score))
	return append(b, item...)
}

// sortableScore 把 float64 映射成字节序与数值序一致的 uint64
func sortableScore(f float64) uint64 {
	bits := math.Float64bits(f)
	if bits&(1<<63) == 0 {
		return bits ^ (1 << 63)
	}
	return ^bits
}

func scoreFromSortable(u uint64) float64 {
	if u&(1<<63) != 0 {
		return math.Float64frombits(u ^ (1 << 63))
	}
	return math.Float64frombits(^u)
}

func encodeScore(f float64) []byte {
	return binary.BigEndian.AppendUint64(nil, math.Float64bits(f))
}

func decodeScore(b []byte) float64 {
	return math.Float64frombits(binary.BigEndian.Uint64(b))
}

// object 行：8 字节版本 + 负载
func encodeObject(version int64, value []byte) []byte {
	b := make([]byte, 8, 8+len(value))
	binary.BigEndian.PutUint64(b, uint64(version))
	return append(b, value...)
}

func decodeObject(b []byte) (int64, []byte) {
	if len(b) < 8 {
		return 0, nil
	}
	v := make([]byte, len(b)-8)
	copy(v, b[8:])
	return int64(binary.BigEndian.Uint64(b[:8])), v
}

func encodeCount(n int64) []byte {
	return binary.BigEndian.AppendUint64(nil, uint64(n))
}

func decodeCount(b []byte) int64 {
	if len(b) < 8 {
		return 0
	}
	return int64(binary.BigEndian.Uint64(b))
}
