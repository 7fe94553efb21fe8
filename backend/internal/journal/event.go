package journal

import (
	"time"

	"github.com/google/uuid"

	"social-graph-service/backend/internal/txn"
)

const EventTxCommitted = "TX_COMMITTED"

// TxCommitted 一个已提交事务的变更记录，下游用来重建索引或做审计
type TxCommitted struct {
	EventType   string     `json:"eventType"` // 固定 "TX_COMMITTED"
	EventID     string     `json:"eventId"`
	Mode        string     `json:"mode"`
	// Confirmed 为 false 时存储层只同步校验了前置条件，提交本身异步确认，可能最终没有落盘
	Confirmed   bool       `json:"confirmed"`
	Ops         []OpRecord `json:"ops"`
	CommittedAt time.Time  `json:"committedAt"`
}

type OpRecord struct {
	Kind      string  `json:"kind"`
	Table     string  `json:"table"`
	Partition string  `json:"partition"`
	Row       string  `json:"row"`
	Delta     int64   `json:"delta,omitempty"`
	Score     float64 `json:"score,omitempty"`
}

// Key 分区 key 取第一个操作的分区，同一 subject 的事件有序
func (e TxCommitted) Key() string {
	if len(e.Ops) == 0 {
		return ""
	}
	return e.Ops[0].Partition
}

func NewTxCommitted(tx *txn.Transaction, at time.Time) TxCommitted {
	id := uuid.NewString()
	if v7, err := uuid.NewV7(); err == nil {
		id = v7.String()
	}
	ops := tx.Ops()
	recs := make([]OpRecord, len(ops))
	for i, op := range ops {
		recs[i] = OpRecord{
			Kind:      op.Kind.String(),
			Table:     op.Table.String(),
			Partition: op.Partition,
			Row:       op.Row,
			Delta:     op.Delta,
			Score:     op.Score,
		}
	}
	return TxCommitted{
		EventType:   EventTxCommitted,
		EventID:     id,
		Mode:        tx.Mode.String(),
		Confirmed:   tx.Mode != txn.Express,
		Ops:         recs,
		CommittedAt: at.UTC(),
	}
}
