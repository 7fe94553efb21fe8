package txn

import (
	"fmt"
)

// Transaction 一次公开操作对应的有序操作列表，由存储端口原子执行
type Transaction struct {
	Mode ConsistencyMode
	ops  []Op
}

func New(mode ConsistencyMode) *Transaction {
	return &Transaction{Mode: mode}
}

func (t *Transaction) Add(ops ...Op) *Transaction {
	t.ops = append(t.ops, ops...)
	return t
}

// Ops 返回副本，调用方修改不影响事务
func (t *Transaction) Ops() []Op {
	out := make([]Op, len(t.ops))
	copy(out, t.ops)
	return out
}

func (t *Transaction) Len() int { return len(t.ops) }

// Merge 把其他事务的操作追加进来（例如关注关系两端写在同一个事务里）
func (t *Transaction) Merge(others ...*Transaction) *Transaction {
	for _, o := range others {
		if o != nil {
			t.ops = append(t.ops, o.ops...)
		}
	}
	return t
}

func (t *Transaction) WithMode(mode ConsistencyMode) *Transaction {
	t.Mode = mode
	return t
}

// Validate 返回第一个非法操作的下标
func (t *Transaction) Validate() (int, error) {
	if len(t.ops) == 0 {
		return -1, fmt.Errorf("%w: empty transaction", ErrInvalidArgument)
	}
	for i, op := range t.ops {
		if err := op.Validate(); err != nil {
			return i, err
		}
	}
	return -1, nil
}
