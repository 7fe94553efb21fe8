package txn

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument 缺少必填 key，未构建任何事务
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrConflict 行已存在或前置条件不满足
	ErrConflict = errors.New("conflict")
	// ErrTransactionFailed 其他存储失败
	ErrTransactionFailed = errors.New("transaction failed")
	// ErrRowExists Insert 撞上已存在的行；只有它能被幂等追加当作重复投递
	ErrRowExists = fmt.Errorf("%w: row already exists", ErrConflict)
)

type Outcome int

const (
	OutcomeCommitted Outcome = iota
	OutcomeConflicted
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCommitted:
		return "committed"
	case OutcomeConflicted:
		return "conflicted"
	case OutcomeFailed:
		return "failed"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Result 存储端口的执行结果：Committed | Conflicted(op, cause) | Failed(op, cause)
//
// Op 是引发失败的操作下标，-1 表示无法归属到某个操作（如提交阶段冲突）
type Result struct {
	Outcome Outcome
	Op      int
	Cause   error
}

func Committed() Result { return Result{Outcome: OutcomeCommitted, Op: -1} }

func Conflict(op int, cause error) Result {
	return Result{Outcome: OutcomeConflicted, Op: op, Cause: cause}
}

func Failure(op int, cause error) Result {
	return Result{Outcome: OutcomeFailed, Op: op, Cause: cause}
}

func (r Result) OK() bool { return r.Outcome == OutcomeCommitted }

func (r Result) IsConflict() bool { return r.Outcome == OutcomeConflicted }

// ConflictAt 是否为第 i 个操作引发的冲突
func (r Result) ConflictAt(i int) bool { return r.Outcome == OutcomeConflicted && r.Op == i }

// RowExistsAt 第 i 个操作因行已存在而冲突
func (r Result) RowExistsAt(i int) bool { return r.ConflictAt(i) && errors.Is(r.Cause, ErrRowExists) }

// Err 转成带哨兵的 error，Committed 返回 nil
func (r Result) Err() error {
	var sentinel error
	switch r.Outcome {
	case OutcomeCommitted:
		return nil
	case OutcomeConflicted:
		sentinel = ErrConflict
	default:
		// 参数错误保留原哨兵
		if errors.Is(r.Cause, ErrInvalidArgument) {
			return r.Cause
		}
		sentinel = ErrTransactionFailed
	}
	if r.Cause == nil {
		return fmt.Errorf("%w: op %d", sentinel, r.Op)
	}
	return fmt.Errorf("%w: op %d: %w", sentinel, r.Op, r.Cause)
}

func (r Result) String() string {
	if r.OK() {
		return "committed"
	}
	return fmt.Sprintf("%s(op=%d, %v)", r.Outcome, r.Op, r.Cause)
}
