package txn

import (
	"fmt"
	"strings"
)

// ConsistencyMode 调用方选择的持久化/延迟取舍，原样透传给存储端口
type ConsistencyMode int

const (
	// Strong 持久层权威，同步落盘
	Strong ConsistencyMode = iota
	// Eventual 允许短暂不一致
	Eventual
	// Express 延迟优先，提交结果异步确认
	Express
)

func (m ConsistencyMode) String() string {
	switch m {
	case Strong:
		return "strong"
	case Eventual:
		return "eventual"
	case Express:
		return "express"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

func ParseMode(s string) (ConsistencyMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "strong":
		return Strong, nil
	case "eventual":
		return Eventual, nil
	case "express":
		return Express, nil
	}
	return Strong, fmt.Errorf("%w: unknown consistency mode %q", ErrInvalidArgument, s)
}
