package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"social-graph-service/backend/internal/repo"
	"social-graph-service/backend/internal/txn"
)

const (
	DefaultLimit = 20
	MaxLimit     = 200
)

// Cursor 对外不透明的分页游标：feed 用 Key，rank 用 Key+Score
type Cursor struct {
	Key   string   `json:"k"`
	Score *float64 `json:"s,omitempty"`
}

func (c Cursor) Encode() string {
	if c.Key == "" {
		return ""
	}
	b, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(b)
}

// Decode 空串返回零值游标
func Decode(s string) (Cursor, error) {
	var c Cursor
	if s == "" {
		return c, nil
	}
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return c, fmt.Errorf("%w: bad cursor: %v", txn.ErrInvalidArgument, err)
	}
	if err := json.Unmarshal(b, &c); err != nil {
		return c, fmt.Errorf("%w: bad cursor: %v", txn.ErrInvalidArgument, err)
	}
	if c.Key == "" {
		return c, fmt.Errorf("%w: bad cursor: empty key", txn.ErrInvalidArgument)
	}
	return c, nil
}

func ForRow(key string) Cursor { return Cursor{Key: key} }

func ForScored(r repo.ScoredRow) Cursor {
	s := r.Score
	return Cursor{Key: r.Key, Score: &s}
}

// Scored 转回 rank 游标；feed 游标用在 rank 查询上是参数错误
func (c Cursor) Scored() (*repo.ScoredRow, error) {
	if c.Key == "" {
		return nil, nil
	}
	if c.Score == nil {
		return nil, errors.New("cursor has no score")
	}
	return &repo.ScoredRow{Key: c.Key, Score: *c.Score}, nil
}

// Limit 规范化分页大小
func Limit(n int) int {
	if n <= 0 {
		return DefaultLimit
	}
	if n > MaxLimit {
		return MaxLimit
	}
	return n
}
