package ranking

import (
	"fmt"
	"strings"
	"time"

	"social-graph-service/backend/internal/txn"
)

// Window 热门榜的时间窗口，同时也是 feedKey
type Window string

const (
	Daily   Window = "daily"
	Weekly  Window = "weekly"
	Monthly Window = "monthly"
	AllTime Window = "alltime"
)

var spans = map[Window]time.Duration{
	Daily:   24 * time.Hour,
	Weekly:  7 * 24 * time.Hour,
	Monthly: 30 * 24 * time.Hour,
	AllTime: 0,
}

func ParseWindow(s string) (Window, error) {
	w := Window(strings.ToLower(s))
	if _, ok := spans[w]; !ok {
		return "", fmt.Errorf("%w: unknown window %q", txn.ErrInvalidArgument, s)
	}
	return w, nil
}

// ExpiresAt 窗口内一条记录的过期时间；alltime 返回零值，表示不写过期索引
func (w Window) ExpiresAt(now time.Time) time.Time {
	span := spans[w]
	if span == 0 {
		return time.Time{}
	}
	return now.Add(span)
}
