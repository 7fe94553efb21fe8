package journal

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

const DefaultMaxInFlight = 100

var ErrNotAcquired = errors.New("journal: release without acquire")

// SemaphoreControl 限制同时在途的 SendMessage 数
type SemaphoreControl struct {
	w    *semaphore.Weighted
	held atomic.Int64
}

func NewSemaphoreControl(size int) *SemaphoreControl {
	if size <= 0 {
		size = DefaultMaxInFlight
	}
	return &SemaphoreControl{w: semaphore.NewWeighted(int64(size))}
}

// Acquire ctx 结束前拿不到名额时返回 ctx 的错误
func (s *SemaphoreControl) Acquire(ctx context.Context) error {
	if err := s.w.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("journal: acquire send slot: %w", err)
	}
	s.held.Add(1)
	return nil
}

func (s *SemaphoreControl) Release() error {
	for {
		n := s.held.Load()
		if n <= 0 {
			return ErrNotAcquired
		}
		if s.held.CompareAndSwap(n, n-1) {
			s.w.Release(1)
			return nil
		}
	}
}
