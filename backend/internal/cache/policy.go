package cache

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	BaseTTL          = 24 * time.Hour   // 基础过期时间
	Jitter           = 60 * time.Minute // 随机抖动范围
	NullTTL          = 5 * time.Minute  // 空值缓存时间
	EmptyCacheMarker = "-1"             // 空值标记
)

// 获取随机TTL，防止缓存雪崩
func getRandomTTL() time.Duration {
	return BaseTTL + time.Duration(rand.Int63n(int64(Jitter)))
}

// readCache hit=false 表示未命中；null=true 表示命中空值标记
func (c *cachedStore) readCache(ctx context.Context, key string) (val string, hit, null bool, err error) {
	res, err := c.rdb.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, false, nil
		}
		return "", false, false, err
	}
	if res == EmptyCacheMarker {
		return "", true, true, nil
	}
	return res, true, false, nil
}

func (c *cachedStore) writeCache(ctx context.Context, key string, val interface{}) error {
	return c.rdb.Set(ctx, key, val, getRandomTTL()).Err()
}

// 标记空值缓存，防止缓存穿透
func (c *cachedStore) writeNullCache(ctx context.Context, key string) error {
	return c.rdb.Set(ctx, key, EmptyCacheMarker, NullTTL).Err()
}

// fetchFunc 回源；exists=false 时写空值标记
type fetchFunc func() (val interface{}, encoded string, exists bool, err error)

// getWithProtection Singleflight + 读缓存 + 回源 + 回写
//
// decode 把缓存里的字符串还原成值；Redis 出错时直接回源，不影响读
func (c *cachedStore) getWithProtection(
	ctx context.Context,
	key string,
	zero interface{},
	decode func(string) (interface{}, error),
	fetch fetchFunc,
) (interface{}, error) {
	val, err, _ := c.sf.Do(key, func() (interface{}, error) {
		raw, hit, null, err := c.readCache(ctx, key)
		if err != nil {
			c.logger.Warn("cache read failed, fall back to store", "key", key, "error", err)
		}
		if hit {
			if null {
				return zero, nil
			}
			if v, derr := decode(raw); derr == nil {
				return v, nil
			}
			// 缓存内容损坏，当作未命中
		}

		v, encoded, exists, err := fetch()
		if err != nil {
			return zero, err
		}
		if !exists {
			if werr := c.writeNullCache(ctx, key); werr != nil {
				c.logger.Warn("cache write null marker failed", "key", key, "error", werr)
			}
			return zero, nil
		}
		if werr := c.writeCache(ctx, key, encoded); werr != nil {
			c.logger.Warn("cache write back failed", "key", key, "error", werr)
		}
		return v, nil
	})
	return val, err
}
