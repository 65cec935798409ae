package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cryptid-sol/internal/types"

	"github.com/redis/go-redis/v9"
)

// RecordCache 以地址为 key 缓存交易账户原始数据。
// 只缓存已执行（终态）的记录；Ready 记录可能随时被审批或执行，不做缓存。
type RecordCache struct {
	rdb *redis.Client
	ttl time.Duration
}

const (
	recordPrefix      = "cryptid:record"
	defaultRecordTTL  = 24 * time.Hour
	recordCacheErrTag = "[Client:RecordCache]"
)

// NewRecordCache ttl<=0 时使用默认 TTL
func NewRecordCache(rdb *redis.Client, ttl time.Duration) *RecordCache {
	if ttl <= 0 {
		ttl = defaultRecordTTL
	}
	return &RecordCache{rdb: rdb, ttl: ttl}
}

func (c *RecordCache) key(addr types.Pubkey) string {
	return fmt.Sprintf("%s:%s", recordPrefix, addr)
}

// Get 未命中时返回 (nil, false, nil)
func (c *RecordCache) Get(ctx context.Context, addr types.Pubkey) ([]byte, bool, error) {
	data, err := c.rdb.Get(ctx, c.key(addr)).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, false, nil
	case err != nil:
		return nil, false, fmt.Errorf("%s redis get error: %w", recordCacheErrTag, err)
	default:
		return data, true, nil
	}
}

func (c *RecordCache) Set(ctx context.Context, addr types.Pubkey, data []byte) error {
	if err := c.rdb.Set(ctx, c.key(addr), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("%s redis set error: %w", recordCacheErrTag, err)
	}
	return nil
}

// Delete 删除无法解析的缓存条目
func (c *RecordCache) Delete(ctx context.Context, addr types.Pubkey) error {
	return c.rdb.Del(ctx, c.key(addr)).Err()
}
