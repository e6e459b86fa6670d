package cart

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrCacheMiss = errors.New("cache miss")
	// ErrStaleFill: счётчик инвалидировали, пока он читался из базы;
	// значение в кэш не записано.
	ErrStaleFill = errors.New("cart count changed during fill")
)

// versionTTL дольше любого заполнения, поэтому сброс версии во время
// заполнения всегда виден как несовпадение.
const versionTTL = 24 * time.Hour

// CountCache хранит счётчик корзины пользователя. Для решений по остаткам
// и оформлению заказа он не используется.
//
// Заполнение версионировано: читатель берёт Version до чтения из базы и
// передаёт её в Fill, который пишет, только если между ними не было Invalidate.
type CountCache interface {
	Get(ctx context.Context, userID int64) (int, error)
	Version(ctx context.Context, userID int64) (int64, error)
	Fill(ctx context.Context, userID, version int64, count int) error
	Invalidate(ctx context.Context, userID int64) error
}

type RedisCountCache struct {
	client  *redis.Client
	baseTTL time.Duration
}

func NewRedisCountCache(client *redis.Client, ttl time.Duration) *RedisCountCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisCountCache{client: client, baseTTL: ttl}
}

func (c *RedisCountCache) Get(ctx context.Context, userID int64) (int, error) {
	raw, err := c.client.Get(ctx, countKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, ErrCacheMiss
	}
	if err != nil {
		return 0, fmt.Errorf("redis get failed: %w", err)
	}

	count, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid cached cart count %q: %w", raw, err)
	}
	return count, nil
}

func (c *RedisCountCache) Version(ctx context.Context, userID int64) (int64, error) {
	version, err := c.client.Get(ctx, versionKey(userID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get version failed: %w", err)
	}
	return version, nil
}

func (c *RedisCountCache) Fill(ctx context.Context, userID, version int64, count int) error {
	vkey := versionKey(userID)
	// jitter разносит истечение ключей, записанных одновременно
	ttl := c.baseTTL + time.Duration(rand.IntN(60))*time.Second

	err := c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, vkey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != version {
			return ErrStaleFill
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, countKey(userID), count, ttl)
			return nil
		})
		return err
	}, vkey)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrStaleFill), errors.Is(err, redis.TxFailedErr):
		return ErrStaleFill
	default:
		return fmt.Errorf("redis fill failed: %w", err)
	}
}

// Invalidate удаляет счётчик и увеличивает версию, чтобы заполнение,
// которое уже идёт, было отброшено.
func (c *RedisCountCache) Invalidate(ctx context.Context, userID int64) error {
	vkey := versionKey(userID)
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, vkey)
		pipe.Expire(ctx, vkey, versionTTL)
		pipe.Del(ctx, countKey(userID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis invalidate failed: %w", err)
	}
	return nil
}

func countKey(userID int64) string {
	return fmt.Sprintf("cart:count:%d", userID)
}

func versionKey(userID int64) string {
	return fmt.Sprintf("cart:count:%d:version", userID)
}
