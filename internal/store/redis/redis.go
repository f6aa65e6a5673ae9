// Package redis implements the scheduling store on Redis.
//
// All operations map 1:1 onto single Redis commands, so every call is
// atomic at the key level without transactions. Any connection or protocol
// failure is wrapped as a store transport error.
package redis

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/nextlevelbuilder/helperd/internal/store"
)

// Client is the Redis-backed scheduling store.
type Client struct {
	rdb *goredis.Client
}

// Connect parses a Redis URL (redis://...), opens a client, and pings it.
// A failed ping is a boot-time error; the caller decides whether it is fatal.
func Connect(ctx context.Context, url string) (*Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, store.Transport("redis parse url", err)
	}

	rdb := goredis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, store.Transport("redis ping", err)
	}

	slog.Info("store: connected to redis", "addr", opts.Addr, "db", opts.DB)
	return &Client{rdb: rdb}, nil
}

// NewFromClient wraps an existing go-redis client. Used by tests that run
// against miniredis-style servers and by callers that manage the client
// lifecycle themselves.
func NewFromClient(rdb *goredis.Client) *Client {
	return &Client{rdb: rdb}
}

func (c *Client) SetKV(ctx context.Context, key, value string) error {
	if err := c.rdb.Set(ctx, key, value, 0).Err(); err != nil {
		return store.Transport("SET "+key, err)
	}
	return nil
}

func (c *Client) SetKVTTL(ctx context.Context, key, value string, ttlSeconds int64) error {
	if err := c.rdb.Set(ctx, key, value, time.Duration(ttlSeconds)*time.Second).Err(); err != nil {
		return store.Transport("SET "+key, err)
	}
	return nil
}

func (c *Client) GetKV(ctx context.Context, key string) (string, bool, error) {
	val, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, store.Transport("GET "+key, err)
	}
	return val, true, nil
}

func (c *Client) DelKey(ctx context.Context, key string) error {
	if err := c.rdb.Del(ctx, key).Err(); err != nil {
		return store.Transport("DEL "+key, err)
	}
	return nil
}

// KeysByPrefix scans for keys matching prefix*. SCAN is used instead of
// KEYS so a large catalogue cannot stall the server.
func (c *Client) KeysByPrefix(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	iter := c.rdb.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, store.Transport("SCAN "+prefix, err)
	}
	return keys, nil
}

func (c *Client) HashSet(ctx context.Context, key string, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	args := make(map[string]interface{}, len(fields))
	for f, v := range fields {
		args[f] = v
	}
	if err := c.rdb.HSet(ctx, key, args).Err(); err != nil {
		return store.Transport("HSET "+key, err)
	}
	return nil
}

func (c *Client) HashGetAll(ctx context.Context, key string) (map[string]string, error) {
	fields, err := c.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, store.Transport("HGETALL "+key, err)
	}
	return fields, nil
}

func (c *Client) HashSetField(ctx context.Context, key, field, value string) error {
	if err := c.rdb.HSet(ctx, key, field, value).Err(); err != nil {
		return store.Transport("HSET "+key+" "+field, err)
	}
	return nil
}

func (c *Client) ZAddIfAbsent(ctx context.Context, key string, score int64, member string) (bool, error) {
	added, err := c.rdb.ZAddNX(ctx, key, goredis.Z{Score: float64(score), Member: member}).Result()
	if err != nil {
		return false, store.Transport("ZADD NX "+key, err)
	}
	return added > 0, nil
}

func (c *Client) ZRangeByScoreAsc(ctx context.Context, key string, min, max int64, limit int64) ([]string, error) {
	rng := &goredis.ZRangeBy{
		Min: strconv.FormatInt(min, 10),
		Max: strconv.FormatInt(max, 10),
	}
	if limit > 0 {
		rng.Count = limit
	}
	members, err := c.rdb.ZRangeByScore(ctx, key, rng).Result()
	if err != nil {
		return nil, store.Transport("ZRANGEBYSCORE "+key, err)
	}
	return members, nil
}

func (c *Client) ZRemMember(ctx context.Context, key, member string) error {
	if err := c.rdb.ZRem(ctx, key, member).Err(); err != nil {
		return store.Transport("ZREM "+key, err)
	}
	return nil
}

func (c *Client) ZRangeAll(ctx context.Context, key string) ([]string, error) {
	members, err := c.rdb.ZRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, store.Transport("ZRANGE "+key, err)
	}
	return members, nil
}

func (c *Client) ZRangeAllWithScores(ctx context.Context, key string) ([]store.ZMember, error) {
	zs, err := c.rdb.ZRangeWithScores(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, store.Transport("ZRANGE WITHSCORES "+key, err)
	}
	members := make([]store.ZMember, 0, len(zs))
	for _, z := range zs {
		m, _ := z.Member.(string)
		members = append(members, store.ZMember{Member: m, Score: int64(z.Score)})
	}
	return members, nil
}

func (c *Client) ZRemRangeByScore(ctx context.Context, key string, min, max int64) (int64, error) {
	removed, err := c.rdb.ZRemRangeByScore(ctx, key,
		strconv.FormatInt(min, 10), strconv.FormatInt(max, 10)).Result()
	if err != nil {
		return 0, store.Transport("ZREMRANGEBYSCORE "+key, err)
	}
	return removed, nil
}

func (c *Client) Close() error {
	return c.rdb.Close()
}
