package resultstore

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisPrefix = "livegraph:"

// appendScript bumps the key's sequence and pushes "seq:unixnano:data" onto
// the version list in one step, so concurrent writers never interleave.
//
// KEYS: sequence counter, version list, key set.
// ARGV: unix nanos, data, retention, result key.
var appendScript = redis.NewScript(`
local seq = redis.call('INCR', KEYS[1])
redis.call('LPUSH', KEYS[2], seq .. ':' .. ARGV[1] .. ':' .. ARGV[2])
local keep = tonumber(ARGV[3])
if keep > 0 then
	redis.call('LTRIM', KEYS[2], 0, keep - 1)
end
redis.call('SADD', KEYS[3], ARGV[4])
return seq
`)

// RedisStore keeps results in Redis, one list per key with the newest
// version at the head.
type RedisStore struct {
	client *redis.Client
	opts   options
	closed atomic.Bool
}

// NewRedisStore wraps client. The store owns the client and closes it.
func NewRedisStore(client *redis.Client, opts ...Option) *RedisStore {
	return &RedisStore{client: client, opts: buildOptions(opts)}
}

// OpenRedis connects to a redis:// or rediss:// URL.
func OpenRedis(url string, opts ...Option) (*RedisStore, error) {
	o, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewRedisStore(redis.NewClient(o), opts...), nil
}

func isRedisURL(target string) bool {
	return strings.HasPrefix(target, "redis://") || strings.HasPrefix(target, "rediss://")
}

func seqKey(key string) string  { return redisPrefix + "seq:" + key }
func listKey(key string) string { return redisPrefix + "results:" + key }
func keySet() string            { return redisPrefix + "keys" }

func (s *RedisStore) Put(ctx context.Context, key string, data []byte) (Record, error) {
	if s.closed.Load() {
		return Record{}, ErrStoreClosed
	}
	now := time.Now()
	seq, err := appendScript.Run(ctx, s.client,
		[]string{seqKey(key), listKey(key), keySet()},
		strconv.FormatInt(now.UnixNano(), 10), data, s.opts.retain, key,
	).Int()
	if err != nil {
		return Record{}, fmt.Errorf("redis put %s: %w", key, err)
	}
	return Record{Key: key, Sequence: seq, Timestamp: now, Data: slices.Clone(data)}, nil
}

func (s *RedisStore) Latest(ctx context.Context, key string) (Record, error) {
	if s.closed.Load() {
		return Record{}, ErrStoreClosed
	}
	raw, err := s.client.LIndex(ctx, listKey(key), 0).Result()
	if errors.Is(err, redis.Nil) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("redis latest %s: %w", key, err)
	}
	return decodeRedisRecord(key, raw)
}

func (s *RedisStore) History(ctx context.Context, key string, limit int) ([]Record, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	raws, err := s.client.LRange(ctx, listKey(key), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("redis history %s: %w", key, err)
	}
	out := make([]Record, 0, len(raws))
	for _, raw := range raws {
		rec, err := decodeRedisRecord(key, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *RedisStore) Keys(ctx context.Context) ([]string, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}
	keys, err := s.client.SMembers(ctx, keySet()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis keys: %w", err)
	}
	slices.Sort(keys)
	return keys, nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, listKey(key), seqKey(key))
		p.SRem(ctx, keySet(), key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis delete %s: %w", key, err)
	}
	return nil
}

// Close closes the client. It is idempotent.
func (s *RedisStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.client.Close()
}

func decodeRedisRecord(key, raw string) (Record, error) {
	parts := strings.SplitN(raw, ":", 3)
	if len(parts) != 3 {
		return Record{}, fmt.Errorf("redis record %s: malformed entry", key)
	}
	seq, err := strconv.Atoi(parts[0])
	if err != nil {
		return Record{}, fmt.Errorf("redis record %s: sequence: %w", key, err)
	}
	nanos, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("redis record %s: timestamp: %w", key, err)
	}
	return Record{Key: key, Sequence: seq, Timestamp: time.Unix(0, nanos), Data: []byte(parts[2])}, nil
}
