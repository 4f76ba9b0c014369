package persistence

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"time"

	"TokenLedger/internal/ledger"

	"github.com/go-redis/redis/v8"
)

const redisScanCount = 256

// RedisStore keeps ledger entries as plain string keys
// "<namespace>:<hex(key)>". A journal is applied with MULTI/EXEC.
type RedisStore struct {
	client    *redis.Client
	namespace string
	timeout   time.Duration
}

func NewRedisStore(client *redis.Client, namespace string) *RedisStore {
	return &RedisStore{
		client:    client,
		namespace: namespace,
		timeout:   defaultQueryTimeout,
	}
}

func (s *RedisStore) redisKey(key []byte) string {
	return s.namespace + ":" + hex.EncodeToString(key)
}

func (s *RedisStore) Get(key []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	value, err := s.client.Get(ctx, s.redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return value, err
}

func (s *RedisStore) Commit(entries []ledger.Entry) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, e := range entries {
			pipe.Set(ctx, s.redisKey(e.Key), e.Value, 0)
		}
		return nil
	})
	return err
}

// Scan visits entries under prefix in key order. The namespace must not
// contain glob metacharacters.
func (s *RedisStore) Scan(prefix []byte, fn func(key, value []byte) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	var keys []string
	iter := s.client.Scan(ctx, 0, s.redisKey(prefix)+"*", redisScanCount).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan %x: %w", prefix, err)
	}
	sort.Strings(keys)

	for start := 0; start < len(keys); start += redisScanCount {
		end := start + redisScanCount
		if end > len(keys) {
			end = len(keys)
		}
		chunk := keys[start:end]

		values, err := s.client.MGet(ctx, chunk...).Result()
		if err != nil {
			return fmt.Errorf("mget: %w", err)
		}
		for i, v := range values {
			str, ok := v.(string)
			if !ok {
				continue // deleted between SCAN and MGET
			}
			key, err := hex.DecodeString(chunk[i][len(s.namespace)+1:])
			if err != nil {
				return fmt.Errorf("malformed redis key %q: %w", chunk[i], err)
			}
			if err := fn(key, []byte(str)); err != nil {
				return err
			}
		}
	}
	return nil
}
