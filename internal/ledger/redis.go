package ledger

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix      = "bridge:"
	redisMaxTxRetries   = 5
	redisScanBatchCount = 100
)

// RedisStore keeps a ledger in redis. Validators sharing one server use distinct
// namespaces. Track uses SETNX and Transition an optimistic WATCH/MULTI transaction.
type RedisStore struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

func NewRedisStore(client *redis.Client, namespace string) *RedisStore {
	prefix := redisKeyPrefix
	if namespace != "" {
		prefix += namespace + ":"
	}
	return &RedisStore{client: client, prefix: prefix + "operation:", now: time.Now}
}

func (s *RedisStore) key(operationHash string) string {
	return s.prefix + operationHash
}

func (s *RedisStore) Track(ctx context.Context, rec *Record) error {
	r := newPending(rec, s.now())
	data, err := json.Marshal(&r)
	if err != nil {
		return errors.Wrap(err, "failed to marshal record")
	}
	ok, err := s.client.SetNX(ctx, s.key(rec.OperationHash), data, 0).Result()
	if err != nil {
		return errors.Wrap(err, "failed to track operation")
	}
	if !ok {
		return ErrDuplicate
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, operationHash string) (*Record, error) {
	data, err := s.client.Get(ctx, s.key(operationHash)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to get operation")
	}
	return decodeRecord(data)
}

func (s *RedisStore) Transition(ctx context.Context, operationHash string, from, to Status, mutate func(*Record)) (*Record, error) {
	key := s.key(operationHash)
	var out *Record
	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if err == redis.Nil {
				return ErrNotFound
			}
			return err
		}
		rec, err := decodeRecord(data)
		if err != nil {
			return err
		}
		if err := applyTransition(rec, from, to, mutate, s.now()); err != nil {
			return err
		}
		next, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, next, 0)
			return nil
		})
		if err == nil {
			out = rec
		}
		return err
	}

	for i := 0; i < redisMaxTxRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return out, nil
		}
		if err == redis.TxFailedErr {
			continue
		}
		return nil, err
	}
	return nil, errors.Errorf("transition of %s failed after %d retries", operationHash, redisMaxTxRetries)
}

func (s *RedisStore) List(ctx context.Context, statuses ...Status) ([]Record, error) {
	var out []Record
	iter := s.client.Scan(ctx, 0, s.prefix+"*", redisScanBatchCount).Iterator()
	for iter.Next(ctx) {
		data, err := s.client.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			return nil, errors.Wrap(err, "failed to get operation")
		}
		rec, err := decodeRecord(data)
		if err != nil {
			return nil, err
		}
		if matches(rec, statuses) {
			out = append(out, *rec)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to scan operations")
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
