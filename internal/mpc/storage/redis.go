package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/kashguard/go-threshold-engine/internal/mpc/session"
)

const recordKeyPrefix = "threshold:session:"

// RedisStore 基于 Redis 的会话记录存储
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore 创建 Redis 存储实例
func NewRedisStore(client *redis.Client) StatusStore {
	return &RedisStore{client: client}
}

// SaveRecord 保存会话记录
func (s *RedisStore) SaveRecord(ctx context.Context, record *session.Record, ttl time.Duration) error {
	data, err := json.Marshal(record)
	if err != nil {
		return errors.Wrap(err, "failed to marshal session record")
	}

	key := recordKeyPrefix + record.SessionID
	if err := s.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return errors.Wrap(err, "failed to save session record")
	}
	return nil
}

// GetRecord 获取会话记录
func (s *RedisStore) GetRecord(ctx context.Context, sessionID string) (*session.Record, error) {
	data, err := s.client.Get(ctx, recordKeyPrefix+sessionID).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrRecordNotFound
		}
		return nil, errors.Wrap(err, "failed to get session record")
	}

	var record session.Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal session record")
	}
	return &record, nil
}

// ListRecords 遍历当前保留的会话记录
func (s *RedisStore) ListRecords(ctx context.Context) ([]*session.Record, error) {
	var records []*session.Record
	iter := s.client.Scan(ctx, 0, recordKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		data, err := s.client.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			if err == redis.Nil {
				continue // 扫描与过期之间的竞态
			}
			return nil, errors.Wrap(err, "failed to get session record")
		}
		var record session.Record
		if err := json.Unmarshal(data, &record); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal session record")
		}
		records = append(records, &record)
	}
	if err := iter.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to scan session records")
	}
	return records, nil
}

// DeleteRecord 删除会话记录
func (s *RedisStore) DeleteRecord(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, recordKeyPrefix+sessionID).Err(); err != nil {
		return errors.Wrap(err, "failed to delete session record")
	}
	return nil
}
