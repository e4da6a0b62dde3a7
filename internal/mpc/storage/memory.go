package storage

import (
	"context"
	"sync"
	"time"

	"github.com/kashguard/go-threshold-engine/internal/mpc/session"
)

// MemoryStore 进程内会话记录存储，单节点部署与测试用
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]memoryRecord
}

type memoryRecord struct {
	record    *session.Record
	expiresAt time.Time
}

// NewMemoryStore 创建内存存储实例
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]memoryRecord)}
}

var _ StatusStore = (*MemoryStore)(nil)

// SaveRecord 保存会话记录
func (s *MemoryStore) SaveRecord(_ context.Context, record *session.Record, ttl time.Duration) error {
	clone := *record
	s.mu.Lock()
	s.records[record.SessionID] = memoryRecord{record: &clone, expiresAt: time.Now().Add(ttl)}
	s.mu.Unlock()
	return nil
}

// GetRecord 获取会话记录
func (s *MemoryStore) GetRecord(_ context.Context, sessionID string) (*session.Record, error) {
	s.mu.RLock()
	entry, ok := s.records[sessionID]
	s.mu.RUnlock()
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, ErrRecordNotFound
	}
	clone := *entry.record
	return &clone, nil
}

// ListRecords 列出未过期的会话记录
func (s *MemoryStore) ListRecords(_ context.Context) ([]*session.Record, error) {
	now := time.Now()
	s.mu.RLock()
	defer s.mu.RUnlock()
	records := make([]*session.Record, 0, len(s.records))
	for _, entry := range s.records {
		if now.After(entry.expiresAt) {
			continue
		}
		clone := *entry.record
		records = append(records, &clone)
	}
	return records, nil
}

// DeleteRecord 删除会话记录
func (s *MemoryStore) DeleteRecord(_ context.Context, sessionID string) error {
	s.mu.Lock()
	delete(s.records, sessionID)
	s.mu.Unlock()
	return nil
}
