package session

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kashguard/go-threshold-engine/internal/frost"
	"github.com/kashguard/go-threshold-engine/internal/mpc/protocol"
)

// Store 响应者侧的一次性 nonce 槽位存储
//
// 槽位在收到承诺请求时创建，在收到签名包时恰好消费一次。
// 已消费的槽位保留到 TTL 过期，重放的签名包据此报 NONCE_REUSE
// 而不是 UNKNOWN_SESSION。nonce 从不离开进程内存
type Store struct {
	logger zerolog.Logger
	ttl    time.Duration

	mu    sync.Mutex
	slots map[string]*nonceSlot

	closeOnce sync.Once
	done      chan struct{}
}

// NewStore 创建存储并启动过期清理
func NewStore(logger zerolog.Logger, ttl time.Duration) *Store {
	ensureMetrics()
	s := &Store{
		logger: logger.With().Str("component", "session_store").Logger(),
		ttl:    ttl,
		slots:  make(map[string]*nonceSlot),
		done:   make(chan struct{}),
	}
	go s.janitor()
	return s
}

// GetOrCreateNonce 为会话创建 nonce 槽位并返回其公开承诺
// 重复的承诺请求返回同一承诺（幂等）；已消费的槽位报 nonce 重用
func (s *Store) GetOrCreateNonce(sessionID string) (*frost.Commitment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if slot, ok := s.slots[sessionID]; ok {
		if slot.consumed {
			nonceReuseCounter.Inc()
			return nil, protocol.NewNonceReuseError(sessionID)
		}
		return slot.commitment, nil
	}

	nonce, commitment, err := frost.NewNonce()
	if err != nil {
		return nil, err
	}
	s.slots[sessionID] = &nonceSlot{
		nonce:      nonce,
		commitment: commitment,
		createdAt:  time.Now(),
	}
	nonceSlotsGauge.Inc()
	return commitment, nil
}

// Commitment 返回会话槽位已登记的承诺，不改变消费状态
func (s *Store) Commitment(sessionID string) (*frost.Commitment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot, ok := s.slots[sessionID]
	if !ok {
		return nil, protocol.NewUnknownSessionError(sessionID)
	}
	if slot.consumed {
		return nil, protocol.NewNonceReuseError(sessionID)
	}
	return slot.commitment, nil
}

// ConsumeNonce 消费会话的 nonce，每个槽位只能成功一次
// 返回的 nonce 归调用方所有，用毕必须清零
func (s *Store) ConsumeNonce(sessionID string) (*frost.Nonce, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot, ok := s.slots[sessionID]
	if !ok {
		return nil, protocol.NewUnknownSessionError(sessionID)
	}
	if slot.consumed {
		nonceReuseCounter.Inc()
		return nil, protocol.NewNonceReuseError(sessionID)
	}

	nonce := slot.nonce
	slot.nonce = nil
	slot.consumed = true
	return nonce, nil
}

// Abort 丢弃会话槽位并清零未消费的 nonce
func (s *Store) Abort(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropLocked(sessionID)
}

func (s *Store) dropLocked(sessionID string) {
	slot, ok := s.slots[sessionID]
	if !ok {
		return
	}
	if slot.nonce != nil {
		slot.nonce.Zero()
	}
	delete(s.slots, sessionID)
	nonceSlotsGauge.Dec()
}

// janitor 周期回收过期槽位
func (s *Store) janitor() {
	interval := s.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.expire()
		case <-s.done:
			return
		}
	}
}

func (s *Store) expire() {
	cutoff := time.Now().Add(-s.ttl)
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, slot := range s.slots {
		if slot.createdAt.Before(cutoff) {
			s.logger.Debug().Str("session_id", id).Msg("expiring stale nonce slot")
			s.dropLocked(id)
		}
	}
}

// Close 停止清理并清零全部未消费 nonce
func (s *Store) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.mu.Lock()
		defer s.mu.Unlock()
		for id := range s.slots {
			s.dropLocked(id)
		}
	})
}
