package session

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/kashguard/go-threshold-engine/internal/frost"
)

// Kind 会话类型
type Kind string

const (
	KindSign Kind = "sign"
	KindEcdh Kind = "ecdh"
)

// Status 会话状态
type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusAborted   Status = "aborted"
	StatusTimeout   Status = "timeout"
)

// NewSessionID 生成 16 字节随机会话标识（32 个 hex 字符）
func NewSessionID() string {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand 不可用时进程没有继续运行的意义
		panic("session: crypto/rand unavailable: " + err.Error())
	}
	return hex.EncodeToString(buf[:])
}

// Record 会话的非机密审计记录，可落到外部状态存储
type Record struct {
	SessionID   string     `json:"session_id"`
	Kind        Kind       `json:"kind"`
	Status      Status     `json:"status"`
	Coordinator uint8      `json:"coordinator"`
	Quorum      []uint8    `json:"quorum"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	DurationMs  int        `json:"duration_ms"`
}

// nonceSlot 响应者侧的一次性 nonce 槽位
// nonce 只存在于进程内存，消费或过期时清零
type nonceSlot struct {
	nonce      *frost.Nonce
	commitment *frost.Commitment
	consumed   bool
	createdAt  time.Time
}
