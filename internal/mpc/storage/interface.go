package storage

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/kashguard/go-threshold-engine/internal/mpc/session"
)

// ErrRecordNotFound 请求的会话记录不存在或已过期
var ErrRecordNotFound = errors.New("session record not found")

// StatusStore 会话审计记录存储接口
//
// 只存放非机密的会话状态（quorum、时间、最终结果），用于运维观测。
// 密钥分片与 nonce 绝不进入这里
type StatusStore interface {
	// SaveRecord 保存会话记录，带 TTL
	SaveRecord(ctx context.Context, record *session.Record, ttl time.Duration) error

	// GetRecord 获取会话记录
	GetRecord(ctx context.Context, sessionID string) (*session.Record, error)

	// ListRecords 列出当前保留的全部会话记录
	ListRecords(ctx context.Context) ([]*session.Record, error)

	// DeleteRecord 删除会话记录
	DeleteRecord(ctx context.Context, sessionID string) error
}
