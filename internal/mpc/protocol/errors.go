package protocol

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ProtocolError 协议层错误，携带会话与参与者上下文
type ProtocolError struct {
	Type         ErrorType
	Message      string
	SessionID    string
	Participants []uint8 // 相关参与者（超时未响应、发送畸形消息等）
	Original     error
}

type ErrorType int

const (
	ErrTypeUnknown ErrorType = iota
	ErrTypeTimeout
	ErrTypeInsufficientParticipants
	ErrTypeMalformed
	ErrTypeUnknownSession
	ErrTypeNonceReuse
	ErrTypeAggregation
	ErrTypeNetwork
)

func (e *ProtocolError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[%s] %s", e.Type.String(), e.Message))
	if len(e.Participants) > 0 {
		sb.WriteString(fmt.Sprintf(" (participants: %v)", e.Participants))
	}
	if e.SessionID != "" {
		sb.WriteString(fmt.Sprintf(" [session: %s]", e.SessionID))
	}
	if e.Original != nil {
		sb.WriteString(fmt.Sprintf(": %v", e.Original))
	}
	return sb.String()
}

func (e *ProtocolError) Unwrap() error {
	return e.Original
}

func (t ErrorType) String() string {
	switch t {
	case ErrTypeTimeout:
		return "TIMEOUT"
	case ErrTypeInsufficientParticipants:
		return "INSUFFICIENT_PARTICIPANTS"
	case ErrTypeMalformed:
		return "MALFORMED"
	case ErrTypeUnknownSession:
		return "UNKNOWN_SESSION"
	case ErrTypeNonceReuse:
		return "NONCE_REUSE"
	case ErrTypeAggregation:
		return "AGGREGATION"
	case ErrTypeNetwork:
		return "NETWORK"
	default:
		return "UNKNOWN"
	}
}

// NewTimeoutError 会话等待响应超时
func NewTimeoutError(sessionID string, missing []uint8, msg string) *ProtocolError {
	return &ProtocolError{
		Type:         ErrTypeTimeout,
		Message:      msg,
		SessionID:    sessionID,
		Participants: missing,
	}
}

// NewInsufficientParticipantsError quorum 规模不足以满足阈值
func NewInsufficientParticipantsError(sessionID string, msg string) *ProtocolError {
	return &ProtocolError{
		Type:      ErrTypeInsufficientParticipants,
		Message:   msg,
		SessionID: sessionID,
	}
}

// NewMalformedError 消息无法解析或字段非法
func NewMalformedError(sessionID string, err error) *ProtocolError {
	return &ProtocolError{
		Type:      ErrTypeMalformed,
		Message:   "malformed message",
		SessionID: sessionID,
		Original:  err,
	}
}

// NewUnknownSessionError 消息引用了不存在或已关闭的会话
func NewUnknownSessionError(sessionID string) *ProtocolError {
	return &ProtocolError{
		Type:      ErrTypeUnknownSession,
		Message:   "unknown session",
		SessionID: sessionID,
	}
}

// NewNonceReuseError nonce 已被消费，会话必须中止
func NewNonceReuseError(sessionID string) *ProtocolError {
	return &ProtocolError{
		Type:      ErrTypeNonceReuse,
		Message:   "signing nonce already consumed",
		SessionID: sessionID,
	}
}

// NewAggregationError 聚合出的签名未通过群公钥验证
func NewAggregationError(sessionID string, err error) *ProtocolError {
	return &ProtocolError{
		Type:      ErrTypeAggregation,
		Message:   "aggregated signature failed verification",
		SessionID: sessionID,
		Original:  err,
	}
}

// NewNetworkError 传输层发布失败
func NewNetworkError(sessionID string, err error) *ProtocolError {
	return &ProtocolError{
		Type:      ErrTypeNetwork,
		Message:   "network error",
		SessionID: sessionID,
		Original:  err,
	}
}

// IsType 判断错误链中是否存在指定类型的协议错误
func IsType(err error, t ErrorType) bool {
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe.Type == t
	}
	return false
}
