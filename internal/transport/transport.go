// Package transport 抽象节点间的不可靠 pub/sub 传输
//
// 传输层只负责投递字节并断言发送方身份；协议语义（quorum 校验、
// 会话路由、去重）由上层处理。响应类消息按会话进入收件箱，
// 请求类消息交给节点注册的处理器
package transport

import (
	"context"
	"time"

	"github.com/kashguard/go-threshold-engine/internal/mpc/message"
)

// Broadcast 作为 Publish 的目标时表示发给全部对端
const Broadcast uint8 = 0

// Envelope 带发送方身份的已解码消息
// From 由传输层断言，不取自消息体，上层据此检测身份伪造
type Envelope struct {
	From uint8
	Msg  message.Message
}

// Handler 处理入站请求消息，返回非 nil 时由传输层回发给请求方
type Handler func(ctx context.Context, env Envelope) message.Message

// Transport 节点侧传输接口
type Transport interface {
	// Self 返回本节点参与者标识
	Self() uint8

	// Publish 向目标节点（或 Broadcast）发送消息，只保证尽力投递
	Publish(ctx context.Context, to uint8, m message.Message) error

	// AwaitResponses 等待指定会话中 want 类型的响应，按发送方去重，
	// 凑满 min 个不同发送方即返回；超时返回已收到的部分及超时错误
	AwaitResponses(ctx context.Context, sessionID string, want message.Type, min int, timeout time.Duration) ([]Envelope, error)

	// SetHandler 注册入站请求处理器，必须在收发开始前调用
	SetHandler(h Handler)

	// CloseSession 释放会话收件箱，之后到达的该会话响应被丢弃
	CloseSession(sessionID string)

	// Close 关闭传输，在途投递被丢弃
	Close() error
}
