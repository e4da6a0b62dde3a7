package transport

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/kashguard/go-threshold-engine/internal/mpc/message"
)

// inboxDepth 单个会话收件箱的缓冲深度
// 响应数量上界是 quorum 规模加上重复投递，64 留足余量
const inboxDepth = 64

// Hub 进程内中继，在注册的 Link 之间投递消息
// 投递是异步且不保序的，模拟真实中继的弱保证
type Hub struct {
	mu    sync.RWMutex
	links map[uint8]*Link
}

// NewHub 创建空中继
func NewHub() *Hub {
	return &Hub{links: make(map[uint8]*Link)}
}

// Link 为参与者注册传输端点，重复注册同一标识会替换旧端点
func (h *Hub) Link(id uint8, logger zerolog.Logger) *Link {
	l := &Link{
		hub:     h,
		id:      id,
		logger:  logger.With().Uint8("participant_id", id).Logger(),
		inboxes: make(map[string]chan Envelope),
	}
	h.mu.Lock()
	h.links[id] = l
	h.mu.Unlock()
	return l
}

// deliver 将编码后的消息异步投递到目标端点
func (h *Hub) deliver(from, to uint8, data []byte) {
	h.mu.RLock()
	target, ok := h.links[to]
	h.mu.RUnlock()
	if !ok {
		return
	}
	go target.receive(from, data)
}

// peers 返回除 self 外的全部已注册参与者
func (h *Hub) peers(self uint8) []uint8 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]uint8, 0, len(h.links))
	for id := range h.links {
		if id != self {
			ids = append(ids, id)
		}
	}
	return ids
}

// remove 注销端点
func (h *Hub) remove(id uint8) {
	h.mu.Lock()
	delete(h.links, id)
	h.mu.Unlock()
}

// Link 单个参与者的传输端点
type Link struct {
	hub    *Hub
	id     uint8
	logger zerolog.Logger

	handlerMu sync.RWMutex
	handler   Handler

	mu      sync.Mutex
	closed  bool
	inboxes map[string]chan Envelope
}

var _ Transport = (*Link)(nil)

func (l *Link) Self() uint8 {
	return l.id
}

func (l *Link) SetHandler(h Handler) {
	l.handlerMu.Lock()
	l.handler = h
	l.handlerMu.Unlock()
}

func (l *Link) Publish(ctx context.Context, to uint8, m message.Message) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "publish aborted")
	}

	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if closed {
		return errors.New("transport closed")
	}

	data, err := message.Encode(m)
	if err != nil {
		return errors.Wrap(err, "encode message")
	}

	if to == Broadcast {
		for _, peer := range l.hub.peers(l.id) {
			l.hub.deliver(l.id, peer, data)
		}
		return nil
	}
	l.hub.deliver(l.id, to, data)
	return nil
}

// receive 解码入站消息并按类型路由
// 畸形消息在此丢弃，不会打断任何会话
func (l *Link) receive(from uint8, data []byte) {
	m, err := message.Decode(data)
	if err != nil {
		l.logger.Debug().Err(err).Uint8("from", from).Msg("dropping malformed message")
		return
	}

	env := Envelope{From: from, Msg: m}
	if message.IsResponse(m.Type()) {
		l.routeResponse(env)
		return
	}

	l.handlerMu.RLock()
	handler := l.handler
	l.handlerMu.RUnlock()
	if handler == nil {
		return
	}

	if resp := handler(context.Background(), env); resp != nil {
		if err := l.Publish(context.Background(), from, resp); err != nil {
			l.logger.Debug().Err(err).Uint8("to", from).Msg("failed to publish response")
		}
	}
}

// routeResponse 将响应投入会话收件箱，收件箱不存在则惰性创建
// 惰性创建覆盖响应先于 AwaitResponses 到达的竞态
func (l *Link) routeResponse(env Envelope) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	inbox, ok := l.inboxes[env.Msg.Session()]
	if !ok {
		inbox = make(chan Envelope, inboxDepth)
		l.inboxes[env.Msg.Session()] = inbox
	}
	select {
	case inbox <- env:
	default:
		l.logger.Warn().Str("session_id", env.Msg.Session()).Msg("session inbox full, dropping response")
	}
}

// sessionInbox 取出（或惰性创建）会话收件箱
func (l *Link) sessionInbox(sessionID string) chan Envelope {
	l.mu.Lock()
	defer l.mu.Unlock()
	inbox, ok := l.inboxes[sessionID]
	if !ok {
		inbox = make(chan Envelope, inboxDepth)
		l.inboxes[sessionID] = inbox
	}
	return inbox
}

func (l *Link) AwaitResponses(ctx context.Context, sessionID string, want message.Type, min int, timeout time.Duration) ([]Envelope, error) {
	inbox := l.sessionInbox(sessionID)
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	seen := make(map[uint8]struct{})
	collected := make([]Envelope, 0, min)
	for len(collected) < min {
		select {
		case env := <-inbox:
			if env.Msg.Type() != want {
				continue
			}
			if _, dup := seen[env.From]; dup {
				continue
			}
			seen[env.From] = struct{}{}
			collected = append(collected, env)
		case <-timer.C:
			return collected, errors.Errorf("timed out waiting for %s: got %d of %d", want, len(collected), min)
		case <-ctx.Done():
			return collected, errors.Wrap(ctx.Err(), "await responses aborted")
		}
	}
	return collected, nil
}

func (l *Link) CloseSession(sessionID string) {
	l.mu.Lock()
	delete(l.inboxes, sessionID)
	l.mu.Unlock()
}

func (l *Link) Close() error {
	l.mu.Lock()
	l.closed = true
	l.inboxes = make(map[string]chan Envelope)
	l.mu.Unlock()
	l.hub.remove(l.id)
	return nil
}
