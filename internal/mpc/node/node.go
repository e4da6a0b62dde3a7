// Package node 将协调者、响应者与传输组装成单个参与者节点
package node

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/kashguard/go-threshold-engine/internal/frost"
	"github.com/kashguard/go-threshold-engine/internal/mpc/coordinator"
	"github.com/kashguard/go-threshold-engine/internal/mpc/message"
	"github.com/kashguard/go-threshold-engine/internal/mpc/responder"
	"github.com/kashguard/go-threshold-engine/internal/mpc/session"
	"github.com/kashguard/go-threshold-engine/internal/mpc/storage"
	"github.com/kashguard/go-threshold-engine/internal/transport"
)

// Config 节点配置
type Config struct {
	SignTimeout time.Duration
	EcdhTimeout time.Duration
	PingTimeout time.Duration
	SessionTTL  time.Duration
	StatusTTL   time.Duration
}

// Node 单个阈值签名参与者
// 同一节点既可作为协调者发起会话，也随时响应他人的请求
type Node struct {
	logger      zerolog.Logger
	share       *frost.KeyShare
	transport   transport.Transport
	store       *session.Store
	coordinator *coordinator.Service
	peers       *PeerRegistry
	cfg         Config
}

// New 创建并启动节点，响应者处理器立即挂上传输
func New(logger zerolog.Logger, share *frost.KeyShare, tr transport.Transport, status storage.StatusStore, cfg Config) (*Node, error) {
	if err := share.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid key share")
	}

	store := session.NewStore(logger, cfg.SessionTTL)
	coord, err := coordinator.NewService(logger, share, tr, status, coordinator.Config{
		SignTimeout: cfg.SignTimeout,
		EcdhTimeout: cfg.EcdhTimeout,
		StatusTTL:   cfg.StatusTTL,
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	peerIDs := make([]uint8, 0, share.Total-1)
	for i := 1; i <= share.Total; i++ {
		if uint8(i) != share.ID {
			peerIDs = append(peerIDs, uint8(i))
		}
	}

	n := &Node{
		logger:      logger.With().Str("component", "node").Uint8("participant_id", share.ID).Logger(),
		share:       share,
		transport:   tr,
		store:       store,
		coordinator: coord,
		peers:       NewPeerRegistry(peerIDs),
		cfg:         cfg,
	}
	responder.NewHandler(logger, share, store).Register(tr)
	return n, nil
}

// Self 本节点参与者标识
func (n *Node) Self() uint8 {
	return n.share.ID
}

// GroupKey 群公钥的 33 字节压缩形式
func (n *Node) GroupKey() []byte {
	return n.share.GroupKey.SerializeCompressed()
}

// Peers 对端注册表
func (n *Node) Peers() *PeerRegistry {
	return n.peers
}

// selectQuorum 组 quorum：本节点加上最优先的 t-1 个对端
func (n *Node) selectQuorum() []uint8 {
	quorum := []uint8{n.share.ID}
	for _, id := range n.peers.Candidates() {
		if len(quorum) == n.share.Threshold {
			break
		}
		quorum = append(quorum, id)
	}
	return quorum
}

// Sign 对消息做 SHA-256 后签名，quorum 自动选取
func (n *Node) Sign(ctx context.Context, msg []byte) ([]byte, error) {
	return n.coordinator.Sign(ctx, msg, n.selectQuorum())
}

// SignHash 对 32 字节哈希签名，quorum 自动选取
func (n *Node) SignHash(ctx context.Context, msgHash [32]byte) ([]byte, error) {
	return n.coordinator.SignHash(ctx, msgHash, n.selectQuorum())
}

// SignHashWith 对 32 字节哈希签名，quorum 由调用方指定
func (n *Node) SignHashWith(ctx context.Context, msgHash [32]byte, quorum []uint8) ([]byte, error) {
	return n.coordinator.SignHash(ctx, msgHash, quorum)
}

// Ecdh 与 x-only 目标公钥做阈值 ECDH
func (n *Node) Ecdh(ctx context.Context, targetX [32]byte) ([32]byte, error) {
	return n.coordinator.Ecdh(ctx, targetX, n.selectQuorum())
}

// EcdhWith 阈值 ECDH，quorum 由调用方指定
func (n *Node) EcdhWith(ctx context.Context, targetX [32]byte, quorum []uint8) ([32]byte, error) {
	return n.coordinator.Ecdh(ctx, targetX, quorum)
}

// Ping 探测对端存活并记录延迟
func (n *Node) Ping(ctx context.Context, peer uint8) (time.Duration, error) {
	sessionID := session.NewSessionID()
	defer n.transport.CloseSession(sessionID)

	started := time.Now()
	if err := n.transport.Publish(ctx, peer, &message.Ping{SessionID: sessionID, From: n.share.ID}); err != nil {
		n.peers.MarkFaulty(peer)
		return 0, errors.Wrap(err, "publish ping")
	}

	envs, err := n.transport.AwaitResponses(ctx, sessionID, message.TypePong, 1, n.cfg.PingTimeout)
	if err != nil || len(envs) == 0 {
		n.peers.MarkFaulty(peer)
		return 0, errors.Errorf("peer %d did not answer ping", peer)
	}

	latency := time.Since(started)
	n.peers.MarkAlive(peer, latency)
	return latency, nil
}

// PingAll 探测全部对端
func (n *Node) PingAll(ctx context.Context) {
	for _, peer := range n.peers.List() {
		if _, err := n.Ping(ctx, peer.ParticipantID); err != nil {
			n.logger.Debug().Err(err).Uint8("peer", peer.ParticipantID).Msg("ping failed")
		}
	}
}

// Close 释放节点资源并清零未消费的 nonce
func (n *Node) Close() error {
	n.store.Close()
	return n.transport.Close()
}
