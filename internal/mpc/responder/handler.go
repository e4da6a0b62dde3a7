// Package responder 实现协议请求的响应者侧处理
//
// 处理器对每条入站请求独立决策：合法则返回响应消息，
// 非法（畸形、quorum 之外、身份不符、nonce 重用）则丢弃并记录，
// 绝不让单条坏消息影响其他会话
package responder

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/kashguard/go-threshold-engine/internal/frost"
	"github.com/kashguard/go-threshold-engine/internal/mpc/codec"
	"github.com/kashguard/go-threshold-engine/internal/mpc/message"
	"github.com/kashguard/go-threshold-engine/internal/mpc/protocol"
	"github.com/kashguard/go-threshold-engine/internal/mpc/session"
	"github.com/kashguard/go-threshold-engine/internal/transport"
)

// Handler 响应者消息处理器
type Handler struct {
	logger zerolog.Logger
	share  *frost.KeyShare
	store  *session.Store
}

// NewHandler 创建响应者处理器
func NewHandler(logger zerolog.Logger, share *frost.KeyShare, store *session.Store) *Handler {
	return &Handler{
		logger: logger.With().Str("component", "responder").Uint8("participant_id", share.ID).Logger(),
		share:  share,
		store:  store,
	}
}

// Handle 分发入站请求，返回 nil 表示丢弃
func (h *Handler) Handle(ctx context.Context, env transport.Envelope) message.Message {
	switch req := env.Msg.(type) {
	case *message.SignRequest:
		return h.handleSignRequest(env.From, req)
	case *message.CommitmentRequest:
		return h.handleCommitmentRequest(env.From, req)
	case *message.SigningPackage:
		return h.handleSigningPackage(env.From, req)
	case *message.EcdhRequest:
		return h.handleEcdhRequest(env.From, req)
	case *message.Ping:
		return &message.Pong{SessionID: req.SessionID, From: h.share.ID}
	default:
		h.logger.Debug().Str("type", string(env.Msg.Type())).Msg("dropping unexpected message")
		return nil
	}
}

// validateRequest 请求方身份与 quorum 成员资格的公共校验
func (h *Handler) validateRequest(from uint8, sessionID string, coordinatorID uint8, quorum []uint8) ([]uint8, error) {
	if from != coordinatorID {
		return nil, errors.Errorf("coordinator claims %d but transport asserts %d", coordinatorID, from)
	}
	normalized, err := protocol.NormalizeQuorum(quorum, h.share.Threshold)
	if err != nil {
		return nil, err
	}
	if !protocol.QuorumContains(normalized, h.share.ID) {
		return nil, errors.New("not a member of the requested quorum")
	}
	if !protocol.QuorumContains(normalized, coordinatorID) {
		return nil, errors.New("coordinator not a member of its own quorum")
	}
	return normalized, nil
}

// handleSignRequest 单轮签名，仅接受 t=2
// nonce 槽位按会话登记后立即消费；同一会话的重放请求命中已消费
// 的槽位而被拒绝，绝不重新生成 nonce
func (h *Handler) handleSignRequest(from uint8, req *message.SignRequest) message.Message {
	logger := h.logger.With().Str("session_id", req.SessionID).Logger()
	if h.share.Threshold != 2 {
		logger.Warn().Int("threshold", h.share.Threshold).Msg("dropping one-shot sign request, threshold requires two-phase flow")
		return nil
	}
	if _, err := h.validateRequest(from, req.SessionID, req.CoordinatorID, req.Quorum); err != nil {
		logger.Debug().Err(err).Msg("dropping sign request")
		return nil
	}

	msgHash, err := eventHash(req.EventHash)
	if err != nil {
		logger.Debug().Err(err).Msg("dropping sign request")
		return nil
	}
	coordinatorCommitment, err := codec.DecodeCommitment(req.Commitment)
	if err != nil {
		logger.Debug().Err(err).Msg("dropping sign request with malformed commitment")
		return nil
	}

	ownCommitment, err := h.store.GetOrCreateNonce(req.SessionID)
	if err != nil {
		logger.Warn().Err(err).Msg("refusing sign request")
		return nil
	}
	nonce, err := h.store.ConsumeNonce(req.SessionID)
	if err != nil {
		logger.Warn().Err(err).Msg("refusing sign request")
		return nil
	}
	defer nonce.Zero()

	commitments := []frost.ParticipantCommitment{
		{ParticipantID: req.CoordinatorID, Commitment: coordinatorCommitment},
		{ParticipantID: h.share.ID, Commitment: ownCommitment},
	}
	share, err := frost.Sign(h.share, nonce, msgHash, commitments)
	if err != nil {
		logger.Warn().Err(err).Msg("one-shot signing failed")
		return nil
	}

	commitmentBytes, err := codec.EncodeCommitment(ownCommitment)
	if err != nil {
		logger.Error().Err(err).Msg("failed to encode commitment")
		return nil
	}
	logger.Debug().Msg("answered one-shot sign request")
	return &message.SignResponse{
		SessionID:     req.SessionID,
		ParticipantID: h.share.ID,
		Commitment:    commitmentBytes,
		PartialSig:    codec.EncodeScalar(&share.Z),
	}
}

// handleCommitmentRequest 两阶段第一步：登记 nonce 槽位并返回承诺
func (h *Handler) handleCommitmentRequest(from uint8, req *message.CommitmentRequest) message.Message {
	logger := h.logger.With().Str("session_id", req.SessionID).Logger()
	if _, err := h.validateRequest(from, req.SessionID, req.CoordinatorID, req.Quorum); err != nil {
		logger.Debug().Err(err).Msg("dropping commitment request")
		return nil
	}
	if _, err := eventHash(req.EventHash); err != nil {
		logger.Debug().Err(err).Msg("dropping commitment request")
		return nil
	}

	commitment, err := h.store.GetOrCreateNonce(req.SessionID)
	if err != nil {
		logger.Warn().Err(err).Msg("cannot provision nonce for session")
		return nil
	}
	commitmentBytes, err := codec.EncodeCommitment(commitment)
	if err != nil {
		logger.Error().Err(err).Msg("failed to encode commitment")
		return nil
	}
	logger.Debug().Msg("answered commitment request")
	return &message.CommitmentResponse{
		SessionID:     req.SessionID,
		ParticipantID: h.share.ID,
		Commitment:    commitmentBytes,
	}
}

// handleSigningPackage 两阶段第二步：恰好一次地消费 nonce 并出分片
func (h *Handler) handleSigningPackage(from uint8, pkg *message.SigningPackage) message.Message {
	logger := h.logger.With().Str("session_id", pkg.SessionID).Logger()

	normalized, err := protocol.NormalizeQuorum(pkg.Quorum, h.share.Threshold)
	if err != nil || !protocol.QuorumContains(normalized, h.share.ID) || !protocol.QuorumContains(normalized, from) {
		logger.Debug().Msg("dropping signing package outside quorum")
		h.store.Abort(pkg.SessionID)
		return nil
	}

	msgHash, err := eventHash(pkg.EventHash)
	if err != nil {
		logger.Debug().Err(err).Msg("dropping malformed signing package")
		return nil
	}

	var ownCommitment *frost.Commitment
	commitments := make([]frost.ParticipantCommitment, 0, len(pkg.Commitments))
	for _, wc := range pkg.Commitments {
		commitment, err := codec.DecodeCommitment(wc.Commitment)
		if err != nil {
			logger.Debug().Err(err).Uint8("from_participant", wc.ParticipantID).Msg("dropping signing package with malformed commitment")
			return nil
		}
		if wc.ParticipantID == h.share.ID {
			ownCommitment = commitment
		}
		commitments = append(commitments, frost.ParticipantCommitment{ParticipantID: wc.ParticipantID, Commitment: commitment})
	}
	if ownCommitment == nil {
		logger.Debug().Msg("dropping signing package missing own commitment")
		return nil
	}

	// 包内登记的本方承诺必须与槽位一致；不一致说明包被篡改或
	// 串了会话，此时不消费 nonce，等待真正的签名包
	stored, err := h.store.Commitment(pkg.SessionID)
	if err != nil {
		logger.Warn().Err(err).Msg("refusing signing package")
		return nil
	}
	if !ownCommitment.Equal(stored) {
		logger.Warn().Msg("dropping signing package with mismatched own commitment")
		return nil
	}

	nonce, err := h.store.ConsumeNonce(pkg.SessionID)
	if err != nil {
		// nonce 重用或未知会话都不可恢复，直接丢弃
		logger.Warn().Err(err).Msg("refusing signing package")
		return nil
	}
	defer nonce.Zero()

	share, err := frost.Sign(h.share, nonce, msgHash, commitments)
	if err != nil {
		logger.Warn().Err(err).Msg("signing failed, session aborted")
		h.store.Abort(pkg.SessionID)
		return nil
	}

	logger.Debug().Msg("answered signing package")
	return &message.PartialSignature{
		SessionID:     pkg.SessionID,
		ParticipantID: h.share.ID,
		PartialSig:    codec.EncodeScalar(&share.Z),
	}
}

// handleEcdhRequest 无状态单轮 ECDH
func (h *Handler) handleEcdhRequest(from uint8, req *message.EcdhRequest) message.Message {
	logger := h.logger.With().Str("session_id", req.SessionID).Logger()
	quorum, err := h.validateRequest(from, req.SessionID, req.CoordinatorID, req.Quorum)
	if err != nil {
		logger.Debug().Err(err).Msg("dropping ecdh request")
		return nil
	}
	if len(req.TargetPubkey) != 32 {
		logger.Debug().Int("len", len(req.TargetPubkey)).Msg("dropping ecdh request with malformed target")
		return nil
	}

	var targetX [32]byte
	copy(targetX[:], req.TargetPubkey)
	partial, err := frost.PartialEcdh(h.share, quorum, targetX)
	if err != nil {
		logger.Warn().Err(err).Msg("ecdh partial computation failed")
		return nil
	}
	partialBytes, err := codec.EncodePoint(partial)
	if err != nil {
		logger.Error().Err(err).Msg("failed to encode ecdh partial")
		return nil
	}
	logger.Debug().Msg("answered ecdh request")
	return &message.EcdhResponse{
		SessionID:     req.SessionID,
		ParticipantID: h.share.ID,
		Partial:       partialBytes,
	}
}

func eventHash(data []byte) ([32]byte, error) {
	var h [32]byte
	if len(data) != 32 {
		return h, errors.Errorf("event hash must be 32 bytes, got %d", len(data))
	}
	copy(h[:], data)
	return h, nil
}

// handlerFunc 以 transport.Handler 形式暴露 Handle
func (h *Handler) handlerFunc() transport.Handler {
	return func(ctx context.Context, env transport.Envelope) message.Message {
		return h.Handle(ctx, env)
	}
}

// Register 将处理器挂到传输上
func (h *Handler) Register(tr transport.Transport) {
	tr.SetHandler(h.handlerFunc())
}
