// Package coordinator 实现签名与 ECDH 会话的协调者侧流程
//
// t=2 的签名走单轮：协调者的承诺随请求下发，响应者一次性返回
// 承诺与分片。t>2 必须走两阶段：先征集承诺，再广播签名包。
// ECDH 对任意 t 都是单轮
package coordinator

import (
	"context"
	"crypto/sha256"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/kashguard/go-threshold-engine/internal/frost"
	"github.com/kashguard/go-threshold-engine/internal/mpc/aggregate"
	"github.com/kashguard/go-threshold-engine/internal/mpc/codec"
	"github.com/kashguard/go-threshold-engine/internal/mpc/message"
	"github.com/kashguard/go-threshold-engine/internal/mpc/protocol"
	"github.com/kashguard/go-threshold-engine/internal/mpc/session"
	"github.com/kashguard/go-threshold-engine/internal/mpc/storage"
	"github.com/kashguard/go-threshold-engine/internal/transport"
)

// Config 协调者超时与留存配置
type Config struct {
	SignTimeout time.Duration
	EcdhTimeout time.Duration
	StatusTTL   time.Duration
}

// Service 协调者服务
type Service struct {
	logger    zerolog.Logger
	share     *frost.KeyShare
	transport transport.Transport
	status    storage.StatusStore
	cfg       Config
}

// NewService 创建协调者服务
func NewService(logger zerolog.Logger, share *frost.KeyShare, tr transport.Transport, status storage.StatusStore, cfg Config) (*Service, error) {
	if err := share.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid key share")
	}
	if share.ID != tr.Self() {
		return nil, errors.Errorf("key share participant %d does not match transport identity %d", share.ID, tr.Self())
	}
	return &Service{
		logger:    logger.With().Str("component", "coordinator").Uint8("participant_id", share.ID).Logger(),
		share:     share,
		transport: tr,
		status:    status,
		cfg:       cfg,
	}, nil
}

// awaitFailure 把等待失败区分为调用方取消与真正的超时
// 取消原样向上传递，只有截止时间到期才报 TIMEOUT
func awaitFailure(ctx context.Context, sessionID string, missing []uint8, phase string) error {
	if ctx.Err() != nil {
		return errors.Wrapf(ctx.Err(), "session %s aborted while %s", sessionID, phase)
	}
	return protocol.NewTimeoutError(sessionID, missing, phase)
}

// Sign 对消息做 SHA-256 后发起阈值签名
func (s *Service) Sign(ctx context.Context, msg []byte, quorum []uint8) ([]byte, error) {
	return s.SignHash(ctx, sha256.Sum256(msg), quorum)
}

// SignHash 发起阈值签名，返回 64 字节签名
// quorum 必须恰好 t 个参与者且包含本节点
func (s *Service) SignHash(ctx context.Context, msgHash [32]byte, quorum []uint8) ([]byte, error) {
	sessionID := session.NewSessionID()
	normalized, err := protocol.NormalizeQuorum(quorum, s.share.Threshold)
	if err != nil {
		return nil, protocol.NewInsufficientParticipantsError(sessionID, err.Error())
	}
	if !protocol.QuorumContains(normalized, s.share.ID) {
		return nil, protocol.NewInsufficientParticipantsError(sessionID, "coordinator must be part of the quorum")
	}

	logger := s.logger.With().Str("session_id", sessionID).Logger()
	logger.Info().Interface("quorum", normalized).Msg("starting signing session")

	started := time.Now()
	s.saveStatus(ctx, &session.Record{
		SessionID:   sessionID,
		Kind:        session.KindSign,
		Status:      session.StatusActive,
		Coordinator: s.share.ID,
		Quorum:      normalized,
		CreatedAt:   started,
	})
	defer s.transport.CloseSession(sessionID)

	var sig64 []byte
	if s.share.Threshold == 2 {
		sig64, err = s.signOneShot(ctx, logger, sessionID, msgHash, normalized)
	} else {
		sig64, err = s.signTwoPhase(ctx, logger, sessionID, msgHash, normalized)
	}

	elapsed := time.Since(started)
	if err != nil {
		status := session.StatusAborted
		if protocol.IsType(err, protocol.ErrTypeTimeout) {
			status = session.StatusTimeout
		}
		s.finishStatus(ctx, sessionID, session.KindSign, status, normalized, started)
		session.ObserveSession(session.KindSign, status, elapsed)
		logger.Warn().Err(err).Msg("signing session failed")
		return nil, err
	}

	s.finishStatus(ctx, sessionID, session.KindSign, session.StatusCompleted, normalized, started)
	session.ObserveSession(session.KindSign, session.StatusCompleted, elapsed)
	logger.Info().Dur("elapsed", elapsed).Msg("signing session completed")
	return sig64, nil
}

// signOneShot 单轮签名，仅 t=2
func (s *Service) signOneShot(ctx context.Context, logger zerolog.Logger, sessionID string, msgHash [32]byte, quorum []uint8) ([]byte, error) {
	nonce, ownCommitment, err := frost.NewNonce()
	if err != nil {
		return nil, errors.Wrap(err, "generate nonce")
	}
	defer nonce.Zero()

	agg := aggregate.NewSignatureAggregator(sessionID, msgHash, quorum)
	if err := agg.AddCommitment(s.share.ID, ownCommitment); err != nil {
		return nil, err
	}

	commitmentBytes, err := codec.EncodeCommitment(ownCommitment)
	if err != nil {
		return nil, err
	}

	var responder uint8
	for _, id := range quorum {
		if id != s.share.ID {
			responder = id
		}
	}

	req := &message.SignRequest{
		SessionID:     sessionID,
		EventHash:     msgHash[:],
		Quorum:        quorum,
		CoordinatorID: s.share.ID,
		Commitment:    commitmentBytes,
	}
	if err := s.transport.Publish(ctx, responder, req); err != nil {
		return nil, protocol.NewNetworkError(sessionID, err)
	}

	envs, err := s.transport.AwaitResponses(ctx, sessionID, message.TypeSignResponse, 1, s.cfg.SignTimeout)
	if err != nil {
		return nil, awaitFailure(ctx, sessionID, []uint8{responder}, "waiting for sign response")
	}

	for _, env := range envs {
		res, ok := env.Msg.(*message.SignResponse)
		if !ok || res.ParticipantID != env.From {
			return nil, protocol.NewMalformedError(sessionID, errors.Errorf("sign response identity mismatch from %d", env.From))
		}
		commitment, err := codec.DecodeCommitment(res.Commitment)
		if err != nil {
			return nil, protocol.NewMalformedError(sessionID, err)
		}
		z, err := codec.DecodeScalar(res.PartialSig)
		if err != nil {
			return nil, protocol.NewMalformedError(sessionID, err)
		}
		if err := agg.AddCommitment(res.ParticipantID, commitment); err != nil {
			return nil, err
		}
		share := &frost.SignatureShare{ParticipantID: res.ParticipantID}
		share.Z.Set(z)
		if err := agg.AddShare(share); err != nil {
			return nil, err
		}
	}

	commitments, err := agg.Commitments()
	if err != nil {
		return nil, err
	}
	ownShare, err := frost.Sign(s.share, nonce, msgHash, commitments)
	if err != nil {
		return nil, err
	}
	if err := agg.AddShare(ownShare); err != nil {
		return nil, err
	}

	return s.combine(logger, agg)
}

// signTwoPhase 两阶段签名，t>2
func (s *Service) signTwoPhase(ctx context.Context, logger zerolog.Logger, sessionID string, msgHash [32]byte, quorum []uint8) ([]byte, error) {
	nonce, ownCommitment, err := frost.NewNonce()
	if err != nil {
		return nil, errors.Wrap(err, "generate nonce")
	}
	defer nonce.Zero()

	agg := aggregate.NewSignatureAggregator(sessionID, msgHash, quorum)
	if err := agg.AddCommitment(s.share.ID, ownCommitment); err != nil {
		return nil, err
	}

	// 阶段一：征集 nonce 承诺
	req := &message.CommitmentRequest{
		SessionID:     sessionID,
		EventHash:     msgHash[:],
		Quorum:        quorum,
		CoordinatorID: s.share.ID,
	}
	responders := 0
	for _, id := range quorum {
		if id == s.share.ID {
			continue
		}
		if err := s.transport.Publish(ctx, id, req); err != nil {
			return nil, protocol.NewNetworkError(sessionID, err)
		}
		responders++
	}

	envs, err := s.transport.AwaitResponses(ctx, sessionID, message.TypeCommitmentResponse, responders, s.cfg.SignTimeout)
	if err != nil {
		return nil, awaitFailure(ctx, sessionID, agg.MissingCommitments(), "waiting for commitments")
	}
	for _, env := range envs {
		res, ok := env.Msg.(*message.CommitmentResponse)
		if !ok || res.ParticipantID != env.From {
			return nil, protocol.NewMalformedError(sessionID, errors.Errorf("commitment identity mismatch from %d", env.From))
		}
		commitment, err := codec.DecodeCommitment(res.Commitment)
		if err != nil {
			return nil, protocol.NewMalformedError(sessionID, err)
		}
		if err := agg.AddCommitment(res.ParticipantID, commitment); err != nil {
			return nil, err
		}
	}

	commitments, err := agg.Commitments()
	if err != nil {
		return nil, err
	}
	logger.Debug().Int("commitments", len(commitments)).Msg("commitment phase complete")

	// 阶段二：广播签名包，征集分片
	wire := make([]message.WireCommitment, 0, len(commitments))
	for _, pc := range commitments {
		data, err := codec.EncodeCommitment(pc.Commitment)
		if err != nil {
			return nil, err
		}
		wire = append(wire, message.WireCommitment{ParticipantID: pc.ParticipantID, Commitment: data})
	}
	pkg := &message.SigningPackage{
		SessionID:   sessionID,
		EventHash:   msgHash[:],
		Quorum:      quorum,
		Commitments: wire,
	}
	for _, id := range quorum {
		if id == s.share.ID {
			continue
		}
		if err := s.transport.Publish(ctx, id, pkg); err != nil {
			return nil, protocol.NewNetworkError(sessionID, err)
		}
	}

	ownShare, err := frost.Sign(s.share, nonce, msgHash, commitments)
	if err != nil {
		return nil, err
	}
	if err := agg.AddShare(ownShare); err != nil {
		return nil, err
	}

	envs, err = s.transport.AwaitResponses(ctx, sessionID, message.TypePartialSignature, responders, s.cfg.SignTimeout)
	if err != nil {
		return nil, awaitFailure(ctx, sessionID, agg.Missing(), "waiting for partial signatures")
	}
	for _, env := range envs {
		res, ok := env.Msg.(*message.PartialSignature)
		if !ok || res.ParticipantID != env.From {
			return nil, protocol.NewMalformedError(sessionID, errors.Errorf("partial signature identity mismatch from %d", env.From))
		}
		z, err := codec.DecodeScalar(res.PartialSig)
		if err != nil {
			return nil, protocol.NewMalformedError(sessionID, err)
		}
		share := &frost.SignatureShare{ParticipantID: res.ParticipantID}
		share.Z.Set(z)
		if err := agg.AddShare(share); err != nil {
			return nil, err
		}
	}

	return s.combine(logger, agg)
}

// combine 聚合、验证并压成 64 字节最终形式
func (s *Service) combine(logger zerolog.Logger, agg *aggregate.SignatureAggregator) ([]byte, error) {
	sig, err := agg.Combine(s.share.GroupKey)
	if err != nil {
		return nil, err
	}
	sig65, err := codec.EncodeSignature(sig)
	if err != nil {
		return nil, err
	}
	sig64, err := codec.ToSignature64(sig65)
	if err != nil {
		return nil, err
	}
	logger.Debug().Msg("aggregated signature verified against group key")
	return sig64, nil
}

// Ecdh 发起阈值 ECDH，返回 32 字节共享密钥
// targetX 是对端公钥的 x-only 形式；相同输入在任意 quorum 下结果一致
func (s *Service) Ecdh(ctx context.Context, targetX [32]byte, quorum []uint8) ([32]byte, error) {
	var zero [32]byte
	sessionID := session.NewSessionID()
	normalized, err := protocol.NormalizeQuorum(quorum, s.share.Threshold)
	if err != nil {
		return zero, protocol.NewInsufficientParticipantsError(sessionID, err.Error())
	}
	if !protocol.QuorumContains(normalized, s.share.ID) {
		return zero, protocol.NewInsufficientParticipantsError(sessionID, "coordinator must be part of the quorum")
	}

	logger := s.logger.With().Str("session_id", sessionID).Logger()
	logger.Info().Interface("quorum", normalized).Msg("starting ecdh session")

	started := time.Now()
	s.saveStatus(ctx, &session.Record{
		SessionID:   sessionID,
		Kind:        session.KindEcdh,
		Status:      session.StatusActive,
		Coordinator: s.share.ID,
		Quorum:      normalized,
		CreatedAt:   started,
	})
	defer s.transport.CloseSession(sessionID)

	secret, err := s.ecdhRound(ctx, sessionID, targetX, normalized)
	elapsed := time.Since(started)
	if err != nil {
		status := session.StatusAborted
		if protocol.IsType(err, protocol.ErrTypeTimeout) {
			status = session.StatusTimeout
		}
		s.finishStatus(ctx, sessionID, session.KindEcdh, status, normalized, started)
		session.ObserveSession(session.KindEcdh, status, elapsed)
		logger.Warn().Err(err).Msg("ecdh session failed")
		return zero, err
	}

	s.finishStatus(ctx, sessionID, session.KindEcdh, session.StatusCompleted, normalized, started)
	session.ObserveSession(session.KindEcdh, session.StatusCompleted, elapsed)
	logger.Info().Dur("elapsed", elapsed).Msg("ecdh session completed")
	return secret, nil
}

func (s *Service) ecdhRound(ctx context.Context, sessionID string, targetX [32]byte, quorum []uint8) ([32]byte, error) {
	var zero [32]byte

	agg := aggregate.NewEcdhAggregator(sessionID, quorum)
	ownPartial, err := frost.PartialEcdh(s.share, quorum, targetX)
	if err != nil {
		return zero, err
	}
	if err := agg.AddPartial(s.share.ID, ownPartial); err != nil {
		return zero, err
	}

	req := &message.EcdhRequest{
		SessionID:     sessionID,
		TargetPubkey:  targetX[:],
		Quorum:        quorum,
		CoordinatorID: s.share.ID,
	}
	responders := 0
	for _, id := range quorum {
		if id == s.share.ID {
			continue
		}
		if err := s.transport.Publish(ctx, id, req); err != nil {
			return zero, protocol.NewNetworkError(sessionID, err)
		}
		responders++
	}

	envs, err := s.transport.AwaitResponses(ctx, sessionID, message.TypeEcdhResponse, responders, s.cfg.EcdhTimeout)
	if err != nil {
		return zero, awaitFailure(ctx, sessionID, agg.Missing(), "waiting for ecdh partials")
	}
	for _, env := range envs {
		res, ok := env.Msg.(*message.EcdhResponse)
		if !ok || res.ParticipantID != env.From {
			return zero, protocol.NewMalformedError(sessionID, errors.Errorf("ecdh response identity mismatch from %d", env.From))
		}
		partial, err := codec.DecodePoint(res.Partial)
		if err != nil {
			return zero, protocol.NewMalformedError(sessionID, err)
		}
		if err := agg.AddPartial(res.ParticipantID, partial); err != nil {
			return zero, err
		}
	}

	return agg.Combine()
}

// saveStatus 审计记录尽力写入，失败只告警不打断协议
func (s *Service) saveStatus(ctx context.Context, record *session.Record) {
	if s.status == nil {
		return
	}
	if err := s.status.SaveRecord(ctx, record, s.cfg.StatusTTL); err != nil {
		s.logger.Warn().Err(err).Str("session_id", record.SessionID).Msg("failed to save session record")
	}
}

func (s *Service) finishStatus(ctx context.Context, sessionID string, kind session.Kind, status session.Status, quorum []uint8, started time.Time) {
	now := time.Now()
	s.saveStatus(ctx, &session.Record{
		SessionID:   sessionID,
		Kind:        kind,
		Status:      status,
		Coordinator: s.share.ID,
		Quorum:      quorum,
		CreatedAt:   started,
		CompletedAt: &now,
		DurationMs:  int(now.Sub(started).Milliseconds()),
	})
}
