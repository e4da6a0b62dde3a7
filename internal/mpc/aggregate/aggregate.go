// Package aggregate 收集并聚合 quorum 成员的协议贡献
//
// 收集器对重复投递幂等：同一参与者重复提交相同值被忽略，
// 提交不同值按伪造处理报错。quorum 之外的参与者一律拒绝
package aggregate

import (
	"bytes"
	"sync"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/pkg/errors"

	"github.com/kashguard/go-threshold-engine/internal/frost"
	"github.com/kashguard/go-threshold-engine/internal/mpc/protocol"
)

// SignatureAggregator 签名会话的承诺与分片收集器
type SignatureAggregator struct {
	sessionID string
	msgHash   [32]byte
	quorum    []uint8

	mu          sync.Mutex
	commitments map[uint8]*frost.Commitment
	shares      map[uint8]*frost.SignatureShare
}

// NewSignatureAggregator 创建收集器，quorum 必须已归一化
func NewSignatureAggregator(sessionID string, msgHash [32]byte, quorum []uint8) *SignatureAggregator {
	return &SignatureAggregator{
		sessionID:   sessionID,
		msgHash:     msgHash,
		quorum:      quorum,
		commitments: make(map[uint8]*frost.Commitment, len(quorum)),
		shares:      make(map[uint8]*frost.SignatureShare, len(quorum)),
	}
}

// AddCommitment 记录参与者的 nonce 承诺
func (a *SignatureAggregator) AddCommitment(id uint8, c *frost.Commitment) error {
	if c == nil || c.Hiding == nil || c.Binding == nil {
		return protocol.NewMalformedError(a.sessionID, errors.New("incomplete commitment"))
	}
	if !protocol.QuorumContains(a.quorum, id) {
		return errors.Errorf("participant %d not in quorum", id)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if existing, ok := a.commitments[id]; ok {
		if commitmentEqual(existing, c) {
			return nil
		}
		return errors.Errorf("participant %d sent conflicting commitments", id)
	}
	a.commitments[id] = c
	return nil
}

// CommitmentsReady 是否已集齐全部 t 个承诺
func (a *SignatureAggregator) CommitmentsReady() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.commitments) == len(a.quorum)
}

// Commitments 返回按参与者标识排序的承诺列表
func (a *SignatureAggregator) Commitments() ([]frost.ParticipantCommitment, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.commitments) != len(a.quorum) {
		return nil, errors.Errorf("have %d commitments, need %d", len(a.commitments), len(a.quorum))
	}
	list := make([]frost.ParticipantCommitment, 0, len(a.quorum))
	for id, c := range a.commitments {
		list = append(list, frost.ParticipantCommitment{ParticipantID: id, Commitment: c})
	}
	return frost.SortCommitments(list), nil
}

// AddShare 记录参与者的签名分片
func (a *SignatureAggregator) AddShare(share *frost.SignatureShare) error {
	if share == nil {
		return protocol.NewMalformedError(a.sessionID, errors.New("nil signature share"))
	}
	if !protocol.QuorumContains(a.quorum, share.ParticipantID) {
		return errors.Errorf("participant %d not in quorum", share.ParticipantID)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if existing, ok := a.shares[share.ParticipantID]; ok {
		if existing.Z.Equals(&share.Z) {
			return nil
		}
		return errors.Errorf("participant %d sent conflicting signature shares", share.ParticipantID)
	}
	a.shares[share.ParticipantID] = share
	return nil
}

// SharesReady 是否已集齐全部 t 个分片
func (a *SignatureAggregator) SharesReady() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.shares) == len(a.quorum)
}

// Missing 返回尚未提交指定阶段贡献的参与者
func (a *SignatureAggregator) Missing() []uint8 {
	a.mu.Lock()
	defer a.mu.Unlock()
	var missing []uint8
	for _, id := range a.quorum {
		_, hasCommitment := a.commitments[id]
		_, hasShare := a.shares[id]
		if !hasCommitment || !hasShare {
			missing = append(missing, id)
		}
	}
	return missing
}

// MissingCommitments 返回尚未提交承诺的参与者
func (a *SignatureAggregator) MissingCommitments() []uint8 {
	a.mu.Lock()
	defer a.mu.Unlock()
	var missing []uint8
	for _, id := range a.quorum {
		if _, ok := a.commitments[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}

// Combine 聚合最终签名并对群公钥验证，未集齐或验证失败都报错
func (a *SignatureAggregator) Combine(groupKey *secp256k1.PublicKey) (*frost.Signature, error) {
	commitments, err := a.Commitments()
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	if len(a.shares) != len(a.quorum) {
		have := len(a.shares)
		a.mu.Unlock()
		return nil, errors.Errorf("have %d signature shares, need %d", have, len(a.quorum))
	}
	shares := make([]*frost.SignatureShare, 0, len(a.quorum))
	for _, id := range a.quorum {
		shares = append(shares, a.shares[id])
	}
	a.mu.Unlock()

	sig, err := frost.Aggregate(a.msgHash, commitments, shares)
	if err != nil {
		return nil, protocol.NewAggregationError(a.sessionID, err)
	}
	if !frost.Verify(a.msgHash, sig, groupKey) {
		return nil, protocol.NewAggregationError(a.sessionID, errors.New("signature does not verify against group key"))
	}
	return sig, nil
}

func commitmentEqual(a, b *frost.Commitment) bool {
	return bytes.Equal(a.Hiding.SerializeCompressed(), b.Hiding.SerializeCompressed()) &&
		bytes.Equal(a.Binding.SerializeCompressed(), b.Binding.SerializeCompressed())
}

// EcdhAggregator ECDH 部分结果收集器
type EcdhAggregator struct {
	sessionID string
	quorum    []uint8

	mu       sync.Mutex
	partials map[uint8]*secp256k1.PublicKey
}

// NewEcdhAggregator 创建收集器，quorum 必须已归一化
func NewEcdhAggregator(sessionID string, quorum []uint8) *EcdhAggregator {
	return &EcdhAggregator{
		sessionID: sessionID,
		quorum:    quorum,
		partials:  make(map[uint8]*secp256k1.PublicKey, len(quorum)),
	}
}

// AddPartial 记录参与者的 ECDH 部分结果
func (a *EcdhAggregator) AddPartial(id uint8, partial *secp256k1.PublicKey) error {
	if partial == nil {
		return protocol.NewMalformedError(a.sessionID, errors.New("nil ecdh partial"))
	}
	if !protocol.QuorumContains(a.quorum, id) {
		return errors.Errorf("participant %d not in quorum", id)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if existing, ok := a.partials[id]; ok {
		if bytes.Equal(existing.SerializeCompressed(), partial.SerializeCompressed()) {
			return nil
		}
		return errors.Errorf("participant %d sent conflicting ecdh partials", id)
	}
	a.partials[id] = partial
	return nil
}

// Ready 是否已集齐全部 t 个部分结果
func (a *EcdhAggregator) Ready() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.partials) == len(a.quorum)
}

// Missing 返回尚未提交部分结果的参与者
func (a *EcdhAggregator) Missing() []uint8 {
	a.mu.Lock()
	defer a.mu.Unlock()
	var missing []uint8
	for _, id := range a.quorum {
		if _, ok := a.partials[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}

// Combine 聚合共享密钥，未集齐时报错
func (a *EcdhAggregator) Combine() ([32]byte, error) {
	a.mu.Lock()
	if len(a.partials) != len(a.quorum) {
		have := len(a.partials)
		a.mu.Unlock()
		var zero [32]byte
		return zero, errors.Errorf("have %d ecdh partials, need %d", have, len(a.quorum))
	}
	partials := make([]*secp256k1.PublicKey, 0, len(a.quorum))
	for _, id := range a.quorum {
		partials = append(partials, a.partials[id])
	}
	a.mu.Unlock()

	secret, err := frost.CombineEcdh(partials)
	if err != nil {
		return secret, protocol.NewAggregationError(a.sessionID, err)
	}
	return secret, nil
}
