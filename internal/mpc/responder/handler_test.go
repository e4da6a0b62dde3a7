package responder

import (
	"context"
	"crypto/sha256"
	"testing"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kashguard/go-threshold-engine/internal/frost"
	"github.com/kashguard/go-threshold-engine/internal/mpc/codec"
	"github.com/kashguard/go-threshold-engine/internal/mpc/message"
	"github.com/kashguard/go-threshold-engine/internal/mpc/session"
	"github.com/kashguard/go-threshold-engine/internal/transport"
)

// newHandler 返回 3-of-5 下参与者 2 的处理器
func newHandler(t *testing.T) (*Handler, []*frost.KeyShare) {
	t.Helper()
	shares, _, err := frost.GenerateKeyShares(3, 5)
	require.NoError(t, err)

	store := session.NewStore(zerolog.Nop(), time.Minute)
	t.Cleanup(store.Close)
	return NewHandler(zerolog.Nop(), shares[1], store), shares
}

func envelope(from uint8, m message.Message) transport.Envelope {
	return transport.Envelope{From: from, Msg: m}
}

func TestHandlePing(t *testing.T) {
	h, _ := newHandler(t)

	resp := h.Handle(context.Background(), envelope(1, &message.Ping{SessionID: "p1", From: 1}))
	require.NotNil(t, resp)
	pong, ok := resp.(*message.Pong)
	require.True(t, ok)
	assert.Equal(t, uint8(2), pong.From)
	assert.Equal(t, "p1", pong.SessionID)
}

func TestCommitmentThenPackage(t *testing.T) {
	h, _ := newHandler(t)
	msgHash := sha256.Sum256([]byte("two-phase responder"))
	quorum := []uint8{1, 2, 3}

	commitReq := &message.CommitmentRequest{
		SessionID:     "s1",
		EventHash:     msgHash[:],
		Quorum:        quorum,
		CoordinatorID: 1,
	}
	resp := h.Handle(context.Background(), envelope(1, commitReq))
	require.NotNil(t, resp)
	commitRes, ok := resp.(*message.CommitmentResponse)
	require.True(t, ok)
	assert.Equal(t, uint8(2), commitRes.ParticipantID)

	// 重复请求幂等返回同一承诺
	again := h.Handle(context.Background(), envelope(1, commitReq))
	require.NotNil(t, again)
	assert.Equal(t, commitRes.Commitment, again.(*message.CommitmentResponse).Commitment)

	// 凑齐 quorum 承诺并下发签名包
	wire := []message.WireCommitment{{ParticipantID: 2, Commitment: commitRes.Commitment}}
	for _, id := range []uint8{1, 3} {
		_, c, err := frost.NewNonce()
		require.NoError(t, err)
		data, err := codec.EncodeCommitment(c)
		require.NoError(t, err)
		wire = append(wire, message.WireCommitment{ParticipantID: id, Commitment: data})
	}
	pkg := &message.SigningPackage{
		SessionID:   "s1",
		EventHash:   msgHash[:],
		Quorum:      quorum,
		Commitments: wire,
	}
	resp = h.Handle(context.Background(), envelope(1, pkg))
	require.NotNil(t, resp)
	partial, ok := resp.(*message.PartialSignature)
	require.True(t, ok)
	assert.Equal(t, uint8(2), partial.ParticipantID)
	assert.Len(t, partial.PartialSig, 32)

	// 同一会话重放签名包必须被拒绝
	assert.Nil(t, h.Handle(context.Background(), envelope(1, pkg)))
}

func TestSigningPackageCommitmentMismatch(t *testing.T) {
	h, _ := newHandler(t)
	msgHash := sha256.Sum256([]byte("tampered package"))
	quorum := []uint8{1, 2, 3}

	commitReq := &message.CommitmentRequest{
		SessionID:     "s6",
		EventHash:     msgHash[:],
		Quorum:        quorum,
		CoordinatorID: 1,
	}
	resp := h.Handle(context.Background(), envelope(1, commitReq))
	require.NotNil(t, resp)
	commitRes := resp.(*message.CommitmentResponse)

	others := make(map[uint8][]byte, 2)
	for _, id := range []uint8{1, 3} {
		_, c, err := frost.NewNonce()
		require.NoError(t, err)
		data, err := codec.EncodeCommitment(c)
		require.NoError(t, err)
		others[id] = data
	}

	// 包内本方承诺被换成别的值：丢弃且不消费 nonce
	_, forged, err := frost.NewNonce()
	require.NoError(t, err)
	forgedBytes, err := codec.EncodeCommitment(forged)
	require.NoError(t, err)
	tampered := &message.SigningPackage{
		SessionID: "s6",
		EventHash: msgHash[:],
		Quorum:    quorum,
		Commitments: []message.WireCommitment{
			{ParticipantID: 1, Commitment: others[1]},
			{ParticipantID: 2, Commitment: forgedBytes},
			{ParticipantID: 3, Commitment: others[3]},
		},
	}
	assert.Nil(t, h.Handle(context.Background(), envelope(1, tampered)))

	// 真正的签名包随后仍可恰好一次地完成
	genuine := &message.SigningPackage{
		SessionID: "s6",
		EventHash: msgHash[:],
		Quorum:    quorum,
		Commitments: []message.WireCommitment{
			{ParticipantID: 1, Commitment: others[1]},
			{ParticipantID: 2, Commitment: commitRes.Commitment},
			{ParticipantID: 3, Commitment: others[3]},
		},
	}
	resp = h.Handle(context.Background(), envelope(1, genuine))
	require.NotNil(t, resp)
	_, ok := resp.(*message.PartialSignature)
	require.True(t, ok)
}

func TestSigningPackageWithoutCommitmentPhase(t *testing.T) {
	h, _ := newHandler(t)
	msgHash := sha256.Sum256([]byte("no commitment phase"))

	wire := make([]message.WireCommitment, 0, 3)
	for _, id := range []uint8{1, 2, 3} {
		_, c, err := frost.NewNonce()
		require.NoError(t, err)
		data, err := codec.EncodeCommitment(c)
		require.NoError(t, err)
		wire = append(wire, message.WireCommitment{ParticipantID: id, Commitment: data})
	}
	pkg := &message.SigningPackage{
		SessionID:   "never-negotiated",
		EventHash:   msgHash[:],
		Quorum:      []uint8{1, 2, 3},
		Commitments: wire,
	}
	assert.Nil(t, h.Handle(context.Background(), envelope(1, pkg)))
}

func TestDropsRequestsOutsideQuorum(t *testing.T) {
	h, _ := newHandler(t)
	msgHash := sha256.Sum256([]byte("outside quorum"))

	// 本节点（2）不在 quorum 内
	req := &message.CommitmentRequest{
		SessionID:     "s2",
		EventHash:     msgHash[:],
		Quorum:        []uint8{1, 3, 4},
		CoordinatorID: 1,
	}
	assert.Nil(t, h.Handle(context.Background(), envelope(1, req)))

	// 请求方身份与消息声明不符
	spoofed := &message.CommitmentRequest{
		SessionID:     "s3",
		EventHash:     msgHash[:],
		Quorum:        []uint8{1, 2, 3},
		CoordinatorID: 1,
	}
	assert.Nil(t, h.Handle(context.Background(), envelope(4, spoofed)))
}

func TestOneShotSignRequiresThresholdTwo(t *testing.T) {
	h, _ := newHandler(t)
	msgHash := sha256.Sum256([]byte("one-shot on 3-of-5"))

	_, c, err := frost.NewNonce()
	require.NoError(t, err)
	data, err := codec.EncodeCommitment(c)
	require.NoError(t, err)

	req := &message.SignRequest{
		SessionID:     "s4",
		EventHash:     msgHash[:],
		Quorum:        []uint8{1, 2},
		CoordinatorID: 1,
		Commitment:    data,
	}
	assert.Nil(t, h.Handle(context.Background(), envelope(1, req)))
}

func TestOneShotSignOnThresholdTwo(t *testing.T) {
	shares, _, err := frost.GenerateKeyShares(2, 3)
	require.NoError(t, err)

	store := session.NewStore(zerolog.Nop(), time.Minute)
	t.Cleanup(store.Close)
	h := NewHandler(zerolog.Nop(), shares[2], store)

	msgHash := sha256.Sum256([]byte("one-shot on 2-of-3"))
	_, c, err := frost.NewNonce()
	require.NoError(t, err)
	data, err := codec.EncodeCommitment(c)
	require.NoError(t, err)

	req := &message.SignRequest{
		SessionID:     "s5",
		EventHash:     msgHash[:],
		Quorum:        []uint8{1, 3},
		CoordinatorID: 1,
		Commitment:    data,
	}
	resp := h.Handle(context.Background(), envelope(1, req))
	require.NotNil(t, resp)
	signRes, ok := resp.(*message.SignResponse)
	require.True(t, ok)
	assert.Equal(t, uint8(3), signRes.ParticipantID)
	assert.Len(t, signRes.Commitment, codec.CommitmentSize)
	assert.Len(t, signRes.PartialSig, codec.ScalarSize)

	// 同一会话的重放请求必须被拒绝，不得再生成新 nonce
	assert.Nil(t, h.Handle(context.Background(), envelope(1, req)))
}

func TestOneShotDuplicateRequestNeverRegeneratesNonce(t *testing.T) {
	shares, _, err := frost.GenerateKeyShares(2, 3)
	require.NoError(t, err)

	store := session.NewStore(zerolog.Nop(), time.Minute)
	t.Cleanup(store.Close)
	h := NewHandler(zerolog.Nop(), shares[1], store)

	msgHash := sha256.Sum256([]byte("duplicate one-shot delivery"))
	_, c, err := frost.NewNonce()
	require.NoError(t, err)
	data, err := codec.EncodeCommitment(c)
	require.NoError(t, err)

	req := &message.SignRequest{
		SessionID:     "dup1",
		EventHash:     msgHash[:],
		Quorum:        []uint8{1, 2},
		CoordinatorID: 1,
		Commitment:    data,
	}
	first := h.Handle(context.Background(), envelope(1, req))
	require.NotNil(t, first)

	// 重复投递同一请求：丢弃，而不是带着新承诺二次应答
	assert.Nil(t, h.Handle(context.Background(), envelope(1, req)))
	assert.Nil(t, h.Handle(context.Background(), envelope(1, req)))
}

func TestEcdhRequestStateless(t *testing.T) {
	h, _ := newHandler(t)

	priv, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)
	var target [32]byte
	copy(target[:], priv.PubKey().SerializeCompressed()[1:])

	req := &message.EcdhRequest{
		SessionID:     "e1",
		TargetPubkey:  target[:],
		Quorum:        []uint8{1, 2, 3},
		CoordinatorID: 1,
	}
	resp := h.Handle(context.Background(), envelope(1, req))
	require.NotNil(t, resp)
	ecdhRes, ok := resp.(*message.EcdhResponse)
	require.True(t, ok)
	assert.Len(t, ecdhRes.Partial, codec.PointSize)

	// 无状态：重复请求照常回答
	assert.NotNil(t, h.Handle(context.Background(), envelope(1, req)))

	// 畸形目标被丢弃
	bad := &message.EcdhRequest{
		SessionID:     "e2",
		TargetPubkey:  target[:16],
		Quorum:        []uint8{1, 2, 3},
		CoordinatorID: 1,
	}
	assert.Nil(t, h.Handle(context.Background(), envelope(1, bad)))
}
