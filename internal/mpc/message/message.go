// Package message 定义节点间传输的协议消息及其 JSON 线格式
//
// 外层信封为 {"msg_type": "...", "payload": {...}}，msg_type 是封闭枚举，
// 未知类型在解码时报错，由上层丢弃
package message

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// Type 协议消息类型标签
type Type string

const (
	TypeSignRequest        Type = "sign_req"
	TypeSignResponse       Type = "sign_res"
	TypeCommitmentRequest  Type = "commit_req"
	TypeCommitmentResponse Type = "commit_res"
	TypeSigningPackage     Type = "sign_pkg"
	TypePartialSignature   Type = "partial_sig"
	TypeEcdhRequest        Type = "ecdh_req"
	TypeEcdhResponse       Type = "ecdh_res"
	TypePing               Type = "ping"
	TypePong               Type = "pong"
)

// Message 所有协议消息的公共接口
type Message interface {
	Type() Type
	Session() string
}

// IsResponse 判断消息类型是否是对协调者请求的响应
func IsResponse(t Type) bool {
	switch t {
	case TypeSignResponse, TypeCommitmentResponse, TypePartialSignature, TypeEcdhResponse, TypePong:
		return true
	default:
		return false
	}
}

// envelope 线上信封
type envelope struct {
	MsgType Type            `json:"msg_type"`
	Payload json.RawMessage `json:"payload"`
}

// SignRequest 单轮（t=2）签名请求，协调者的承诺随请求下发
type SignRequest struct {
	SessionID     string  `json:"session_id"`
	EventHash     []byte  `json:"event_hash"`
	Quorum        []uint8 `json:"quorum"`
	CoordinatorID uint8   `json:"coordinator_id"`
	Commitment    []byte  `json:"commitment"` // 66 字节
}

func (m *SignRequest) Type() Type      { return TypeSignRequest }
func (m *SignRequest) Session() string { return m.SessionID }

// SignResponse 单轮签名响应，承诺与签名分片一并返回
type SignResponse struct {
	SessionID     string `json:"session_id"`
	ParticipantID uint8  `json:"participant_id"`
	Commitment    []byte `json:"commitment"`  // 66 字节
	PartialSig    []byte `json:"partial_sig"` // 32 字节
}

func (m *SignResponse) Type() Type      { return TypeSignResponse }
func (m *SignResponse) Session() string { return m.SessionID }

// CommitmentRequest 两阶段签名第一阶段：征集 nonce 承诺
type CommitmentRequest struct {
	SessionID     string  `json:"session_id"`
	EventHash     []byte  `json:"event_hash"`
	Quorum        []uint8 `json:"quorum"`
	CoordinatorID uint8   `json:"coordinator_id"`
}

func (m *CommitmentRequest) Type() Type      { return TypeCommitmentRequest }
func (m *CommitmentRequest) Session() string { return m.SessionID }

// CommitmentResponse 响应者返回自己的 nonce 承诺
type CommitmentResponse struct {
	SessionID     string `json:"session_id"`
	ParticipantID uint8  `json:"participant_id"`
	Commitment    []byte `json:"commitment"` // 66 字节
}

func (m *CommitmentResponse) Type() Type      { return TypeCommitmentResponse }
func (m *CommitmentResponse) Session() string { return m.SessionID }

// SigningPackage 两阶段签名第二阶段：完整承诺列表广播给 quorum
type SigningPackage struct {
	SessionID   string           `json:"session_id"`
	EventHash   []byte           `json:"event_hash"`
	Quorum      []uint8          `json:"quorum"`
	Commitments []WireCommitment `json:"commitments"`
}

func (m *SigningPackage) Type() Type      { return TypeSigningPackage }
func (m *SigningPackage) Session() string { return m.SessionID }

// WireCommitment 承诺列表条目
type WireCommitment struct {
	ParticipantID uint8  `json:"participant_id"`
	Commitment    []byte `json:"commitment"` // 66 字节
}

// PartialSignature 响应者返回签名分片
type PartialSignature struct {
	SessionID     string `json:"session_id"`
	ParticipantID uint8  `json:"participant_id"`
	PartialSig    []byte `json:"partial_sig"` // 32 字节
}

func (m *PartialSignature) Type() Type      { return TypePartialSignature }
func (m *PartialSignature) Session() string { return m.SessionID }

// EcdhRequest 阈值 ECDH 请求（单轮，任意 t）
type EcdhRequest struct {
	SessionID     string  `json:"session_id"`
	TargetPubkey  []byte  `json:"target_pubkey"` // 32 字节 x-only
	Quorum        []uint8 `json:"quorum"`
	CoordinatorID uint8   `json:"coordinator_id"`
}

func (m *EcdhRequest) Type() Type      { return TypeEcdhRequest }
func (m *EcdhRequest) Session() string { return m.SessionID }

// EcdhResponse 响应者返回 ECDH 部分结果
type EcdhResponse struct {
	SessionID     string `json:"session_id"`
	ParticipantID uint8  `json:"participant_id"`
	Partial       []byte `json:"partial"` // 33 字节压缩点
}

func (m *EcdhResponse) Type() Type      { return TypeEcdhResponse }
func (m *EcdhResponse) Session() string { return m.SessionID }

// Ping 存活探测
type Ping struct {
	SessionID string `json:"session_id"`
	From      uint8  `json:"from"`
}

func (m *Ping) Type() Type      { return TypePing }
func (m *Ping) Session() string { return m.SessionID }

// Pong 存活探测响应
type Pong struct {
	SessionID string `json:"session_id"`
	From      uint8  `json:"from"`
}

func (m *Pong) Type() Type      { return TypePong }
func (m *Pong) Session() string { return m.SessionID }

// Encode 序列化消息为信封 JSON
func Encode(m Message) ([]byte, error) {
	if m == nil {
		return nil, errors.New("message is nil")
	}
	payload, err := json.Marshal(m)
	if err != nil {
		return nil, errors.Wrap(err, "marshal payload")
	}
	data, err := json.Marshal(envelope{MsgType: m.Type(), Payload: payload})
	if err != nil {
		return nil, errors.Wrap(err, "marshal envelope")
	}
	return data, nil
}

// Decode 解析信封 JSON 为具体消息类型
func Decode(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, errors.Wrap(err, "unmarshal envelope")
	}

	var m Message
	switch env.MsgType {
	case TypeSignRequest:
		m = &SignRequest{}
	case TypeSignResponse:
		m = &SignResponse{}
	case TypeCommitmentRequest:
		m = &CommitmentRequest{}
	case TypeCommitmentResponse:
		m = &CommitmentResponse{}
	case TypeSigningPackage:
		m = &SigningPackage{}
	case TypePartialSignature:
		m = &PartialSignature{}
	case TypeEcdhRequest:
		m = &EcdhRequest{}
	case TypeEcdhResponse:
		m = &EcdhResponse{}
	case TypePing:
		m = &Ping{}
	case TypePong:
		m = &Pong{}
	default:
		return nil, errors.Errorf("unknown message type %q", env.MsgType)
	}

	if err := json.Unmarshal(env.Payload, m); err != nil {
		return nil, errors.Wrapf(err, "unmarshal %s payload", env.MsgType)
	}
	return m, nil
}
