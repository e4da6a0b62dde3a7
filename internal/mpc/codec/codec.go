// Package codec 定义协议消息中密码学对象的线格式
//
// 承诺:     66 字节 = 33B 压缩 D || 33B 压缩 E
// 点:       33 字节 SEC1 压缩
// 标量:     32 字节大端
// 签名:     中间形式 65 字节 = 33B 压缩 R || 32B z；最终形式 64 字节 = R.x || z
package codec

import (
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/pkg/errors"

	"github.com/kashguard/go-threshold-engine/internal/frost"
)

const (
	CommitmentSize  = 66
	PointSize       = 33
	ScalarSize      = 32
	SignatureSize   = 65
	SignatureSize64 = 64
)

// EncodeCommitment 序列化 nonce 承诺为 66 字节
func EncodeCommitment(c *frost.Commitment) ([]byte, error) {
	if c == nil || c.Hiding == nil || c.Binding == nil {
		return nil, errors.New("commitment is incomplete")
	}
	out := make([]byte, 0, CommitmentSize)
	out = append(out, c.Hiding.SerializeCompressed()...)
	out = append(out, c.Binding.SerializeCompressed()...)
	return out, nil
}

// DecodeCommitment 解析 66 字节承诺
func DecodeCommitment(data []byte) (*frost.Commitment, error) {
	if len(data) != CommitmentSize {
		return nil, errors.Errorf("commitment must be %d bytes, got %d", CommitmentSize, len(data))
	}
	hiding, err := secp256k1.ParsePubKey(data[:PointSize])
	if err != nil {
		return nil, errors.Wrap(err, "parse hiding commitment")
	}
	binding, err := secp256k1.ParsePubKey(data[PointSize:])
	if err != nil {
		return nil, errors.Wrap(err, "parse binding commitment")
	}
	return &frost.Commitment{Hiding: hiding, Binding: binding}, nil
}

// EncodeScalar 序列化标量为 32 字节大端
func EncodeScalar(s *secp256k1.ModNScalar) []byte {
	b := s.Bytes()
	return b[:]
}

// DecodeScalar 解析 32 字节标量，溢出曲线阶视为畸形
func DecodeScalar(data []byte) (*secp256k1.ModNScalar, error) {
	if len(data) != ScalarSize {
		return nil, errors.Errorf("scalar must be %d bytes, got %d", ScalarSize, len(data))
	}
	var s secp256k1.ModNScalar
	if overflow := s.SetByteSlice(data); overflow {
		return nil, errors.New("scalar overflows curve order")
	}
	return &s, nil
}

// EncodePoint 序列化曲线点为 33 字节压缩形式
func EncodePoint(p *secp256k1.PublicKey) ([]byte, error) {
	if p == nil {
		return nil, errors.New("point is nil")
	}
	return p.SerializeCompressed(), nil
}

// DecodePoint 解析 33 字节压缩点
func DecodePoint(data []byte) (*secp256k1.PublicKey, error) {
	if len(data) != PointSize {
		return nil, errors.Errorf("point must be %d bytes, got %d", PointSize, len(data))
	}
	p, err := secp256k1.ParsePubKey(data)
	if err != nil {
		return nil, errors.Wrap(err, "parse compressed point")
	}
	return p, nil
}

// EncodeSignature 序列化聚合签名为 65 字节中间形式
func EncodeSignature(sig *frost.Signature) ([]byte, error) {
	if sig == nil || sig.R == nil {
		return nil, errors.New("signature is incomplete")
	}
	out := make([]byte, 0, SignatureSize)
	out = append(out, sig.R.SerializeCompressed()...)
	z := sig.Z.Bytes()
	out = append(out, z[:]...)
	return out, nil
}

// DecodeSignature 解析 65 字节中间形式签名
func DecodeSignature(data []byte) (*frost.Signature, error) {
	if len(data) != SignatureSize {
		return nil, errors.Errorf("signature must be %d bytes, got %d", SignatureSize, len(data))
	}
	r, err := secp256k1.ParsePubKey(data[:PointSize])
	if err != nil {
		return nil, errors.Wrap(err, "parse signature R")
	}
	z, err := DecodeScalar(data[PointSize:])
	if err != nil {
		return nil, err
	}
	sig := &frost.Signature{R: r}
	sig.Z.Set(z)
	return sig, nil
}

// ToSignature64 将 65 字节中间形式压成 64 字节最终形式（丢弃 R 奇偶前缀）
func ToSignature64(sig65 []byte) ([]byte, error) {
	if len(sig65) != SignatureSize {
		return nil, errors.Errorf("signature must be %d bytes, got %d", SignatureSize, len(sig65))
	}
	prefix := sig65[0]
	if prefix != secp256k1.PubKeyFormatCompressedEven && prefix != secp256k1.PubKeyFormatCompressedOdd {
		return nil, errors.Errorf("invalid point prefix 0x%02x", prefix)
	}
	out := make([]byte, SignatureSize64)
	copy(out, sig65[1:])
	return out, nil
}
