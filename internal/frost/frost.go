package frost

import (
	"crypto/sha256"
	"sort"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/pkg/errors"
)

// 域分隔标签（tagged hash，BIP-340 风格）
const (
	tagBinding   = "threshold-engine/frost/binding"
	tagChallenge = "threshold-engine/frost/challenge"
)

// KeyShare 本节点持有的密钥分片（t-of-n）
// 分片由外部供给（DKG 或 dealer），引擎内部从不序列化或传输
type KeyShare struct {
	ID        uint8
	Secret    secp256k1.ModNScalar
	GroupKey  *secp256k1.PublicKey
	Threshold int
	Total     int
}

// Validate 校验分片参数
func (k *KeyShare) Validate() error {
	if k == nil {
		return errors.New("key share is nil")
	}
	if k.ID == 0 {
		return errors.New("participant ID must be >= 1")
	}
	if k.Threshold < 2 {
		return errors.New("threshold must be at least 2")
	}
	if k.Total < k.Threshold {
		return errors.New("total must be >= threshold")
	}
	if int(k.ID) > k.Total {
		return errors.Errorf("participant ID %d out of range (total %d)", k.ID, k.Total)
	}
	if k.GroupKey == nil {
		return errors.New("group key is nil")
	}
	if k.Secret.IsZero() {
		return errors.New("secret share is zero")
	}
	return nil
}

// Commitment 一次性 nonce 的公开承诺（hiding/binding 两个点）
type Commitment struct {
	Hiding  *secp256k1.PublicKey // D = d*G
	Binding *secp256k1.PublicKey // E = e*G
}

// Equal 两个承诺逐点比较
func (c *Commitment) Equal(other *Commitment) bool {
	if c == nil || other == nil {
		return c == other
	}
	return c.Hiding.IsEqual(other.Hiding) && c.Binding.IsEqual(other.Binding)
}

// ParticipantCommitment 带参与者标识的承诺
type ParticipantCommitment struct {
	ParticipantID uint8
	Commitment    *Commitment
}

// SignatureShare 单个参与者的签名分片
type SignatureShare struct {
	ParticipantID uint8
	Z             secp256k1.ModNScalar
}

// Signature 聚合后的 Schnorr 签名（完整 R 点形式）
type Signature struct {
	R *secp256k1.PublicKey
	Z secp256k1.ModNScalar
}

// scalarFromID 将参与者标识转换为标量
func scalarFromID(id uint8) *secp256k1.ModNScalar {
	var s secp256k1.ModNScalar
	s.SetInt(uint32(id))
	return &s
}

// LagrangeCoefficient 计算参与者在给定 quorum 下的拉格朗日系数
// 系数取决于 quorum 的确切成员，而不仅仅是阈值 t
func LagrangeCoefficient(id uint8, quorum []uint8) (*secp256k1.ModNScalar, error) {
	found := false
	for _, q := range quorum {
		if q == id {
			found = true
			break
		}
	}
	if !found {
		return nil, errors.Errorf("participant %d not in quorum", id)
	}

	var num, den secp256k1.ModNScalar
	num.SetInt(1)
	den.SetInt(1)

	xi := scalarFromID(id)
	for _, q := range quorum {
		if q == id {
			continue
		}
		xj := scalarFromID(q)

		num.Mul(xj)

		// den *= (xj - xi)
		var diff secp256k1.ModNScalar
		diff.Set(xi).Negate().Add(xj)
		if diff.IsZero() {
			return nil, errors.Errorf("duplicate participant %d in quorum", q)
		}
		den.Mul(&diff)
	}

	den.InverseNonConst()
	num.Mul(&den)
	return &num, nil
}

// SortCommitments 按参与者标识排序（副本）
// 绑定因子对承诺列表做哈希，协调者与响应者必须使用同一顺序
func SortCommitments(commitments []ParticipantCommitment) []ParticipantCommitment {
	sorted := append([]ParticipantCommitment(nil), commitments...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].ParticipantID < sorted[j].ParticipantID
	})
	return sorted
}

// taggedHash 带域分隔的 SHA-256
func taggedHash(tag string, chunks ...[]byte) [32]byte {
	tagSum := sha256.Sum256([]byte(tag))
	h := sha256.New()
	h.Write(tagSum[:])
	h.Write(tagSum[:])
	for _, c := range chunks {
		h.Write(c)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// hashToScalar 哈希并归约到曲线阶
func hashToScalar(tag string, chunks ...[]byte) *secp256k1.ModNScalar {
	sum := taggedHash(tag, chunks...)
	var s secp256k1.ModNScalar
	s.SetByteSlice(sum[:])
	return &s
}

// pointFromJacobian 将 Jacobian 点转换为公钥，无穷远点报错
func pointFromJacobian(p *secp256k1.JacobianPoint) (*secp256k1.PublicKey, error) {
	p.ToAffine()
	if p.X.IsZero() && p.Y.IsZero() {
		return nil, errors.New("point at infinity")
	}
	return secp256k1.NewPublicKey(&p.X, &p.Y), nil
}

// LiftX 从 32 字节 x 坐标恢复偶 y 公钥（SEC1 前缀 0x02）
func LiftX(x [32]byte) (*secp256k1.PublicKey, error) {
	compressed := make([]byte, 33)
	compressed[0] = secp256k1.PubKeyFormatCompressedEven
	copy(compressed[1:], x[:])
	pub, err := secp256k1.ParsePubKey(compressed)
	if err != nil {
		return nil, errors.Wrap(err, "lift x-only public key")
	}
	return pub, nil
}
