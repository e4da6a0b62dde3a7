package frost

import (
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/pkg/errors"
)

// Nonce 一次性签名 nonce 对，属于单个会话
// 必须恰好消费一次；任何丢弃路径都要调用 Zero
type Nonce struct {
	D secp256k1.ModNScalar // hiding nonce
	E secp256k1.ModNScalar // binding nonce
}

// Zero 清零 nonce 标量
func (n *Nonce) Zero() {
	if n == nil {
		return
	}
	n.D.Zero()
	n.E.Zero()
}

// NewNonce 生成新的一次性 nonce 对及其公开承诺
func NewNonce() (*Nonce, *Commitment, error) {
	d, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, nil, errors.Wrap(err, "generate hiding nonce")
	}
	e, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, nil, errors.Wrap(err, "generate binding nonce")
	}

	nonce := &Nonce{}
	nonce.D.Set(&d.Key)
	nonce.E.Set(&e.Key)

	var hiding, binding secp256k1.JacobianPoint
	secp256k1.ScalarBaseMultNonConst(&nonce.D, &hiding)
	secp256k1.ScalarBaseMultNonConst(&nonce.E, &binding)

	hidingPub, err := pointFromJacobian(&hiding)
	if err != nil {
		return nil, nil, errors.Wrap(err, "hiding commitment")
	}
	bindingPub, err := pointFromJacobian(&binding)
	if err != nil {
		return nil, nil, errors.Wrap(err, "binding commitment")
	}

	d.Zero()
	e.Zero()

	return nonce, &Commitment{Hiding: hidingPub, Binding: bindingPub}, nil
}

// encodeCommitmentList 序列化承诺列表供绑定因子哈希使用
func encodeCommitmentList(commitments []ParticipantCommitment) []byte {
	var buf []byte
	for _, pc := range commitments {
		buf = append(buf, pc.ParticipantID)
		buf = append(buf, pc.Commitment.Hiding.SerializeCompressed()...)
		buf = append(buf, pc.Commitment.Binding.SerializeCompressed()...)
	}
	return buf
}

// bindingFactors 为每个签名者计算绑定因子 rho_i
// 承诺列表在哈希前按参与者标识排序，保证各方结果一致
func bindingFactors(msgHash [32]byte, commitments []ParticipantCommitment) map[uint8]*secp256k1.ModNScalar {
	sorted := SortCommitments(commitments)
	listBytes := encodeCommitmentList(sorted)

	factors := make(map[uint8]*secp256k1.ModNScalar, len(sorted))
	for _, pc := range sorted {
		factors[pc.ParticipantID] = hashToScalar(tagBinding, msgHash[:], listBytes, []byte{pc.ParticipantID})
	}
	return factors
}

// groupCommitment 计算聚合 nonce 点 R = sum(D_i + rho_i * E_i)
func groupCommitment(
	commitments []ParticipantCommitment,
	factors map[uint8]*secp256k1.ModNScalar,
) (*secp256k1.PublicKey, error) {
	var r secp256k1.JacobianPoint
	for _, pc := range commitments {
		rho, ok := factors[pc.ParticipantID]
		if !ok {
			return nil, errors.Errorf("missing binding factor for participant %d", pc.ParticipantID)
		}

		var hiding, binding, rhoE, term secp256k1.JacobianPoint
		pc.Commitment.Hiding.AsJacobian(&hiding)
		pc.Commitment.Binding.AsJacobian(&binding)
		secp256k1.ScalarMultNonConst(rho, &binding, &rhoE)
		secp256k1.AddNonConst(&hiding, &rhoE, &term)
		secp256k1.AddNonConst(&r, &term, &r)
	}
	return pointFromJacobian(&r)
}

// challenge 计算 Schnorr 挑战 c = H(R || GroupKey || msgHash)
func challenge(r *secp256k1.PublicKey, groupKey *secp256k1.PublicKey, msgHash [32]byte) *secp256k1.ModNScalar {
	return hashToScalar(tagChallenge, r.SerializeCompressed(), groupKey.SerializeCompressed(), msgHash[:])
}

// Sign 用本地分片与 nonce 生成签名分片
// commitments 必须包含 quorum 全部 t 个承诺（含本参与者自己的）
// nonce 由调用方保证单次使用；本函数不重复校验消费状态
func Sign(
	share *KeyShare,
	nonce *Nonce,
	msgHash [32]byte,
	commitments []ParticipantCommitment,
) (*SignatureShare, error) {
	if err := share.Validate(); err != nil {
		return nil, err
	}
	if nonce == nil {
		return nil, errors.New("nonce is nil")
	}
	if len(commitments) != share.Threshold {
		return nil, errors.Errorf("commitment set has %d entries, need exactly %d", len(commitments), share.Threshold)
	}

	quorum := make([]uint8, 0, len(commitments))
	ownIncluded := false
	for _, pc := range commitments {
		quorum = append(quorum, pc.ParticipantID)
		if pc.ParticipantID == share.ID {
			ownIncluded = true
		}
	}
	if !ownIncluded {
		return nil, errors.New("own commitment not present in commitment set")
	}

	factors := bindingFactors(msgHash, commitments)
	r, err := groupCommitment(commitments, factors)
	if err != nil {
		return nil, errors.Wrap(err, "group commitment")
	}

	c := challenge(r, share.GroupKey, msgHash)

	lambda, err := LagrangeCoefficient(share.ID, quorum)
	if err != nil {
		return nil, errors.Wrap(err, "lagrange coefficient")
	}

	// z_i = d + rho*e + lambda * s * c
	rho := factors[share.ID]
	result := &SignatureShare{ParticipantID: share.ID}
	result.Z.Set(rho).Mul(&nonce.E).Add(&nonce.D)

	var lambdaSC secp256k1.ModNScalar
	lambdaSC.Set(lambda).Mul(&share.Secret).Mul(c)
	result.Z.Add(&lambdaSC)

	return result, nil
}

// Aggregate 聚合全部 t 个签名分片为最终签名
// 不做局部验证；调用方（协调者）负责在返回前对群公钥验证
func Aggregate(
	msgHash [32]byte,
	commitments []ParticipantCommitment,
	shares []*SignatureShare,
) (*Signature, error) {
	if len(shares) == 0 {
		return nil, errors.New("no signature shares provided")
	}
	if len(shares) != len(commitments) {
		return nil, errors.Errorf("share count %d does not match commitment count %d", len(shares), len(commitments))
	}

	factors := bindingFactors(msgHash, commitments)
	r, err := groupCommitment(commitments, factors)
	if err != nil {
		return nil, errors.Wrap(err, "group commitment")
	}

	sig := &Signature{R: r}
	for _, s := range shares {
		sig.Z.Add(&s.Z)
	}
	return sig, nil
}

// Verify 验证完整 R 点形式的签名：z*G == R + c*Y
func Verify(msgHash [32]byte, sig *Signature, groupKey *secp256k1.PublicKey) bool {
	if sig == nil || sig.R == nil || groupKey == nil {
		return false
	}

	c := challenge(sig.R, groupKey, msgHash)

	var lhs secp256k1.JacobianPoint
	secp256k1.ScalarBaseMultNonConst(&sig.Z, &lhs)

	var y, cY, r, rhs secp256k1.JacobianPoint
	groupKey.AsJacobian(&y)
	secp256k1.ScalarMultNonConst(c, &y, &cY)
	sig.R.AsJacobian(&r)
	secp256k1.AddNonConst(&r, &cY, &rhs)

	lhs.ToAffine()
	rhs.ToAffine()
	return lhs.X.Equals(&rhs.X) && lhs.Y.Equals(&rhs.Y)
}

// VerifyBytes64 验证 64 字节 x-only 签名
// R 的奇偶前缀在 64 字节格式中被丢弃，这里按两种奇偶性依次恢复再验证
func VerifyBytes64(msgHash [32]byte, sig64 []byte, groupKey *secp256k1.PublicKey) bool {
	if len(sig64) != 64 || groupKey == nil {
		return false
	}

	var z secp256k1.ModNScalar
	if overflow := z.SetByteSlice(sig64[32:]); overflow {
		return false
	}

	compressed := make([]byte, 33)
	copy(compressed[1:], sig64[:32])
	for _, prefix := range []byte{secp256k1.PubKeyFormatCompressedEven, secp256k1.PubKeyFormatCompressedOdd} {
		compressed[0] = prefix
		r, err := secp256k1.ParsePubKey(compressed)
		if err != nil {
			continue
		}
		candidate := &Signature{R: r}
		candidate.Z.Set(&z)
		if Verify(msgHash, candidate, groupKey) {
			return true
		}
	}
	return false
}
