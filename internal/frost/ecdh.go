package frost

import (
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/pkg/errors"
)

// PartialEcdh 计算本参与者的 ECDH 部分结果 lambda_i * s_i * P
// 目标公钥以 32 字节 x-only 形式给出，按偶 y 恢复
func PartialEcdh(share *KeyShare, quorum []uint8, targetX [32]byte) (*secp256k1.PublicKey, error) {
	if err := share.Validate(); err != nil {
		return nil, err
	}

	target, err := LiftX(targetX)
	if err != nil {
		return nil, errors.Wrap(err, "parse target public key")
	}

	lambda, err := LagrangeCoefficient(share.ID, quorum)
	if err != nil {
		return nil, errors.Wrap(err, "lagrange coefficient")
	}

	var scalar secp256k1.ModNScalar
	scalar.Set(lambda).Mul(&share.Secret)

	var p, partial secp256k1.JacobianPoint
	target.AsJacobian(&p)
	secp256k1.ScalarMultNonConst(&scalar, &p, &partial)
	scalar.Zero()

	return pointFromJacobian(&partial)
}

// CombineEcdh 聚合 t 个部分结果并取和点的 x 坐标作为共享密钥
// 插值在指数上完成，结果与具体 quorum 无关
func CombineEcdh(partials []*secp256k1.PublicKey) ([32]byte, error) {
	var secret [32]byte
	if len(partials) == 0 {
		return secret, errors.New("no ecdh partials provided")
	}

	var sum secp256k1.JacobianPoint
	for _, partial := range partials {
		if partial == nil {
			return secret, errors.New("nil ecdh partial")
		}
		var p secp256k1.JacobianPoint
		partial.AsJacobian(&p)
		secp256k1.AddNonConst(&sum, &p, &sum)
	}

	point, err := pointFromJacobian(&sum)
	if err != nil {
		return secret, errors.Wrap(err, "combine ecdh partials")
	}

	copy(secret[:], point.SerializeCompressed()[1:])
	return secret, nil
}
