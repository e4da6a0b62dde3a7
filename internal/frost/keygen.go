package frost

import (
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/pkg/errors"
)

// GenerateKeyShares 以 dealer 方式生成 t-of-n 密钥分片
// 仅用于测试与开发环境供给；生产环境应由分布式 DKG 供给分片
func GenerateKeyShares(threshold, total int) ([]*KeyShare, *secp256k1.PublicKey, error) {
	if threshold < 2 {
		return nil, nil, errors.New("threshold must be at least 2")
	}
	if total < threshold {
		return nil, nil, errors.New("total must be >= threshold")
	}
	if total > 255 {
		return nil, nil, errors.New("total must fit participant ID range (<= 255)")
	}

	// 随机多项式 f(x) = a0 + a1*x + ... + a{t-1}*x^{t-1}
	coeffs := make([]*secp256k1.ModNScalar, threshold)
	for i := range coeffs {
		priv, err := secp256k1.GeneratePrivateKey()
		if err != nil {
			return nil, nil, errors.Wrap(err, "generate polynomial coefficient")
		}
		coeffs[i] = &priv.Key
	}

	// 群公钥 = a0 * G
	var groupPoint secp256k1.JacobianPoint
	secp256k1.ScalarBaseMultNonConst(coeffs[0], &groupPoint)
	groupKey, err := pointFromJacobian(&groupPoint)
	if err != nil {
		return nil, nil, errors.Wrap(err, "derive group key")
	}

	shares := make([]*KeyShare, 0, total)
	for i := 1; i <= total; i++ {
		share := &KeyShare{
			ID:        uint8(i),
			GroupKey:  groupKey,
			Threshold: threshold,
			Total:     total,
		}
		evalPolynomial(coeffs, scalarFromID(uint8(i)), &share.Secret)
		shares = append(shares, share)
	}

	return shares, groupKey, nil
}

// evalPolynomial Horner 法求值 f(x)
func evalPolynomial(coeffs []*secp256k1.ModNScalar, x *secp256k1.ModNScalar, result *secp256k1.ModNScalar) {
	result.Set(coeffs[len(coeffs)-1])
	for i := len(coeffs) - 2; i >= 0; i-- {
		result.Mul(x)
		result.Add(coeffs[i])
	}
}
