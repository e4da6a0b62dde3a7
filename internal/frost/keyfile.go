package frost

import (
	"encoding/hex"
	"encoding/json"
	"os"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/pkg/errors"
)

// keyFile 分片文件的磁盘格式，仅用于开发与测试供给
type keyFile struct {
	Threshold int            `json:"threshold"`
	Total     int            `json:"total"`
	GroupKey  string         `json:"group_key"`
	Shares    []keyFileShare `json:"shares"`
}

type keyFileShare struct {
	ID     uint8  `json:"id"`
	Secret string `json:"secret"`
}

// SaveKeyShares 将 dealer 生成的分片写到文件，权限 0600
// 生产部署应由 DKG 供给分片，此文件格式仅服务开发环境
func SaveKeyShares(path string, shares []*KeyShare, groupKey *secp256k1.PublicKey) error {
	if len(shares) == 0 {
		return errors.New("no shares to save")
	}

	file := keyFile{
		Threshold: shares[0].Threshold,
		Total:     shares[0].Total,
		GroupKey:  hex.EncodeToString(groupKey.SerializeCompressed()),
	}
	for _, share := range shares {
		secret := share.Secret.Bytes()
		file.Shares = append(file.Shares, keyFileShare{
			ID:     share.ID,
			Secret: hex.EncodeToString(secret[:]),
		})
	}

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal key file")
	}
	return errors.Wrap(os.WriteFile(path, data, 0600), "write key file")
}

// LoadKeyShares 从文件读回全部分片与群公钥
func LoadKeyShares(path string) ([]*KeyShare, *secp256k1.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, errors.Wrap(err, "read key file")
	}

	var file keyFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, nil, errors.Wrap(err, "unmarshal key file")
	}

	groupKeyBytes, err := hex.DecodeString(file.GroupKey)
	if err != nil {
		return nil, nil, errors.Wrap(err, "decode group key")
	}
	groupKey, err := secp256k1.ParsePubKey(groupKeyBytes)
	if err != nil {
		return nil, nil, errors.Wrap(err, "parse group key")
	}

	shares := make([]*KeyShare, 0, len(file.Shares))
	for _, fs := range file.Shares {
		secretBytes, err := hex.DecodeString(fs.Secret)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "decode secret for participant %d", fs.ID)
		}
		share := &KeyShare{
			ID:        fs.ID,
			GroupKey:  groupKey,
			Threshold: file.Threshold,
			Total:     file.Total,
		}
		if overflow := share.Secret.SetByteSlice(secretBytes); overflow {
			return nil, nil, errors.Errorf("secret for participant %d overflows curve order", fs.ID)
		}
		if err := share.Validate(); err != nil {
			return nil, nil, errors.Wrapf(err, "invalid share for participant %d", fs.ID)
		}
		shares = append(shares, share)
	}
	return shares, groupKey, nil
}
