package protocol

import (
	"sort"

	"github.com/pkg/errors"
)

// NormalizeQuorum 去重并升序排序 quorum，同时校验规模恰好为阈值 t
// 拉格朗日系数取决于 quorum 的确切成员，重复或缺员都会破坏聚合
func NormalizeQuorum(quorum []uint8, threshold int) ([]uint8, error) {
	if threshold < 2 {
		return nil, errors.New("threshold must be at least 2")
	}

	seen := make(map[uint8]struct{}, len(quorum))
	normalized := make([]uint8, 0, len(quorum))
	for _, id := range quorum {
		if id == 0 {
			return nil, errors.New("participant ID 0 is reserved")
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		normalized = append(normalized, id)
	}

	if len(normalized) != threshold {
		return nil, errors.Errorf("quorum has %d distinct participants, need exactly %d", len(normalized), threshold)
	}

	sort.Slice(normalized, func(i, j int) bool { return normalized[i] < normalized[j] })
	return normalized, nil
}

// QuorumContains 判断参与者是否在 quorum 内
func QuorumContains(quorum []uint8, id uint8) bool {
	for _, q := range quorum {
		if q == id {
			return true
		}
	}
	return false
}
