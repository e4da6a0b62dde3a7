package protocol

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeQuorum(t *testing.T) {
	got, err := NormalizeQuorum([]uint8{3, 1, 2}, 3)
	require.NoError(t, err)
	assert.Equal(t, []uint8{1, 2, 3}, got)

	// 重复去重后规模不足
	_, err = NormalizeQuorum([]uint8{1, 1, 2}, 3)
	assert.Error(t, err)

	// 规模超出阈值同样拒绝
	_, err = NormalizeQuorum([]uint8{1, 2, 3, 4}, 3)
	assert.Error(t, err)

	_, err = NormalizeQuorum([]uint8{0, 1}, 2)
	assert.Error(t, err)

	_, err = NormalizeQuorum([]uint8{1, 2}, 1)
	assert.Error(t, err)
}

func TestQuorumContains(t *testing.T) {
	quorum := []uint8{1, 3, 5}
	assert.True(t, QuorumContains(quorum, 3))
	assert.False(t, QuorumContains(quorum, 2))
	assert.False(t, QuorumContains(nil, 1))
}

func TestProtocolErrorFormatting(t *testing.T) {
	err := NewTimeoutError("abc123", []uint8{2, 3}, "waiting for commitments")
	msg := err.Error()
	assert.Contains(t, msg, "TIMEOUT")
	assert.Contains(t, msg, "abc123")
	assert.Contains(t, msg, "[2 3]")

	wrapped := NewMalformedError("abc123", errors.New("bad point"))
	assert.Contains(t, wrapped.Error(), "bad point")
	assert.EqualError(t, errors.Cause(wrapped.Unwrap()), "bad point")
}

func TestIsType(t *testing.T) {
	err := NewNonceReuseError("s1")
	assert.True(t, IsType(err, ErrTypeNonceReuse))
	assert.False(t, IsType(err, ErrTypeTimeout))

	wrapped := errors.Wrap(err, "handling signing package")
	assert.True(t, IsType(wrapped, ErrTypeNonceReuse))

	assert.False(t, IsType(errors.New("plain"), ErrTypeNonceReuse))
	assert.False(t, IsType(nil, ErrTypeNonceReuse))
}
