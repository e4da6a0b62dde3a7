package session

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kashguard/go-threshold-engine/internal/mpc/protocol"
)

func newTestStore(t *testing.T, ttl time.Duration) *Store {
	t.Helper()
	s := NewStore(zerolog.Nop(), ttl)
	t.Cleanup(s.Close)
	return s
}

func TestNewSessionID(t *testing.T) {
	a := NewSessionID()
	b := NewSessionID()
	assert.Len(t, a, 32)
	assert.NotEqual(t, a, b)
}

func TestNonceLifecycle(t *testing.T) {
	store := newTestStore(t, time.Minute)

	commitment, err := store.GetOrCreateNonce("s1")
	require.NoError(t, err)
	require.NotNil(t, commitment)

	// 重复的承诺请求幂等返回同一承诺
	again, err := store.GetOrCreateNonce("s1")
	require.NoError(t, err)
	assert.Equal(t, commitment.Hiding.SerializeCompressed(), again.Hiding.SerializeCompressed())
	assert.Equal(t, commitment.Binding.SerializeCompressed(), again.Binding.SerializeCompressed())

	nonce, err := store.ConsumeNonce("s1")
	require.NoError(t, err)
	require.NotNil(t, nonce)
	assert.False(t, nonce.D.IsZero())
	nonce.Zero()
}

func TestCommitmentPeek(t *testing.T) {
	store := newTestStore(t, time.Minute)

	_, err := store.Commitment("missing")
	require.Error(t, err)
	assert.True(t, protocol.IsType(err, protocol.ErrTypeUnknownSession))

	created, err := store.GetOrCreateNonce("s1")
	require.NoError(t, err)

	// 查看不改变消费状态，可以重复进行
	peeked, err := store.Commitment("s1")
	require.NoError(t, err)
	assert.True(t, created.Equal(peeked))
	_, err = store.Commitment("s1")
	require.NoError(t, err)

	_, err = store.ConsumeNonce("s1")
	require.NoError(t, err)

	_, err = store.Commitment("s1")
	require.Error(t, err)
	assert.True(t, protocol.IsType(err, protocol.ErrTypeNonceReuse))
}

func TestConsumeNonceExactlyOnce(t *testing.T) {
	store := newTestStore(t, time.Minute)

	_, err := store.GetOrCreateNonce("s1")
	require.NoError(t, err)

	_, err = store.ConsumeNonce("s1")
	require.NoError(t, err)

	// 第二次消费必须报 nonce 重用，且槽位不回退为可用
	_, err = store.ConsumeNonce("s1")
	require.Error(t, err)
	assert.True(t, protocol.IsType(err, protocol.ErrTypeNonceReuse))

	_, err = store.GetOrCreateNonce("s1")
	require.Error(t, err)
	assert.True(t, protocol.IsType(err, protocol.ErrTypeNonceReuse))
}

func TestConsumeNonceUnknownSession(t *testing.T) {
	store := newTestStore(t, time.Minute)

	_, err := store.ConsumeNonce("never-created")
	require.Error(t, err)
	assert.True(t, protocol.IsType(err, protocol.ErrTypeUnknownSession))
}

func TestAbortZeroizesNonce(t *testing.T) {
	store := newTestStore(t, time.Minute)

	_, err := store.GetOrCreateNonce("s1")
	require.NoError(t, err)
	store.Abort("s1")

	_, err = store.ConsumeNonce("s1")
	assert.True(t, protocol.IsType(err, protocol.ErrTypeUnknownSession))
}

func TestExpireDropsStaleSlots(t *testing.T) {
	store := newTestStore(t, 10*time.Millisecond)

	_, err := store.GetOrCreateNonce("stale")
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	store.expire()

	_, err = store.ConsumeNonce("stale")
	assert.True(t, protocol.IsType(err, protocol.ErrTypeUnknownSession))
}
