package transport

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kashguard/go-threshold-engine/internal/mpc/message"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestPublishInvokesHandlerAndRoutesResponse(t *testing.T) {
	hub := NewHub()
	coordinator := hub.Link(1, testLogger())
	responder := hub.Link(2, testLogger())

	responder.SetHandler(func(ctx context.Context, env Envelope) message.Message {
		ping, ok := env.Msg.(*message.Ping)
		require.True(t, ok)
		return &message.Pong{SessionID: ping.SessionID, From: responder.Self()}
	})

	ctx := context.Background()
	require.NoError(t, coordinator.Publish(ctx, 2, &message.Ping{SessionID: "s1", From: 1}))

	envs, err := coordinator.AwaitResponses(ctx, "s1", message.TypePong, 1, time.Second)
	require.NoError(t, err)
	require.Len(t, envs, 1)
	assert.Equal(t, uint8(2), envs[0].From)
}

func TestBroadcastReachesAllPeers(t *testing.T) {
	hub := NewHub()
	coordinator := hub.Link(1, testLogger())
	for _, id := range []uint8{2, 3, 4} {
		peer := hub.Link(id, testLogger())
		self := peer.Self()
		peer.SetHandler(func(ctx context.Context, env Envelope) message.Message {
			return &message.Pong{SessionID: env.Msg.Session(), From: self}
		})
	}

	ctx := context.Background()
	require.NoError(t, coordinator.Publish(ctx, Broadcast, &message.Ping{SessionID: "bc", From: 1}))

	envs, err := coordinator.AwaitResponses(ctx, "bc", message.TypePong, 3, time.Second)
	require.NoError(t, err)
	assert.Len(t, envs, 3)
}

func TestAwaitResponsesDeduplicatesBySender(t *testing.T) {
	hub := NewHub()
	coordinator := hub.Link(1, testLogger())
	responder := hub.Link(2, testLogger())

	ctx := context.Background()
	// 同一响应投递两次，只应计为一个发送方
	for i := 0; i < 2; i++ {
		require.NoError(t, responder.Publish(ctx, 1, &message.Pong{SessionID: "dup", From: 2}))
	}

	envs, err := coordinator.AwaitResponses(ctx, "dup", message.TypePong, 2, 200*time.Millisecond)
	assert.Error(t, err)
	assert.Len(t, envs, 1)
}

func TestAwaitResponsesBeforePublishRace(t *testing.T) {
	hub := NewHub()
	coordinator := hub.Link(1, testLogger())
	responder := hub.Link(2, testLogger())

	ctx := context.Background()
	// 响应先于 Await 到达也不能丢失
	require.NoError(t, responder.Publish(ctx, 1, &message.Pong{SessionID: "early", From: 2}))
	time.Sleep(50 * time.Millisecond)

	envs, err := coordinator.AwaitResponses(ctx, "early", message.TypePong, 1, time.Second)
	require.NoError(t, err)
	assert.Len(t, envs, 1)
}

func TestAwaitResponsesIgnoresWrongType(t *testing.T) {
	hub := NewHub()
	coordinator := hub.Link(1, testLogger())
	responder := hub.Link(2, testLogger())

	ctx := context.Background()
	require.NoError(t, responder.Publish(ctx, 1, &message.Pong{SessionID: "mixed", From: 2}))
	require.NoError(t, responder.Publish(ctx, 1, &message.CommitmentResponse{
		SessionID:     "mixed",
		ParticipantID: 2,
		Commitment:    make([]byte, 66),
	}))

	envs, err := coordinator.AwaitResponses(ctx, "mixed", message.TypeCommitmentResponse, 1, time.Second)
	require.NoError(t, err)
	require.Len(t, envs, 1)
	assert.Equal(t, message.TypeCommitmentResponse, envs[0].Msg.Type())
}

func TestAwaitResponsesTimeout(t *testing.T) {
	hub := NewHub()
	coordinator := hub.Link(1, testLogger())

	start := time.Now()
	envs, err := coordinator.AwaitResponses(context.Background(), "none", message.TypePong, 1, 100*time.Millisecond)
	assert.Error(t, err)
	assert.Empty(t, envs)
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}

func TestAwaitResponsesContextCancel(t *testing.T) {
	hub := NewHub()
	coordinator := hub.Link(1, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := coordinator.AwaitResponses(ctx, "cancelled", message.TypePong, 1, 5*time.Second)
	assert.Error(t, err)
}

func TestClosedLinkRejectsPublish(t *testing.T) {
	hub := NewHub()
	link := hub.Link(1, testLogger())
	require.NoError(t, link.Close())

	err := link.Publish(context.Background(), 2, &message.Ping{SessionID: "s", From: 1})
	assert.Error(t, err)
}

func TestPublishToUnknownPeerIsSilent(t *testing.T) {
	hub := NewHub()
	link := hub.Link(1, testLogger())

	// 不可靠投递：目标不存在不算错误
	assert.NoError(t, link.Publish(context.Background(), 9, &message.Ping{SessionID: "s", From: 1}))
}
