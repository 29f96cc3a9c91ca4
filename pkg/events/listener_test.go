package events

import (
	"context"
	"testing"
	"time"

	"github.com/codeready-toolchain/deepsoc/pkg/database"
	testdb "github.com/codeready-toolchain/deepsoc/test/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListener_DeliversNotifications(t *testing.T) {
	cfg := testdb.NewTestConfig(t)
	ctx := context.Background()

	received := make(chan []byte, 1)
	listener := NewListener(cfg.DSN())
	listener.On(ChannelEventIncoming, func(payload []byte) {
		received <- payload
	})

	require.NoError(t, listener.Start(ctx))
	defer listener.Stop(ctx)

	client, err := database.NewClient(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	pub := NewPublisher(client.DB())

	// Give the LISTEN connection a moment to settle before firing.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, pub.Publish(ctx, ChannelEventIncoming, EventIncomingPayload{
		BasePayload: BasePayload{Type: EventTypeEventIncoming, EventID: "ev-1"},
	}))

	select {
	case payload := <-received:
		assert.Contains(t, string(payload), "ev-1")
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for notification")
	}
}

func TestListener_IgnoresUnregisteredChannels(t *testing.T) {
	cfg := testdb.NewTestConfig(t)
	ctx := context.Background()

	calls := 0
	listener := NewListener(cfg.DSN())
	listener.On(ChannelTaskCreated, func(payload []byte) {
		calls++
	})

	require.NoError(t, listener.Start(ctx))
	defer listener.Stop(ctx)

	client, err := database.NewClient(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	pub := NewPublisher(client.DB())

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, pub.Publish(ctx, ChannelActionCreated, ActionCreatedPayload{
		BasePayload: BasePayload{Type: EventTypeActionCreated, EventID: "ev-1"},
	}))

	time.Sleep(500 * time.Millisecond)
	assert.Equal(t, 0, calls)
}
