package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/DoyleJ11/pickup-room-sync/internal/config"
	"github.com/DoyleJ11/pickup-room-sync/internal/roomsync"
)

func TestBackoffFor(t *testing.T) {
	fixed := backoffFor(config.Watch{ReconnectDelay: time.Second})
	assert.Equal(t, time.Second, fixed.Delay(1))
	assert.Equal(t, time.Second, fixed.Delay(5))

	exp := backoffFor(config.Watch{ReconnectDelay: time.Second, MaxReconnectDelay: 5 * time.Second})
	assert.Equal(t, time.Second, exp.Delay(1))
	assert.Equal(t, 2*time.Second, exp.Delay(2))
	assert.Equal(t, 5*time.Second, exp.Delay(10))
}

func TestWatchReportsGivingUp(t *testing.T) {
	cfg := config.Watch{
		BaseURL:        "http://127.0.0.1:1",
		WSURL:          "ws://127.0.0.1:1/ws",
		Rooms:          []string{"g1", "g2"},
		ReconnectDelay: 5 * time.Millisecond,
		MaxAttempts:    1,
	}
	managers := newManagers(cfg, zap.NewNop())
	require.Len(t, managers, 2)
	assert.Equal(t, "g2", managers[1].RoomID())

	m := managers[0]
	require.NoError(t, m.Open())
	t.Cleanup(func() { _ = closeAll(managers) })

	done := make(chan error, 1)
	go func() { done <- watch(context.Background(), m, zap.NewNop()) }()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, roomsync.ErrClosed)
	case <-time.After(5 * time.Second):
		t.Fatalf("watch did not return after the manager gave up")
	}
}
