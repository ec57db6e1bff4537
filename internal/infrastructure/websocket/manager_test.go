package websocket

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerRegisterUnregister(t *testing.T) {
	m := NewManager()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)

	client := NewClient("alice", nil)
	m.Register <- client
	require.Eventually(t, func() bool { return m.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	m.Unregister <- client
	require.Eventually(t, func() bool { return m.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)

	// Unregistering closed the client's queue.
	select {
	case _, ok := <-client.Send:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("client queue was not closed on unregister")
	}
}

func TestManagerShutdownSignalsDoneAndClosesClients(t *testing.T) {
	m := NewManager()
	ctx, cancel := context.WithCancel(context.Background())
	m.Start(ctx)

	client := NewClient("alice", nil)
	m.Register <- client
	require.Eventually(t, func() bool { return m.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	cancel()

	select {
	case <-m.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("manager did not signal shutdown")
	}

	select {
	case _, ok := <-client.Send:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("client queue was not closed on shutdown")
	}

	// Queueing to a client closed by shutdown is a no-op, not a panic.
	client.Queue([]byte("late frame"))
}

func TestManagerUnregisterAfterShutdownDoesNotBlock(t *testing.T) {
	m := NewManager()
	ctx, cancel := context.WithCancel(context.Background())
	m.Start(ctx)

	client := NewClient("alice", nil)
	m.Register <- client
	require.Eventually(t, func() bool { return m.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-m.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("manager did not signal shutdown")
	}

	finished := make(chan struct{})
	go func() {
		select {
		case m.Unregister <- client:
		case <-m.Done():
		}
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("unregister blocked after shutdown")
	}
}
