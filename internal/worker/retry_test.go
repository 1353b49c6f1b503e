package worker

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeDialPolicy(t *testing.T) {
	policy := normalizeDialPolicy(DialPolicy{InitialBackoff: time.Second, MaxBackoff: time.Millisecond, BackoffFactor: 0.5})
	assert.Equal(t, time.Second, policy.InitialBackoff)
	assert.Equal(t, time.Second, policy.MaxBackoff)
	assert.Equal(t, 2.0, policy.BackoffFactor)
}

func TestDialWithRetryGivesUp(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	var waits []time.Duration
	err = DialWithRetry(context.Background(), addr, newTestAgent(t), DialPolicy{
		InitialBackoff: time.Millisecond,
		MaxBackoff:     3 * time.Millisecond,
		BackoffFactor:  2,
		MaxAttempts:    4,
		OnRetry: func(_ int, _ error, wait time.Duration) {
			waits = append(waits, wait)
		},
	})
	require.Error(t, err)
	assert.Equal(t, []time.Duration{time.Millisecond, 2 * time.Millisecond, 3 * time.Millisecond}, waits)
}

func TestDialWithRetryReachesLateMaster(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	agent := newTestAgent(t)
	done := make(chan error, 1)
	go func() {
		done <- DialWithRetry(ctx, addr, agent, DialPolicy{InitialBackoff: 10 * time.Millisecond, MaxBackoff: 20 * time.Millisecond})
	}()

	time.Sleep(50 * time.Millisecond)
	late, err := net.Listen("tcp", addr)
	require.NoError(t, err)
	defer late.Close()

	conn, err := late.Accept()
	require.NoError(t, err)
	conn.Close()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatalf("worker did not return")
	}
}
