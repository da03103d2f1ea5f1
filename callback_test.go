// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package jsbridge

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPendingCallTracker_Counts(t *testing.T) {
	tracker := NewPendingCallTracker()
	require.Equal(t, int64(0), tracker.Pending())

	tracker.IncrementPendingJSCalls()
	tracker.IncrementPendingJSCalls()
	require.Equal(t, int64(2), tracker.Pending())

	tracker.DecrementPendingJSCalls()
	tracker.DecrementPendingJSCalls()
	// Extra decrements are clamped at zero
	tracker.DecrementPendingJSCalls()
	require.Equal(t, int64(0), tracker.Pending())

	tracker.OnBatchComplete()
	require.Equal(t, uint64(1), tracker.Batches())
}

func TestPendingCallTracker_WaitIdle(t *testing.T) {
	tracker := NewPendingCallTracker()
	require.NoError(t, tracker.WaitIdle(context.Background()))

	tracker.IncrementPendingJSCalls()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, tracker.WaitIdle(ctx), context.DeadlineExceeded)

	go func() {
		time.Sleep(10 * time.Millisecond)
		tracker.DecrementPendingJSCalls()
	}()
	require.NoError(t, tracker.WaitIdle(context.Background()))
}

func TestPendingCallTracker_ZeroValue(t *testing.T) {
	var tracker PendingCallTracker
	require.NoError(t, tracker.WaitIdle(context.Background()))
	tracker.IncrementPendingJSCalls()
	tracker.DecrementPendingJSCalls()
	require.NoError(t, tracker.WaitIdle(context.Background()))
}

func TestPendingCallTracker_BatchComplete(t *testing.T) {
	t.Run("Synchronous", func(t *testing.T) {
		calls := 0
		tracker := NewPendingCallTracker()
		tracker.BatchComplete = func() { calls++ }
		tracker.OnBatchComplete()
		require.Equal(t, 1, calls)
	})

	t.Run("Redispatched", func(t *testing.T) {
		queue := NewThreadQueue(WithQueueName("native"))
		defer queue.QuitSynchronous()

		done := make(chan bool, 1)
		tracker := NewPendingCallTracker()
		tracker.Queue = queue
		tracker.BatchComplete = func() { done <- queue.IsOnQueue() }
		tracker.OnBatchComplete()

		select {
		case onQueue := <-done:
			require.True(t, onQueue)
		case <-time.After(2 * time.Second):
			t.Fatal("BatchComplete was not redispatched")
		}
	})
}

func TestPendingCallTracker_Concurrent(t *testing.T) {
	tracker := NewPendingCallTracker()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				tracker.IncrementPendingJSCalls()
				tracker.DecrementPendingJSCalls()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, int64(0), tracker.Pending())
	require.NoError(t, tracker.WaitIdle(context.Background()))
}
