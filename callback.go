// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package jsbridge

import (
	"context"
	"sync"
)

// InstanceCallback is notified about batch completion and tracks the number
// of script calls in flight. Implementations must be safe for concurrent use.
type InstanceCallback interface {
	// OnBatchComplete is called after a batch that dispatched native calls.
	OnBatchComplete()
	IncrementPendingJSCalls()
	DecrementPendingJSCalls()
}

// PendingCallTracker is an InstanceCallback that counts in-flight script
// calls and lets callers wait until the bridge is idle.
type PendingCallTracker struct {
	// BatchComplete, if set, is called for every completed batch. It runs on
	// Queue when one is set, otherwise synchronously.
	BatchComplete func()
	Queue         MessageQueueThread

	mu      sync.Mutex
	pending int64
	batches uint64
	idle    chan struct{} // Closed while pending == 0
}

// NewPendingCallTracker returns an idle tracker.
func NewPendingCallTracker() *PendingCallTracker {
	idle := make(chan struct{})
	close(idle)
	return &PendingCallTracker{idle: idle}
}

// OnBatchComplete implements InstanceCallback.
func (t *PendingCallTracker) OnBatchComplete() {
	t.mu.Lock()
	t.batches++
	t.mu.Unlock()

	if t.BatchComplete == nil {
		return
	}
	if t.Queue != nil {
		fn := t.BatchComplete
		t.Queue.RunOnQueue(func() error {
			fn()
			return nil
		})
		return
	}
	t.BatchComplete()
}

// IncrementPendingJSCalls implements InstanceCallback.
func (t *PendingCallTracker) IncrementPendingJSCalls() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ensureInit()
	if t.pending == 0 {
		t.idle = make(chan struct{})
	}
	t.pending++
}

// DecrementPendingJSCalls implements InstanceCallback.
func (t *PendingCallTracker) DecrementPendingJSCalls() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ensureInit()
	if t.pending == 0 {
		// script may flush batches that no native call started
		return
	}
	t.pending--
	if t.pending == 0 {
		close(t.idle)
	}
}

// Pending returns the number of script calls in flight.
func (t *PendingCallTracker) Pending() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending
}

// Batches returns the number of completed batches.
func (t *PendingCallTracker) Batches() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.batches
}

// WaitIdle blocks until no script calls are pending or ctx is done.
func (t *PendingCallTracker) WaitIdle(ctx context.Context) error {
	t.mu.Lock()
	t.ensureInit()
	idle := t.idle
	t.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *PendingCallTracker) ensureInit() {
	if t.idle == nil {
		t.idle = make(chan struct{})
		if t.pending == 0 {
			close(t.idle)
		}
	}
}
