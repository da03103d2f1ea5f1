// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package jsbridge

import (
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
)

// MessageQueueThread is a single consumer FIFO task queue. Tasks submitted
// by one goroutine run in submission order; tasks never run concurrently.
type MessageQueueThread interface {
	// RunOnQueue enqueues a task without blocking. A task error is reported
	// to the queue's error handler.
	RunOnQueue(task func() error)

	// RunOnQueueSync runs the task on the queue and waits for it, returning
	// its error. Called from the queue itself it runs the task inline.
	RunOnQueueSync(task func() error) error

	// QuitSynchronous stops the queue. Tasks not yet started are dropped.
	// Called off the queue it waits for the running task to finish.
	QuitSynchronous()

	// IsOnQueue reports whether the caller is running on the queue.
	IsOnQueue() bool
}

// ThreadQueue implements MessageQueueThread with one goroutine locked to an
// OS thread, so engines with thread affinity always see the same thread.
type ThreadQueue struct {
	name    string
	logger  *slog.Logger
	onError func(error)

	mu      sync.Mutex
	tasks   []func() error // Pending tasks, FIFO
	stopped bool

	wake chan struct{} // Signals the loop that tasks or stop are pending
	done chan struct{} // Closed when the loop exits

	goid      atomic.Uint64 // Goroutine id of the loop
	taskCount atomic.Uint64 // Number of tasks executed
}

// NewThreadQueue creates and starts a queue.
func NewThreadQueue(opts ...func(*ThreadQueue)) *ThreadQueue {
	q := &ThreadQueue{
		name:   "js",
		logger: slog.Default(),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}

	started := make(chan struct{})
	go q.run(started)
	<-started

	if q.logger != nil {
		q.logger.Debug("Message queue started", "queue", q.name)
	}
	return q
}

// WithQueueName sets the queue name used in logs.
func WithQueueName(name string) func(*ThreadQueue) {
	return func(q *ThreadQueue) {
		if name != "" {
			q.name = name
		}
	}
}

// WithQueueLogger configures the logger for the queue. nil disables logging.
func WithQueueLogger(logger *slog.Logger) func(*ThreadQueue) {
	return func(q *ThreadQueue) {
		q.logger = logger
	}
}

// WithErrorHandler receives the errors of asynchronous tasks, including
// recovered panics. The default handler logs them.
func WithErrorHandler(handler func(error)) func(*ThreadQueue) {
	return func(q *ThreadQueue) {
		q.onError = handler
	}
}

// Name returns the queue name.
func (q *ThreadQueue) Name() string {
	return q.name
}

// TaskCount returns the number of tasks the queue loop has executed.
func (q *ThreadQueue) TaskCount() uint64 {
	return q.taskCount.Load()
}

// Done is closed once the queue has stopped.
func (q *ThreadQueue) Done() <-chan struct{} {
	return q.done
}

// RunOnQueue implements MessageQueueThread.
func (q *ThreadQueue) RunOnQueue(task func() error) {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		if q.logger != nil {
			q.logger.Debug("Dropping task submitted to stopped queue", "queue", q.name)
		}
		return
	}
	q.tasks = append(q.tasks, task)
	q.mu.Unlock()
	q.signal()
}

// RunOnQueueSync implements MessageQueueThread.
func (q *ThreadQueue) RunOnQueueSync(task func() error) error {
	if q.IsOnQueue() {
		return q.safeRun(task)
	}

	result := make(chan error, 1)
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return ErrQueueStopped
	}
	q.tasks = append(q.tasks, func() error {
		result <- q.safeRun(task)
		return nil
	})
	q.mu.Unlock()
	q.signal()

	select {
	case err := <-result:
		return err
	case <-q.done:
		// the task may have been the one that stopped the queue
		select {
		case err := <-result:
			return err
		default:
			return ErrQueueStopped
		}
	}
}

// QuitSynchronous implements MessageQueueThread.
func (q *ThreadQueue) QuitSynchronous() {
	q.mu.Lock()
	alreadyStopped := q.stopped
	q.stopped = true
	dropped := len(q.tasks)
	q.tasks = nil
	q.mu.Unlock()
	q.signal()

	if !alreadyStopped && q.logger != nil {
		q.logger.Debug("Message queue stopping", "queue", q.name, "dropped", dropped)
	}
	if !q.IsOnQueue() {
		<-q.done
	}
}

// IsOnQueue implements MessageQueueThread.
func (q *ThreadQueue) IsOnQueue() bool {
	return q.goid.Load() == goroutineID()
}

func (q *ThreadQueue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// run is the queue loop.
func (q *ThreadQueue) run(started chan struct{}) {
	// Engines such as QuickJS must always be driven from the same OS thread
	runtime.LockOSThread()
	defer close(q.done)

	q.goid.Store(goroutineID())
	close(started)

	for {
		q.mu.Lock()
		for len(q.tasks) == 0 && !q.stopped {
			q.mu.Unlock()
			<-q.wake
			q.mu.Lock()
		}
		if q.stopped {
			q.mu.Unlock()
			if q.logger != nil {
				q.logger.Debug("Message queue stopped", "queue", q.name, "tasks", q.TaskCount())
			}
			return
		}
		task := q.tasks[0]
		q.tasks[0] = nil
		q.tasks = q.tasks[1:]
		q.mu.Unlock()

		err := q.safeRun(task)
		q.taskCount.Add(1)
		if err != nil {
			q.handleError(err)
		}
	}
}

// safeRun runs a task, turning a panic into an error.
func (q *ThreadQueue) safeRun(task func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic on queue %s: %v", q.name, r)
		}
	}()
	return task()
}

func (q *ThreadQueue) handleError(err error) {
	if q.onError != nil {
		q.onError(err)
		return
	}
	if q.logger != nil {
		q.logger.Error("Task failed on queue", "queue", q.name, "error", err)
	}
}

// goroutineID parses the current goroutine id from the stack header
// "goroutine 123 [running]:".
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n && buf[i] != ' '; i++ {
		id = id*10 + uint64(buf[i]-'0')
	}
	return id
}
