// Package taskqueue runs closures one at a time, in submission order, on a
// dedicated goroutine. Every call and every group client owns one queue so
// all of its state changes are serialized without holding locks across
// callbacks.
package taskqueue

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	// ErrClosed indicates a task was posted after Close.
	ErrClosed = errors.New("task queue closed")

	// ErrFull indicates the queue is at capacity.
	ErrFull = errors.New("task queue full")
)

// Task is one unit of work.
type Task func()

// Report describes a task that panicked.
type Report struct {
	Queue string
	Panic interface{}
	Stack []byte
}

func (r Report) String() string {
	return fmt.Sprintf("queue %s: panic: %v", r.Queue, r.Panic)
}

// Queue is an ordered mailbox served by one goroutine.
type Queue struct {
	name     string
	capacity int
	onPanic  func(Report)

	mu     sync.Mutex
	cond   *sync.Cond
	tasks  []Task
	closed bool
	done   chan struct{}
}

// New starts a queue. A capacity of zero means unbounded. onPanic may be
// nil, in which case panics are only logged.
func New(name string, capacity int, onPanic func(Report)) *Queue {
	q := &Queue{
		name:     name,
		capacity: capacity,
		onPanic:  onPanic,
		done:     make(chan struct{}),
	}
	q.cond = sync.NewCond(&q.mu)
	go q.loop()
	return q
}

// Name returns the queue name used in logs.
func (q *Queue) Name() string {
	return q.name
}

// Post enqueues a task.
func (q *Queue) Post(task Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}
	if q.capacity > 0 && len(q.tasks) >= q.capacity {
		logrus.WithFields(logrus.Fields{
			"function": "Post",
			"queue":    q.name,
			"capacity": q.capacity,
		}).Warn("Task queue full, dropping task")
		return ErrFull
	}
	q.tasks = append(q.tasks, task)
	q.cond.Signal()
	return nil
}

// Close stops accepting tasks. Tasks already queued still run; Done is
// closed after the last one. Close never blocks and may be called from a
// task running on the queue itself.
func (q *Queue) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		q.cond.Signal()
	}
	q.mu.Unlock()
}

// Done is closed once the queue has drained after Close.
func (q *Queue) Done() <-chan struct{} {
	return q.done
}

// Wait blocks until the queue has drained or ctx ends.
func (q *Queue) Wait(ctx context.Context) error {
	select {
	case <-q.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Sync blocks until every task posted before the call has run.
func (q *Queue) Sync(ctx context.Context) error {
	reached := make(chan struct{})
	if err := q.Post(func() { close(reached) }); err != nil {
		if errors.Is(err, ErrClosed) {
			return q.Wait(ctx)
		}
		return err
	}
	select {
	case <-reached:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Len returns the number of queued tasks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

func (q *Queue) loop() {
	defer close(q.done)
	for {
		q.mu.Lock()
		for len(q.tasks) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.tasks) == 0 {
			q.mu.Unlock()
			return
		}
		task := q.tasks[0]
		q.tasks[0] = nil
		q.tasks = q.tasks[1:]
		q.mu.Unlock()

		q.run(task)
	}
}

func (q *Queue) run(task Task) {
	defer func() {
		if r := recover(); r != nil {
			report := Report{Queue: q.name, Panic: r, Stack: debug.Stack()}
			logrus.WithFields(logrus.Fields{
				"function": "run",
				"queue":    q.name,
				"panic":    fmt.Sprint(r),
			}).Error("Task panicked")
			if q.onPanic != nil {
				q.onPanic(report)
			}
		}
	}()
	task()
}
