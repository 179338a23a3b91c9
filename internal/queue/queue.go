// Package queue holds the in-process task queue feeding the crawl workers.
package queue

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/maltedev/cloudstore/internal/crawl"
)

var (
	ErrQueueClosed = errors.New("queue is closed")
	ErrQueueFull   = errors.New("queue is full")
)

// Task is one crawl operation waiting for a worker. Higher priority pops
// first; ties keep enqueue order.
type Task struct {
	ID         string
	JobID      string
	Site       crawl.Site
	Op         crawl.Operation
	Priority   int
	EnqueuedAt time.Time
}

// NewTask assigns an ID and timestamp; priority defaults to 0.
func NewTask(jobID string, site crawl.Site, op crawl.Operation, priority int) *Task {
	return &Task{
		ID:         uuid.New().String(),
		JobID:      jobID,
		Site:       site,
		Op:         op,
		Priority:   priority,
		EnqueuedAt: time.Now(),
	}
}

type Queue interface {
	Push(task *Task) error
	Pop(ctx context.Context) (*Task, error)
	Size() int
	Close() error
}

// InMemoryQueue is a bounded priority queue. Pop blocks until a task
// arrives, the queue closes, or the context is cancelled. Waiting is
// channel-based so a cancelled Pop never touches the mutex it no longer
// holds.
type InMemoryQueue struct {
	mu      sync.Mutex
	tasks   []*Task
	maxSize int
	closed  bool
	notify  chan struct{}
}

// NewInMemoryQueue builds a queue holding at most maxSize tasks; maxSize <= 0
// means unbounded.
func NewInMemoryQueue(maxSize int) *InMemoryQueue {
	return &InMemoryQueue{
		tasks:   make([]*Task, 0),
		maxSize: maxSize,
		notify:  make(chan struct{}, 1),
	}
}

func (q *InMemoryQueue) Push(task *Task) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	if q.maxSize > 0 && len(q.tasks) >= q.maxSize {
		q.mu.Unlock()
		return ErrQueueFull
	}

	q.tasks = append(q.tasks, task)
	sort.SliceStable(q.tasks, func(i, j int) bool {
		return q.tasks[i].Priority > q.tasks[j].Priority
	})
	q.mu.Unlock()

	q.wake()
	return nil
}

func (q *InMemoryQueue) Pop(ctx context.Context) (*Task, error) {
	for {
		q.mu.Lock()
		if len(q.tasks) > 0 {
			task := q.tasks[0]
			q.tasks = q.tasks[1:]
			more := len(q.tasks) > 0 || q.closed
			q.mu.Unlock()

			// Chain the wakeup so one signal releases every waiter that
			// still has work (or the close) to observe.
			if more {
				q.wake()
			}
			return task, nil
		}
		closed := q.closed
		q.mu.Unlock()

		if closed {
			q.wake()
			return nil, ErrQueueClosed
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.notify:
		}
	}
}

func (q *InMemoryQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Close wakes every blocked Pop; queued tasks drain before Pop starts
// returning ErrQueueClosed.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	q.wake()
	return nil
}

// wake makes the signal available without blocking; the slot is size one
// because Pop re-checks state in a loop.
func (q *InMemoryQueue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
