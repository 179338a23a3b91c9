package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/cloudstore/internal/crawl"
)

func searchTask(jobID, query string, priority int) *Task {
	return NewTask(jobID, crawl.SiteAliExpress, crawl.Operation{
		Kind:  crawl.OpSearch,
		Query: query,
	}, priority)
}

func TestPushPop(t *testing.T) {
	q := NewInMemoryQueue(0)
	defer q.Close()

	task := searchTask("job-1", "film camera", 0)
	require.NoError(t, q.Push(task))
	assert.Equal(t, 1, q.Size())

	got, err := q.Pop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, task.ID, got.ID)
	assert.Equal(t, "film camera", got.Op.Query)
	assert.Equal(t, 0, q.Size())
}

func TestPriorityOrdering(t *testing.T) {
	q := NewInMemoryQueue(0)
	defer q.Close()

	low := searchTask("job-1", "low", 0)
	high := searchTask("job-2", "high", 10)
	mid := searchTask("job-3", "mid", 5)

	require.NoError(t, q.Push(low))
	require.NoError(t, q.Push(high))
	require.NoError(t, q.Push(mid))

	ctx := context.Background()
	first, _ := q.Pop(ctx)
	second, _ := q.Pop(ctx)
	third, _ := q.Pop(ctx)

	assert.Equal(t, "high", first.Op.Query)
	assert.Equal(t, "mid", second.Op.Query)
	assert.Equal(t, "low", third.Op.Query)
}

func TestTiesKeepEnqueueOrder(t *testing.T) {
	q := NewInMemoryQueue(0)
	defer q.Close()

	for _, query := range []string{"a", "b", "c"} {
		require.NoError(t, q.Push(searchTask("job", query, 1)))
	}

	ctx := context.Background()
	for _, want := range []string{"a", "b", "c"} {
		task, err := q.Pop(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, task.Op.Query)
	}
}

func TestBoundedQueueRejectsWhenFull(t *testing.T) {
	q := NewInMemoryQueue(2)
	defer q.Close()

	require.NoError(t, q.Push(searchTask("job-1", "a", 0)))
	require.NoError(t, q.Push(searchTask("job-2", "b", 0)))

	err := q.Push(searchTask("job-3", "c", 0))
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestPopBlocksUntilPush(t *testing.T) {
	q := NewInMemoryQueue(0)
	defer q.Close()

	task := searchTask("job-1", "late arrival", 0)
	go func() {
		time.Sleep(20 * time.Millisecond)
		q.Push(task)
	}()

	got, err := q.Pop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, task.ID, got.ID)
}

func TestPopRespectsContextCancellation(t *testing.T) {
	q := NewInMemoryQueue(0)
	defer q.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Pop(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCancelledPopLeavesQueueUsable(t *testing.T) {
	q := NewInMemoryQueue(0)
	defer q.Close()

	// Repeatedly cancel a blocked Pop, then verify the queue still hands
	// out tasks. A waiter that dies holding or double-releasing the lock
	// would wedge or crash this loop.
	for i := 0; i < 100; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		errc := make(chan error, 1)
		go func() {
			_, err := q.Pop(ctx)
			errc <- err
		}()
		cancel()
		require.ErrorIs(t, <-errc, context.Canceled)

		task := searchTask("job", "still alive", 0)
		require.NoError(t, q.Push(task))
		got, err := q.Pop(context.Background())
		require.NoError(t, err)
		assert.Equal(t, task.ID, got.ID)
	}
}

func TestConcurrentCancelsDoNotLoseTasks(t *testing.T) {
	q := NewInMemoryQueue(0)
	defer q.Close()

	const total = 200
	popped := make(chan *Task, total)
	done := make(chan struct{})

	// Two consumers that keep popping until told to stop, racing a
	// churn of short-lived cancelled waiters.
	ctx, stop := context.WithCancel(context.Background())
	for i := 0; i < 2; i++ {
		go func() {
			for {
				task, err := q.Pop(ctx)
				if err != nil {
					return
				}
				popped <- task
			}
		}()
	}
	go func() {
		for {
			select {
			case <-done:
				return
			default:
			}
			cctx, cancel := context.WithCancel(context.Background())
			go func() {
				// A cancelled waiter may still win a task it already
				// held the lock for; count it so none go missing.
				if task, err := q.Pop(cctx); err == nil {
					popped <- task
				}
			}()
			cancel()
		}
	}()

	for i := 0; i < total; i++ {
		require.NoError(t, q.Push(searchTask("job", "w", i%3)))
	}

	seen := make(map[string]struct{}, total)
	for i := 0; i < total; i++ {
		select {
		case task := <-popped:
			seen[task.ID] = struct{}{}
		case <-time.After(2 * time.Second):
			t.Fatalf("stalled after %d of %d tasks", i, total)
		}
	}
	assert.Len(t, seen, total)

	close(done)
	stop()
}

func TestCloseDrainsThenRejects(t *testing.T) {
	q := NewInMemoryQueue(0)

	require.NoError(t, q.Push(searchTask("job-1", "queued before close", 0)))
	require.NoError(t, q.Close())

	ctx := context.Background()
	task, err := q.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, "queued before close", task.Op.Query)

	_, err = q.Pop(ctx)
	assert.ErrorIs(t, err, ErrQueueClosed)

	err = q.Push(searchTask("job-2", "after close", 0))
	assert.ErrorIs(t, err, ErrQueueClosed)
}
