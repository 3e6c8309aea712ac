package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemo-labs/mnemo/internal/core/ports/driven"
)

func TestQueueProcessesTasks(t *testing.T) {
	var mu sync.Mutex
	var processed []string

	q := New(WithWorkers(1))
	q.Register("discover", func(_ context.Context, task driven.Task) error {
		mu.Lock()
		processed = append(processed, task.ItemID)
		mu.Unlock()
		return nil
	})
	q.Start()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, q.Enqueue(context.Background(), driven.Task{Kind: "discover", ItemID: id}))
	}
	q.Stop()

	// A single worker preserves FIFO order.
	assert.Equal(t, []string{"a", "b", "c"}, processed)
}

func TestQueueEnqueueDoesNotBlockOnExecution(t *testing.T) {
	release := make(chan struct{})

	q := New(WithWorkers(1))
	q.Register("slow", func(_ context.Context, _ driven.Task) error {
		<-release
		return nil
	})
	q.Start()

	start := time.Now()
	require.NoError(t, q.Enqueue(context.Background(), driven.Task{Kind: "slow", ItemID: "x"}))
	require.NoError(t, q.Enqueue(context.Background(), driven.Task{Kind: "slow", ItemID: "y"}))
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	close(release)
	q.Stop()
}

func TestQueueRetriesFailedTaskOnce(t *testing.T) {
	var mu sync.Mutex
	attempts := 0

	q := New(WithWorkers(1))
	q.Register("flaky", func(_ context.Context, _ driven.Task) error {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		if attempts == 1 {
			return errors.New("transient")
		}
		return nil
	})
	q.Start()

	require.NoError(t, q.Enqueue(context.Background(), driven.Task{Kind: "flaky", ItemID: "x"}))
	q.Stop()

	assert.Equal(t, 2, attempts)
}

func TestQueueRecoversFromPanickingHandler(t *testing.T) {
	done := make(chan struct{})

	q := New(WithWorkers(1))
	q.Register("boom", func(_ context.Context, _ driven.Task) error {
		panic("handler bug")
	})
	q.Register("ok", func(_ context.Context, _ driven.Task) error {
		close(done)
		return nil
	})
	q.Start()
	defer q.Stop()

	require.NoError(t, q.Enqueue(context.Background(), driven.Task{Kind: "boom", ItemID: "x"}))
	require.NoError(t, q.Enqueue(context.Background(), driven.Task{Kind: "ok", ItemID: "y"}))

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker died after panic")
	}
}

func TestQueueEnqueueAfterStop(t *testing.T) {
	q := New()
	q.Start()
	q.Stop()

	err := q.Enqueue(context.Background(), driven.Task{Kind: "discover", ItemID: "x"})
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestQueueEnqueueRacingStopDoesNotPanic(t *testing.T) {
	for i := 0; i < 25; i++ {
		q := New(WithWorkers(2), WithBufferSize(8))
		q.Register("discover", func(_ context.Context, _ driven.Task) error {
			return nil
		})
		q.Start()

		var wg sync.WaitGroup
		for g := 0; g < 8; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 100; j++ {
					// Either outcome is fine; the point is that a send
					// must never race the channel close in Stop.
					_ = q.Enqueue(context.Background(), driven.Task{Kind: "discover", ItemID: "x"})
				}
			}()
		}

		q.Stop()
		wg.Wait()

		err := q.Enqueue(context.Background(), driven.Task{Kind: "discover", ItemID: "x"})
		assert.ErrorIs(t, err, ErrQueueClosed)
	}
}

func TestQueueStopFinishesBufferedTasks(t *testing.T) {
	release := make(chan struct{})
	var mu sync.Mutex
	var processed []string

	q := New(WithWorkers(1))
	q.Register("discover", func(_ context.Context, task driven.Task) error {
		<-release
		mu.Lock()
		processed = append(processed, task.ItemID)
		mu.Unlock()
		return nil
	})
	q.Start()

	// One task in flight, two still buffered when Stop begins.
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, q.Enqueue(context.Background(), driven.Task{Kind: "discover", ItemID: id}))
	}

	stopped := make(chan struct{})
	go func() {
		q.Stop()
		close(stopped)
	}()
	close(release)
	<-stopped

	assert.Equal(t, []string{"a", "b", "c"}, processed)
}

func TestQueueUnknownKindDoesNotKillWorker(t *testing.T) {
	done := make(chan struct{})

	q := New(WithWorkers(1))
	q.Register("known", func(_ context.Context, _ driven.Task) error {
		close(done)
		return nil
	})
	q.Start()
	defer q.Stop()

	require.NoError(t, q.Enqueue(context.Background(), driven.Task{Kind: "mystery", ItemID: "x"}))
	require.NoError(t, q.Enqueue(context.Background(), driven.Task{Kind: "known", ItemID: "y"}))

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not continue past unknown task kind")
	}
}
