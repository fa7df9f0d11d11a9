package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/blogwatch/ingestor/internal/domain"
	"github.com/blogwatch/ingestor/internal/queue"
)

func TestQueueEnqueueDequeue(t *testing.T) {
	t.Parallel()

	q := New(1)
	result := make(chan queue.Task, 1)
	errCh := make(chan error, 1)

	go func() {
		task, err := q.Dequeue(context.Background())
		if err != nil {
			errCh <- err
			return
		}
		result <- task
	}()

	time.Sleep(10 * time.Millisecond) // allow goroutine to start
	task := queue.Task{Source: domain.SourceConfig{Name: "example-blog"}}
	require.NoError(t, q.Enqueue(context.Background(), task))

	select {
	case err := <-errCh:
		t.Fatalf("Dequeue() error = %v", err)
	case got := <-result:
		require.Equal(t, "example-blog", got.Source.Name)
	case <-time.After(time.Second):
		t.Fatal("dequeue did not return task")
	}
}

func TestQueueCancelationErrors(t *testing.T) {
	t.Parallel()

	qDequeue := New(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := qDequeue.Dequeue(ctx)
	require.ErrorContains(t, err, "dequeue canceled")

	qEnqueue := New(1)
	require.NoError(t, qEnqueue.Enqueue(context.Background(), queue.Task{Source: domain.SourceConfig{Name: "primed"}}))
	ctx, cancel = context.WithCancel(context.Background())
	cancel()
	err = qEnqueue.Enqueue(ctx, queue.Task{})
	require.ErrorContains(t, err, "enqueue canceled")
}

func TestQueueClose(t *testing.T) {
	t.Parallel()

	q := New(1)
	require.NoError(t, q.Close())
	_, err := q.Dequeue(context.Background())
	require.ErrorContains(t, err, "queue closed")
	// Closing twice must be safe.
	require.NoError(t, q.Close())
}
