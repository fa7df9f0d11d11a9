package pubsub

import (
	"context"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/blogwatch/ingestor/internal/domain"
	"github.com/blogwatch/ingestor/internal/queue"
)

func TestQueue_EnqueueDequeueRoundTrips(t *testing.T) {
	ctx := context.Background()

	srv := pstest.NewServer()
	defer srv.Close()

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()

	client, err := pubsub.NewClient(ctx, "project-id", option.WithGRPCConn(conn))
	require.NoError(t, err)
	defer client.Close()

	topic, err := client.CreateTopic(ctx, "topic-id")
	require.NoError(t, err)
	_, err = client.CreateSubscription(ctx, "sub-id", pubsub.SubscriptionConfig{Topic: topic})
	require.NoError(t, err)

	q := &Queue{
		client: client,
		topic:  topic,
		sub:    client.Subscription("sub-id"),
		out:    make(chan queue.Task, 4),
		done:   make(chan struct{}),
	}
	recvCtx, cancel := context.WithCancel(ctx)
	q.cancel = cancel
	go q.receiveLoop(recvCtx)

	task := queue.Task{Source: domain.SourceConfig{Name: "example-blog", URL: "https://example.com/feed"}}
	require.NoError(t, q.Enqueue(ctx, task))

	select {
	case got := <-q.out:
		require.Equal(t, "example-blog", got.Source.Name)
	case <-time.After(5 * time.Second):
		t.Fatal("dequeue did not receive published task")
	}

	require.NoError(t, q.Close())
}
