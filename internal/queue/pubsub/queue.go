// Package pubsub provides a Google Cloud Pub/Sub-backed queue.Queue, for
// deployments that want durable cross-process task handoff instead of the
// default in-process memory queue. The orchestrator's own model is
// single-process/single-instance, so this backend is an opt-in alternative,
// not the wiring default.
package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/blogwatch/ingestor/internal/queue"
)

// Config names the project, topic, and subscription this Queue publishes to
// and receives from. The topic and subscription must already exist.
type Config struct {
	ProjectID      string
	TopicID        string
	SubscriptionID string
	// ReceiveBuffer bounds how many received-but-undequeued tasks are held
	// in memory between the background Receive loop and Dequeue callers.
	ReceiveBuffer int
}

// Queue implements queue.Queue over a Pub/Sub topic/subscription pair.
// Publish is synchronous (waits for server acknowledgment); Dequeue drains
// an internal buffered channel fed by a background Receive loop, which acks
// each message once it has been placed in that buffer.
type Queue struct {
	client *pubsub.Client
	topic  *pubsub.Topic
	sub    *pubsub.Subscription

	out    chan queue.Task
	cancel context.CancelFunc
	done   chan struct{}
	logger *zap.Logger
}

// New connects to Pub/Sub and starts the background receive loop.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Queue, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client: %w", err)
	}
	buffer := cfg.ReceiveBuffer
	if buffer <= 0 {
		buffer = 64
	}

	q := &Queue{
		client: client,
		topic:  client.Topic(cfg.TopicID),
		sub:    client.Subscription(cfg.SubscriptionID),
		out:    make(chan queue.Task, buffer),
		done:   make(chan struct{}),
		logger: logger,
	}

	recvCtx, cancel := context.WithCancel(context.Background())
	q.cancel = cancel
	go q.receiveLoop(recvCtx)
	return q, nil
}

func (q *Queue) receiveLoop(ctx context.Context) {
	defer close(q.done)
	// Receive returns only after every callback has returned, so no send on
	// out can follow this close; pending Dequeue calls then see "queue closed".
	defer close(q.out)
	err := q.sub.Receive(ctx, func(msgCtx context.Context, m *pubsub.Message) {
		var task queue.Task
		if err := json.Unmarshal(m.Data, &task); err != nil {
			q.logger.Warn("dropping malformed queue message", zap.Error(err))
			m.Ack()
			return
		}
		select {
		case q.out <- task:
			m.Ack()
		case <-msgCtx.Done():
			m.Nack()
		}
	})
	if err != nil && ctx.Err() == nil {
		q.logger.Error("pubsub receive loop exited", zap.Error(err))
	}
}

// Enqueue publishes task and waits for the publish result.
func (q *Queue) Enqueue(ctx context.Context, task queue.Task) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}
	result := q.topic.Publish(ctx, &pubsub.Message{Data: data})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish task: %w", err)
	}
	return nil
}

// Dequeue returns the next task received from the subscription.
func (q *Queue) Dequeue(ctx context.Context) (queue.Task, error) {
	select {
	case task, ok := <-q.out:
		if !ok {
			return queue.Task{}, errors.New("queue closed")
		}
		return task, nil
	case <-ctx.Done():
		return queue.Task{}, ctx.Err()
	}
}

// Close stops the receive loop, the topic's publisher, and the client.
func (q *Queue) Close() error {
	q.cancel()
	<-q.done
	q.topic.Stop()
	if err := q.client.Close(); err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}
