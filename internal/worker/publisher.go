package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub/v2"
)

// Publisher queues worker jobs on a Pub/Sub topic. It satisfies the
// signal service's async publisher so fanout can run out of process.
type Publisher struct {
	client    *pubsub.Client
	publisher *pubsub.Publisher
	topicName string
}

// NewPublisher creates a publisher for the given topic.
func NewPublisher(ctx context.Context, projectID, topicName string) (*Publisher, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	return &Publisher{
		client:    client,
		publisher: client.Publisher(topicName),
		topicName: topicName,
	}, nil
}

// PublishFanout queues a fanout job for a signal.
func (p *Publisher) PublishFanout(ctx context.Context, signalID string) error {
	data, err := json.Marshal(JobMessage{
		JobType:  JobTypeSignalFanout,
		SignalID: signalID,
	})
	if err != nil {
		return fmt.Errorf("encoding fanout job: %w", err)
	}

	result := p.publisher.Publish(ctx, &pubsub.Message{Data: data})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publishing fanout job: %w", err)
	}
	return nil
}

// Close stops the publisher and releases the client.
func (p *Publisher) Close() error {
	p.publisher.Stop()
	return p.client.Close()
}
