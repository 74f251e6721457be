package main

import (
	"context"

	gcppubsub "cloud.google.com/go/pubsub/v2"
)

type pendingPublish interface {
	Get(context.Context) (serverID string, err error)
}

// sink is where the relay hands messages. Publish must not block on the ack.
type sink interface {
	Ping(context.Context) error
	Publish(ctx context.Context, topic string, msg *gcppubsub.Message) pendingPublish
}

type publisherSource interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

// pubsubSink adapts the shared Pub/Sub client to sink.
type pubsubSink struct {
	client publisherSource
}

func newPubSubSink(client publisherSource) *pubsubSink {
	return &pubsubSink{client: client}
}

func (s *pubsubSink) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}

func (s *pubsubSink) Publish(ctx context.Context, topic string, msg *gcppubsub.Message) pendingPublish {
	p := s.client.Publisher(topic)
	if p == nil {
		return nil
	}
	return p.Publish(ctx, msg)
}
