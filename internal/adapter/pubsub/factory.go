package pubsub

import (
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/v3/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// AMQPFactory opens one non-durable, exclusive queue per consumer on the
// fanout exchange named after the topic.
type AMQPFactory struct {
	uri    string
	logger watermill.LoggerAdapter
}

func NewAMQPFactory(uri string, logger watermill.LoggerAdapter) *AMQPFactory {
	return &AMQPFactory{uri: uri, logger: logger}
}

func (f *AMQPFactory) Subscriber(consumer string) (message.Subscriber, error) {
	// [UNIQUE_SESSION_QUEUE] Format: changes.items_<session id>
	cfg := amqp.NewNonDurablePubSubConfig(f.uri, amqp.GenerateQueueNameTopicNameWithSuffix(consumer))
	sub, err := amqp.NewSubscriber(cfg, f.logger)
	if err != nil {
		return nil, fmt.Errorf("amqp subscriber: %w", err)
	}
	return sub, nil
}

func (f *AMQPFactory) Publisher() (message.Publisher, error) {
	cfg := amqp.NewNonDurablePubSubConfig(f.uri, amqp.GenerateQueueNameTopicName)
	pub, err := amqp.NewPublisher(cfg, f.logger)
	if err != nil {
		return nil, fmt.Errorf("amqp publisher: %w", err)
	}
	return pub, nil
}

// ChannelFactory shares one in-process GoChannel between every consumer.
// Used by tests and single-binary demos.
type ChannelFactory struct {
	ch *gochannel.GoChannel
}

func NewChannelFactory(ch *gochannel.GoChannel) *ChannelFactory {
	return &ChannelFactory{ch: ch}
}

// Subscriber hands out the shared channel; closing it must not close the bus.
func (f *ChannelFactory) Subscriber(string) (message.Subscriber, error) {
	return sharedSubscriber{f.ch}, nil
}

type sharedSubscriber struct {
	*gochannel.GoChannel
}

func (sharedSubscriber) Close() error { return nil }
