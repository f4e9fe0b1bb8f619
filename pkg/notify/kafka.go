// Package notify holds the delivery sinks the scheduler hands follow-ups to.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"linkgate/pkg/logging"
	"linkgate/pkg/scheduler"

	"github.com/twmb/franz-go/pkg/kgo"
)

const EventFollowUpDue = "follow_up.due"

// FollowUpEvent is the message published for each delivery. Consumers
// deduplicate on IdempotencyKey.
type FollowUpEvent struct {
	Type           string             `json:"type"`
	IdempotencyKey string             `json:"idempotency_key"`
	Delivery       scheduler.Delivery `json:"delivery"`
}

type producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// KafkaSink publishes follow-ups to a topic keyed by delivery ID, so retries
// of one delivery land on the same partition.
type KafkaSink struct {
	client producer
	closer func()
	topic  string
}

func NewKafkaSink(cfg KafkaConfig) (*KafkaSink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka topic is required")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &KafkaSink{client: client, closer: client.Close, topic: cfg.Topic}, nil
}

func (k *KafkaSink) Send(ctx context.Context, d scheduler.Delivery) error {
	payload, err := json.Marshal(FollowUpEvent{
		Type:           EventFollowUpDue,
		IdempotencyKey: d.Key(),
		Delivery:       d,
	})
	if err != nil {
		return fmt.Errorf("encode follow-up %s: %w", d.Key(), err)
	}

	record := &kgo.Record{
		Topic: k.topic,
		Key:   []byte(d.Key()),
		Value: payload,
		Headers: []kgo.RecordHeader{
			{Key: "event-type", Value: []byte(EventFollowUpDue)},
		},
	}
	if err := k.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("publish follow-up %s: %w", d.Key(), err)
	}
	return nil
}

func (k *KafkaSink) Close() {
	if k.closer != nil {
		k.closer()
	}
}

// NewSink returns a Kafka sink when brokers are configured and a log sink
// otherwise. The returned func releases the sink's resources.
func NewSink(cfg KafkaConfig, logger *logging.Logger) (scheduler.Sink, func(), error) {
	if len(cfg.Brokers) == 0 {
		return NewLogSink(logger), func() {}, nil
	}
	sink, err := NewKafkaSink(cfg)
	if err != nil {
		return nil, nil, err
	}
	return sink, sink.Close, nil
}
