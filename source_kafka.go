package notifier

import (
	"context"
	"fmt"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.uber.org/zap"
)

// KafkaSource consumes lifecycle events from a Kafka topic. Offsets are
// committed per message after the pipeline has handled it, giving the
// at-least-once semantics the ledger is built for.
type KafkaSource struct {
	logger        *zap.Logger
	consumer      *kafka.Consumer
	consumerProps kafka.ConfigMap
	topic         string
}

// KafkaSourceOption configures a KafkaSource before the consumer is created.
type KafkaSourceOption func(*KafkaSource)

// WithKafkaConsumerProps merges props into the consumer configuration.
func WithKafkaConsumerProps(props kafka.ConfigMap) KafkaSourceOption {
	return func(s *KafkaSource) {
		for k, v := range props {
			s.consumerProps[k] = v
		}
	}
}

// WithKafkaTopic overrides the subscribed topic.
func WithKafkaTopic(topic string) KafkaSourceOption {
	return func(s *KafkaSource) {
		s.topic = topic
	}
}

// NewKafkaSource creates a Kafka-backed event source with functional options.
func NewKafkaSource(logger *zap.Logger, opts ...KafkaSourceOption) (*KafkaSource, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &KafkaSource{
		logger: logger,
		consumerProps: kafka.ConfigMap{
			// Default consumer properties
			"group.id":           "sandbox-notifier",
			"auto.offset.reset":  "earliest",
			"enable.auto.commit": false,
		},
		topic: "sandbox-lifecycle-events",
	}

	for _, opt := range opts {
		opt(s)
	}

	consumer, err := kafka.NewConsumer(&s.consumerProps)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer: %w", err)
	}
	if err := consumer.SubscribeTopics([]string{s.topic}, nil); err != nil {
		consumer.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", s.topic, err)
	}
	s.consumer = consumer

	return s, nil
}

// Poll implements EventSource. It returns at most max messages, waiting
// briefly for the first one and then draining whatever is already buffered.
func (s *KafkaSource) Poll(ctx context.Context, max int) ([]SourceMessage, error) {
	var messages []SourceMessage
	for len(messages) < max {
		select {
		case <-ctx.Done():
			return messages, nil
		default:
		}

		timeoutMs := 100
		if len(messages) == 0 {
			timeoutMs = 1000
		}
		ev := s.consumer.Poll(timeoutMs)
		if ev == nil {
			break
		}

		switch e := ev.(type) {
		case *kafka.Message:
			msg := e
			messages = append(messages, SourceMessage{
				Value: msg.Value,
				Ack: func() error {
					_, err := s.consumer.CommitMessage(msg)
					return err
				},
			})
		case kafka.Error:
			if e.IsFatal() {
				return messages, fmt.Errorf("kafka consumer error: %w", e)
			}
			s.logger.Warn("Transient kafka error", zap.String("error", e.Error()))
		}
	}
	return messages, nil
}

// Close implements EventSource.
func (s *KafkaSource) Close() error {
	s.logger.Info("Closing kafka consumer")
	return s.consumer.Close()
}
