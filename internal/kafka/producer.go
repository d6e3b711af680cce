package kafka

import (
	"context"

	kafka "github.com/segmentio/kafka-go"
)

// Producer is a thin wrapper over a kafka-go writer with per-message topic
// selection, so one producer serves order, redemption and notification
// events alike.
type Producer struct {
	Writer *kafka.Writer
}

func NewProducer(brokers []string) *Producer {
	writer := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Balancer: &kafka.LeastBytes{},
	}
	return &Producer{Writer: writer}
}

func (p *Producer) Publish(topic string, key string, value []byte) error {
	return p.Writer.WriteMessages(context.Background(),
		kafka.Message{
			Topic: topic,
			Key:   []byte(key),
			Value: value,
		},
	)
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}

// NoopProducer stands in when Kafka is disabled; every publish silently
// succeeds.
type NoopProducer struct{}

func (NoopProducer) Publish(topic string, key string, value []byte) error { return nil }

func (NoopProducer) Close() error { return nil }
