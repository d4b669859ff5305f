package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/api-sage/bank-ledger/src/internal/domain"
	"github.com/api-sage/bank-ledger/src/internal/logger"
	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes ledger events as JSON messages. The topic is chosen per
// message so one writer serves every event stream.
type Publisher struct {
	writer messageWriter
}

func NewPublisher(brokers []string) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			WriteTimeout:           5 * time.Second,
			AllowAutoTopicCreation: true,
		},
	}
}

func newPublisherWithWriter(writer messageWriter) *Publisher {
	return &Publisher{writer: writer}
}

func (p *Publisher) Publish(ctx context.Context, topic string, key string, event any) error {
	msg, err := buildMessage(topic, key, event)
	if err != nil {
		return err
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}

	logger.Info("event published", logger.Fields{
		"topic": topic,
		"key":   key,
	})
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

func buildMessage(topic string, key string, event any) (kafka.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode event: %w", err)
	}

	return kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: data,
		Headers: []kafka.Header{
			{Key: "content-type", Value: []byte("application/json")},
		},
	}, nil
}

var _ domain.EventPublisher = (*Publisher)(nil)
