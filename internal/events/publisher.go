// Package events publishes execution events to kafka. Downstream consumers
// (statements, notifications, analytics) read them; the execution path only
// writes.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"brokercore/internal/domain/models"
)

// executionEvent is the wire form of one executed order. Decimal fields are
// strings so consumers keep full precision.
type executionEvent struct {
	TransactionID string    `json:"transaction_id"`
	OrderID       string    `json:"order_id"`
	UserID        string    `json:"user_id"`
	Symbol        string    `json:"symbol"`
	Side          string    `json:"side"`
	Quantity      string    `json:"quantity"`
	Price         string    `json:"price"`
	TotalAmount   string    `json:"total_amount"`
	RealizedPL    *string   `json:"realized_pl,omitempty"`
	ExecutedAt    time.Time `json:"executed_at"`
}

// KafkaPublisher writes one message per executed order, keyed by user id so
// a user's executions stay ordered within a partition.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
}

func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Retry.Max = 3
	config.Producer.Return.Successes = true

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}

	return &KafkaPublisher{
		producer: producer,
		topic:    topic,
	}, nil
}

// NewKafkaPublisherFromProducer wires an existing producer. Used in tests.
func NewKafkaPublisherFromProducer(producer sarama.SyncProducer, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		producer: producer,
		topic:    topic,
	}
}

func (p *KafkaPublisher) PublishExecution(_ context.Context, transaction models.Transaction) error {
	event := executionEvent{
		TransactionID: transaction.ID.String(),
		OrderID:       transaction.OrderID.String(),
		UserID:        transaction.UserID.String(),
		Symbol:        transaction.Symbol,
		Side:          transaction.Side.String(),
		Quantity:      transaction.Quantity.String(),
		Price:         transaction.Price.String(),
		TotalAmount:   transaction.TotalAmount.String(),
		ExecutedAt:    transaction.CreatedAt,
	}
	if transaction.RealizedPL != nil {
		realized := transaction.RealizedPL.String()
		event.RealizedPL = &realized
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal execution event: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(transaction.UserID.String()),
		Value: sarama.ByteEncoder(payload),
	}

	if _, _, err := p.producer.SendMessage(message); err != nil {
		return fmt.Errorf("send execution event: %w", err)
	}

	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}
