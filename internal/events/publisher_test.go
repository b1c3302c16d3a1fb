package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brokercore/internal/domain/models"
)

func newTransaction() models.Transaction {
	realized := decimal.RequireFromString("12.5")
	avgCost := decimal.RequireFromString("150")

	return models.Transaction{
		ID:            uuid.New(),
		OrderID:       uuid.New(),
		UserID:        uuid.New(),
		Symbol:        "AAPL",
		Side:          models.SideSell,
		Quantity:      decimal.RequireFromString("2.5"),
		Price:         decimal.RequireFromString("155"),
		TotalAmount:   decimal.RequireFromString("387.5"),
		RealizedPL:    &realized,
		AvgCostAtSale: &avgCost,
		CreatedAt:     time.Now().UTC(),
	}
}

func TestKafkaPublisher_PublishExecution(t *testing.T) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true

	producer := mocks.NewSyncProducer(t, config)
	transaction := newTransaction()

	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(payload []byte) error {
		var event struct {
			TransactionID string  `json:"transaction_id"`
			Symbol        string  `json:"symbol"`
			Side          string  `json:"side"`
			Quantity      string  `json:"quantity"`
			RealizedPL    *string `json:"realized_pl"`
		}
		if err := json.Unmarshal(payload, &event); err != nil {
			return err
		}

		assert.Equal(t, transaction.ID.String(), event.TransactionID)
		assert.Equal(t, "AAPL", event.Symbol)
		assert.Equal(t, "sell", event.Side)
		assert.Equal(t, "2.5", event.Quantity)
		require.NotNil(t, event.RealizedPL)
		assert.Equal(t, "12.5", *event.RealizedPL)
		return nil
	})

	publisher := NewKafkaPublisherFromProducer(producer, "order.executions")

	err := publisher.PublishExecution(context.Background(), transaction)
	require.NoError(t, err)
	require.NoError(t, publisher.Close())
}

func TestKafkaPublisher_SendFailureSurfaces(t *testing.T) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true

	producer := mocks.NewSyncProducer(t, config)
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	publisher := NewKafkaPublisherFromProducer(producer, "order.executions")

	err := publisher.PublishExecution(context.Background(), newTransaction())
	assert.Error(t, err)
	require.NoError(t, publisher.Close())
}
