package kafka

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func TestOutboxPublisher_EnvelopeShape(t *testing.T) {
	t.Parallel()

	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(value []byte) error {
		var envelope outboxEnvelope
		if err := json.Unmarshal(value, &envelope); err != nil {
			return err
		}
		if envelope.ID != "outbox-1" || envelope.AggregateID != "order-123" {
			return errors.New("identifiers lost in envelope")
		}
		if envelope.EventType != "OrderStatusChanged" {
			return errors.New("event type lost in envelope")
		}
		if string(envelope.Payload) != `{"status":"paid"}` {
			return errors.New("payload must pass through untouched")
		}
		if envelope.PublishedAt.IsZero() {
			return errors.New("published_at not set")
		}
		return nil
	})

	publisher := NewOutboxPublisher(&Producer{
		producer: mockProducer,
		logger:   log.WithField("test", "outbox-publisher"),
	}, TopicOrderEvents)

	err := publisher.Publish(domain.OutboxMessage{
		ID:            "outbox-1",
		AggregateType: "order",
		AggregateID:   "order-123",
		EventType:     "OrderStatusChanged",
		Payload:       []byte(`{"status":"paid"}`),
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestOutboxPublisher_ProducerError(t *testing.T) {
	t.Parallel()

	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	publisher := NewOutboxPublisher(&Producer{
		producer: mockProducer,
		logger:   log.WithField("test", "outbox-publisher"),
	}, TopicOrderEvents)

	err := publisher.Publish(domain.OutboxMessage{
		ID:          "outbox-2",
		AggregateID: "order-234",
		EventType:   "OrderStatusChanged",
		Payload:     []byte(`{}`),
	})
	if err == nil {
		t.Fatal("expected broker error to surface")
	}
	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestOutboxPublisher_NilProducer(t *testing.T) {
	t.Parallel()

	publisher := NewOutboxPublisher(nil, "")
	err := publisher.Publish(domain.OutboxMessage{ID: "outbox-3"})
	if !errors.Is(err, ErrPublisherNotReady) {
		t.Fatalf("expected ErrPublisherNotReady, got %v", err)
	}
}
