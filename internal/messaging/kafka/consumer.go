package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
)

// MessageHandler обрабатывает одно сообщение; ошибка запускает retry/DLQ цикл.
type MessageHandler func(ctx context.Context, message *sarama.ConsumerMessage) error

// ConsumerGroup группа потребителей событий витрины. Сообщение, которое не
// удалось обработать за maxRetries попыток, уходит в DLQ-топик и помечается
// обработанным, чтобы не блокировать partition.
type ConsumerGroup struct {
	group      sarama.ConsumerGroup
	topics     []string
	handler    MessageHandler
	dlq        *Producer
	maxRetries int
	logger     *log.Entry
	wg         sync.WaitGroup
}

// NewConsumerGroup собирает группу без DLQ: сообщение после неудачных попыток
// остаётся неподтверждённым.
func NewConsumerGroup(brokers []string, groupID string, topics []string, handler MessageHandler) (*ConsumerGroup, error) {
	return NewConsumerGroupWithDLQ(brokers, groupID, topics, handler, nil, 3)
}

// NewConsumerGroupWithDLQ собирает группу с отгрузкой неразобранных сообщений
// в Dead Letter Queue.
func NewConsumerGroupWithDLQ(brokers []string, groupID string, topics []string, handler MessageHandler, dlq *Producer, maxRetries int) (*ConsumerGroup, error) {
	config := sarama.NewConfig()
	config.Consumer.Group.Rebalance.Strategy = sarama.NewBalanceStrategyRoundRobin()
	config.Consumer.Offsets.Initial = sarama.OffsetNewest
	config.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(brokers, groupID, config)
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer group: %w", err)
	}

	return &ConsumerGroup{
		group:      group,
		topics:     topics,
		handler:    handler,
		dlq:        dlq,
		maxRetries: maxRetries,
		logger:     log.WithField("component", "kafka-consumer"),
	}, nil
}

// Start запускает цикл потребления в фоне.
func (c *ConsumerGroup) Start(ctx context.Context) error {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			// Consume возвращается при каждом rebalance, поэтому цикл.
			if err := c.group.Consume(ctx, c.topics, c); err != nil {
				c.logger.WithError(err).Error("цикл потребления завершился с ошибкой")
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for err := range c.group.Errors() {
			c.logger.WithError(err).Error("ошибка группы потребителей")
		}
	}()

	c.logger.WithField("topics", c.topics).Info("группа потребителей запущена")
	return nil
}

// Stop закрывает группу и дожидается фоновых горутин.
func (c *ConsumerGroup) Stop() error {
	if err := c.group.Close(); err != nil {
		return fmt.Errorf("close kafka consumer group: %w", err)
	}
	c.wg.Wait()
	c.logger.Info("группа потребителей остановлена")
	return nil
}

func (c *ConsumerGroup) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (c *ConsumerGroup) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim читает partition до закрытия сессии.
func (c *ConsumerGroup) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message := <-claim.Messages():
			if message == nil {
				return nil
			}
			if err := c.process(session.Context(), message); err != nil {
				c.logger.WithError(err).WithFields(log.Fields{
					"topic":     message.Topic,
					"partition": message.Partition,
					"offset":    message.Offset,
				}).Error("сообщение не обработано")
				// Без отметки: сообщение либо в DLQ, либо будет перечитано.
				continue
			}
			session.MarkMessage(message, "")

		case <-session.Context().Done():
			return nil
		}
	}
}

func (c *ConsumerGroup) process(ctx context.Context, message *sarama.ConsumerMessage) error {
	err := c.handler(ctx, message)
	if err == nil {
		return nil
	}

	attempt := retryCountOf(message)
	if attempt < c.maxRetries {
		c.logger.WithFields(log.Fields{
			"topic":   message.Topic,
			"attempt": attempt,
			"limit":   c.maxRetries,
		}).Warn("обработка не удалась, сообщение будет перечитано")
		return err
	}

	if c.dlq == nil {
		return err
	}

	if dlqErr := c.divertToDLQ(message, err); dlqErr != nil {
		return fmt.Errorf("divert to dlq: %w", dlqErr)
	}
	c.logger.WithFields(log.Fields{
		"topic":   message.Topic,
		"attempt": attempt,
	}).Info("сообщение переложено в dlq")
	return nil
}

// retryCountOf читает счётчик попыток из заголовка сообщения.
func retryCountOf(message *sarama.ConsumerMessage) int {
	for _, header := range message.Headers {
		if string(header.Key) != HeaderRetryCount {
			continue
		}
		if count, err := strconv.Atoi(string(header.Value)); err == nil {
			return count
		}
	}
	return 0
}

// deadLetterRecord формат записи в DLQ-топике; его же разбирает
// утилита переигрывания.
type deadLetterRecord struct {
	OriginalTopic     string `json:"original_topic"`
	OriginalPartition int32  `json:"original_partition"`
	OriginalOffset    int64  `json:"original_offset"`
	OriginalKey       string `json:"original_key"`
	OriginalValue     string `json:"original_value"`
	ErrorMessage      string `json:"error_message"`
	FailedAt          string `json:"failed_at"`
	RetryCount        int    `json:"retry_count"`
}

func (c *ConsumerGroup) divertToDLQ(message *sarama.ConsumerMessage, cause error) error {
	record := deadLetterRecord{
		OriginalTopic:     message.Topic,
		OriginalPartition: message.Partition,
		OriginalOffset:    message.Offset,
		OriginalKey:       string(message.Key),
		OriginalValue:     string(message.Value),
		ErrorMessage:      cause.Error(),
		FailedAt:          time.Now().UTC().Format(time.RFC3339),
		RetryCount:        retryCountOf(message),
	}
	return c.dlq.PublishEvent(TopicDeadLetterQueue, string(message.Key), record)
}

// ParseStockEvent разбирает событие изменения остатка.
func ParseStockEvent(message *sarama.ConsumerMessage) (*StockEvent, error) {
	var event StockEvent
	if err := json.Unmarshal(message.Value, &event); err != nil {
		return nil, fmt.Errorf("unmarshal stock event: %w", err)
	}
	return &event, nil
}

// ParseOrderEvent разбирает событие заказа.
func ParseOrderEvent(message *sarama.ConsumerMessage) (*OrderEvent, error) {
	var event OrderEvent
	if err := json.Unmarshal(message.Value, &event); err != nil {
		return nil, fmt.Errorf("unmarshal order event: %w", err)
	}
	return &event, nil
}
