// Утилита переигрывания DLQ: читает мёртвые сообщения и возвращает их
// в рабочий топик. По умолчанию работает в режиме dry-run.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
)

const (
	defaultScanLimit   = 100
	defaultIdleTimeout = 2 * time.Second
)

type options struct {
	brokers     []string
	sourceTopic string
	targetTopic string
	limit       int
	execute     bool
	fromNewest  bool
	idleTimeout time.Duration
}

// candidate — сообщение, готовое к отправке в целевой топик.
type candidate struct {
	topic string
	key   string
	value []byte
}

// consumerRecord — формат DLQ-записи consumer-группы.
type consumerRecord struct {
	OriginalTopic string `json:"original_topic"`
	OriginalKey   string `json:"original_key"`
	OriginalValue string `json:"original_value"`
}

// brokerEnvelope — конверт, в котором outbox-воркер публикует события.
type brokerEnvelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
}

// quarantineRecord — вложенный payload DLQ-записи outbox-воркера.
type quarantineRecord struct {
	OutboxID      string          `json:"outbox_id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
}

// replayRecord — конверт повторной публикации, совместимый с brokerEnvelope.
type replayRecord struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

// Узкие интерфейсы поверх sarama, чтобы тесты могли подставлять заглушки.
type brokerOffsets interface {
	GetOffset(topic string, partition int32, time int64) (int64, error)
	Partitions(topic string) ([]int32, error)
	Close() error
}

type partitionStream interface {
	Messages() <-chan *sarama.ConsumerMessage
	Errors() <-chan *sarama.ConsumerError
	Close() error
}

type streamOpener interface {
	ConsumePartition(topic string, partition int32, offset int64) (partitionStream, error)
	Close() error
}

type replaySink interface {
	SendMessage(msg *sarama.ProducerMessage) (partition int32, offset int64, err error)
	Close() error
}

type saramaStreamOpener struct {
	consumer sarama.Consumer
}

func (o saramaStreamOpener) ConsumePartition(topic string, partition int32, offset int64) (partitionStream, error) {
	stream, err := o.consumer.ConsumePartition(topic, partition, offset)
	if err != nil {
		return nil, err
	}
	return stream, nil
}

func (o saramaStreamOpener) Close() error {
	if o.consumer == nil {
		return nil
	}
	return o.consumer.Close()
}

// dialKafka подменяется в тестах.
var dialKafka = func(opts options) (brokerOffsets, streamOpener, replaySink, error) {
	consumerConfig := sarama.NewConfig()
	consumerConfig.Consumer.Return.Errors = true

	client, err := sarama.NewClient(opts.brokers, consumerConfig)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create kafka client: %w", err)
	}

	rawConsumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		_ = client.Close()
		return nil, nil, nil, fmt.Errorf("create kafka consumer: %w", err)
	}
	opener := saramaStreamOpener{consumer: rawConsumer}

	if !opts.execute {
		return client, opener, nil, nil
	}

	producerConfig := sarama.NewConfig()
	producerConfig.Producer.RequiredAcks = sarama.WaitForAll
	producerConfig.Producer.Retry.Max = 5
	producerConfig.Producer.Return.Successes = true
	producerConfig.Producer.Compression = sarama.CompressionSnappy
	producerConfig.Producer.Idempotent = true
	producerConfig.Net.MaxOpenRequests = 1

	producer, err := sarama.NewSyncProducer(opts.brokers, producerConfig)
	if err != nil {
		_ = opener.Close()
		_ = client.Close()
		return nil, nil, nil, fmt.Errorf("create kafka producer: %w", err)
	}

	return client, opener, producer, nil
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)

	opts, err := parseOptions()
	if err != nil {
		fail("%v", err)
	}

	if err := run(context.Background(), opts); err != nil {
		fail("dlq replay failed: %v", err)
	}
}

func parseOptions() (options, error) {
	var (
		brokersRaw string
		opts       options
	)

	flag.StringVar(&brokersRaw, "brokers", "", "Kafka brokers as comma-separated list (fallback: KAFKA_BROKERS)")
	flag.StringVar(&opts.sourceTopic, "source-topic", kafka.TopicDeadLetterQueue, "DLQ source topic")
	flag.StringVar(&opts.targetTopic, "target-topic", kafka.TopicOrderEvents, "target topic for replay")
	flag.IntVar(&opts.limit, "limit", defaultScanLimit, "max number of messages to scan/replay")
	flag.BoolVar(&opts.execute, "execute", false, "execute replay; default is dry-run")
	flag.BoolVar(&opts.fromNewest, "from-newest", false, "scan latest messages first (bounded by limit)")
	flag.DurationVar(&opts.idleTimeout, "idle-timeout", defaultIdleTimeout, "idle timeout per partition")
	flag.Parse()

	if strings.TrimSpace(brokersRaw) == "" {
		brokersRaw = os.Getenv("KAFKA_BROKERS")
	}
	opts.brokers = splitBrokers(brokersRaw)

	switch {
	case len(opts.brokers) == 0:
		return options{}, fmt.Errorf("kafka brokers are required (-brokers or KAFKA_BROKERS)")
	case strings.TrimSpace(opts.sourceTopic) == "":
		return options{}, fmt.Errorf("source-topic is required")
	case strings.TrimSpace(opts.targetTopic) == "":
		return options{}, fmt.Errorf("target-topic is required")
	case opts.limit <= 0:
		return options{}, fmt.Errorf("limit must be > 0")
	case opts.idleTimeout <= 0:
		return options{}, fmt.Errorf("idle-timeout must be > 0")
	}

	return opts, nil
}

func splitBrokers(raw string) []string {
	var brokers []string
	for _, chunk := range strings.Split(raw, ",") {
		if broker := strings.TrimSpace(chunk); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	return brokers
}

func run(ctx context.Context, opts options) error {
	log.WithFields(log.Fields{
		"source_topic": opts.sourceTopic,
		"target_topic": opts.targetTopic,
		"limit":        opts.limit,
		"execute":      opts.execute,
		"from_newest":  opts.fromNewest,
	}).Info("запуск переигрывания dlq")

	offsets, opener, sink, err := dialKafka(opts)
	if err != nil {
		return err
	}
	defer func() {
		if sink != nil {
			_ = sink.Close()
		}
		if opener != nil {
			_ = opener.Close()
		}
		if offsets != nil {
			_ = offsets.Close()
		}
	}()

	return replayAll(ctx, opts, offsets, opener, sink)
}

// tally — счётчики прохода: сколько сообщений просмотрено, переиграно и
// пропущено как нераспознанные.
type tally struct {
	scanned  int
	replayed int
	skipped  int
}

func (t *tally) add(other tally) {
	t.scanned += other.scanned
	t.replayed += other.replayed
	t.skipped += other.skipped
}

func replayAll(ctx context.Context, opts options, offsets brokerOffsets, opener streamOpener, sink replaySink) error {
	if offsets == nil || opener == nil {
		return fmt.Errorf("kafka client and consumer are required")
	}
	if opts.execute && sink == nil {
		return fmt.Errorf("producer is required in execute mode")
	}

	partitions, err := offsets.Partitions(opts.sourceTopic)
	if err != nil {
		return fmt.Errorf("get partitions for topic %s: %w", opts.sourceTopic, err)
	}
	if len(partitions) == 0 {
		log.WithField("topic", opts.sourceTopic).Warn("у исходного топика нет партиций")
		return nil
	}
	sort.Slice(partitions, func(i, j int) bool { return partitions[i] < partitions[j] })

	var total tally
	for _, partition := range partitions {
		remaining := opts.limit - total.scanned
		if remaining <= 0 {
			break
		}

		part, err := drainPartition(ctx, opener, offsets, sink, opts, partition, remaining)
		if err != nil {
			return err
		}
		total.add(part)
	}

	mode := "dry-run"
	if opts.execute {
		mode = "execute"
	}
	log.WithFields(log.Fields{
		"mode":      mode,
		"processed": total.scanned,
		"replayed":  total.replayed,
		"skipped":   total.skipped,
	}).Info("переигрывание dlq завершено")

	return nil
}

func drainPartition(
	ctx context.Context,
	opener streamOpener,
	offsets brokerOffsets,
	sink replaySink,
	opts options,
	partition int32,
	limit int,
) (tally, error) {
	var stats tally
	if limit <= 0 {
		return stats, nil
	}

	start, end, err := partitionBounds(offsets, opts, partition, limit)
	if err != nil {
		return stats, err
	}
	if start >= end {
		return stats, nil
	}

	stream, err := opener.ConsumePartition(opts.sourceTopic, partition, start)
	if err != nil {
		return stats, fmt.Errorf("consume partition %d: %w", partition, err)
	}
	defer func() { _ = stream.Close() }()

	idle := time.NewTimer(opts.idleTimeout)
	defer idle.Stop()

	for stats.scanned < limit {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		case err := <-stream.Errors():
			if err != nil {
				return stats, fmt.Errorf("partition %d consumer error: %w", partition, err)
			}
		case msg, ok := <-stream.Messages():
			if !ok || msg == nil {
				return stats, nil
			}
			resetTimer(idle, opts.idleTimeout)

			if msg.Offset >= end {
				return stats, nil
			}
			stats.scanned++

			replay, ok, err := decodeCandidate(msg, opts.targetTopic)
			if err != nil {
				stats.skipped++
				log.WithError(err).WithFields(log.Fields{
					"partition": msg.Partition,
					"offset":    msg.Offset,
				}).Warn("dlq-сообщение нераспознано, пропуск")
				continue
			}
			if !ok {
				stats.skipped++
				continue
			}

			if opts.execute {
				if err := send(sink, replay); err != nil {
					return stats, fmt.Errorf("publish replay message: %w", err)
				}
			} else {
				log.WithFields(log.Fields{
					"partition":    msg.Partition,
					"offset":       msg.Offset,
					"target_topic": replay.topic,
					"key":          replay.key,
				}).Info("кандидат на переигрывание")
			}
			stats.replayed++

			if msg.Offset+1 >= end {
				return stats, nil
			}
		case <-idle.C:
			return stats, nil
		}
	}

	return stats, nil
}

func partitionBounds(offsets brokerOffsets, opts options, partition int32, limit int) (int64, int64, error) {
	oldest, err := offsets.GetOffset(opts.sourceTopic, partition, sarama.OffsetOldest)
	if err != nil {
		return 0, 0, fmt.Errorf("get oldest offset for partition %d: %w", partition, err)
	}
	newest, err := offsets.GetOffset(opts.sourceTopic, partition, sarama.OffsetNewest)
	if err != nil {
		return 0, 0, fmt.Errorf("get newest offset for partition %d: %w", partition, err)
	}

	start := oldest
	if opts.fromNewest {
		start = newest - int64(limit)
		if start < oldest {
			start = oldest
		}
	}
	return start, newest, nil
}

func resetTimer(timer *time.Timer, d time.Duration) {
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	timer.Reset(d)
}

func send(sink replaySink, replay candidate) error {
	if sink == nil {
		return fmt.Errorf("producer is nil")
	}

	_, _, err := sink.SendMessage(&sarama.ProducerMessage{
		Topic:     replay.topic,
		Key:       sarama.StringEncoder(replay.key),
		Value:     sarama.ByteEncoder(replay.value),
		Timestamp: time.Now().UTC(),
	})
	return err
}

// decodeCandidate распознаёт обе разновидности DLQ-записей: запись
// consumer-группы с сырым исходным сообщением и конверт outbox-воркера
// с вложенным payload. Нераспознанное сообщение пропускается без ошибки.
func decodeCandidate(msg *sarama.ConsumerMessage, defaultTopic string) (candidate, bool, error) {
	var record consumerRecord
	if err := json.Unmarshal(msg.Value, &record); err == nil && record.OriginalValue != "" {
		return fromConsumerRecord(record, defaultTopic), true, nil
	}

	var envelope brokerEnvelope
	if err := json.Unmarshal(msg.Value, &envelope); err != nil {
		return candidate{}, false, nil
	}
	if len(envelope.Payload) == 0 {
		return candidate{}, false, nil
	}

	return fromQuarantine(envelope, defaultTopic)
}

func fromConsumerRecord(record consumerRecord, defaultTopic string) candidate {
	topic := strings.TrimSpace(record.OriginalTopic)
	if topic == "" {
		topic = defaultTopic
	}
	return candidate{
		topic: topic,
		key:   record.OriginalKey,
		value: []byte(record.OriginalValue),
	}
}

func fromQuarantine(envelope brokerEnvelope, defaultTopic string) (candidate, bool, error) {
	var record quarantineRecord
	if err := json.Unmarshal(envelope.Payload, &record); err != nil {
		return candidate{}, false, fmt.Errorf("decode outbox dlq payload: %w", err)
	}
	if len(record.Payload) == 0 {
		return candidate{}, false, fmt.Errorf("outbox dlq payload does not contain original event payload")
	}

	replay := replayRecord{
		ID:            firstNonEmpty(record.OutboxID, envelope.ID),
		AggregateType: firstNonEmpty(record.AggregateType, envelope.AggregateType),
		AggregateID:   firstNonEmpty(record.AggregateID, envelope.AggregateID),
		EventType:     firstNonEmpty(record.EventType, envelope.EventType),
		Payload:       record.Payload,
		PublishedAt:   time.Now().UTC(),
	}
	encoded, err := json.Marshal(replay)
	if err != nil {
		return candidate{}, false, fmt.Errorf("encode replay envelope: %w", err)
	}

	key := replay.AggregateID
	if key == "" {
		key = replay.ID
	}

	return candidate{topic: defaultTopic, key: key, value: encoded}, true, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
