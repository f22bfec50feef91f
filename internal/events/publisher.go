package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"wallet-ledger-go/internal/metrics"
	"wallet-ledger-go/internal/models"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

// Sink receives committed ledger events
type Sink interface {
	Name() string
	Publish(ctx context.Context, event models.LedgerEvent) error
	Close() error
}

type KafkaSink struct {
	producer sarama.SyncProducer
	topic    string
}

// NewProducerConfig returns the producer settings used for the event stream
func NewProducerConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V3_7_0_0
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	cfg.Producer.Idempotent = true
	cfg.Net.MaxOpenRequests = 1
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Retry.Backoff = 250 * time.Millisecond
	return cfg
}

func NewKafkaSink(brokers []string, topic string) (*KafkaSink, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers required")
	}
	producer, err := sarama.NewSyncProducer(brokers, NewProducerConfig())
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return NewKafkaSinkWithProducer(producer, topic), nil
}

func NewKafkaSinkWithProducer(producer sarama.SyncProducer, topic string) *KafkaSink {
	return &KafkaSink{producer: producer, topic: topic}
}

func (k *KafkaSink) Name() string { return "kafka" }

// Publish sends the event keyed by account id so one account's events stay ordered
func (k *KafkaSink) Publish(ctx context.Context, event models.LedgerEvent) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	envelope, err := NewEnvelope(event, models.GetRequestMeta(ctx))
	if err != nil {
		return err
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal kafka payload: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: k.topic,
		Key:   sarama.StringEncoder(event.AccountId),
		Value: sarama.ByteEncoder(payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(event.Type)},
			{Key: []byte("event_id"), Value: []byte(envelope.EventId)},
		},
	}

	partition, offset, err := k.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("kafka publish failed: %w", err)
	}

	zap.L().Debug("Ledger event published",
		zap.String("topic", k.topic),
		zap.String("event_type", string(event.Type)),
		zap.String("event_id", envelope.EventId),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset))
	return nil
}

func (k *KafkaSink) Close() error {
	if k.producer == nil {
		return nil
	}
	return k.producer.Close()
}

// Dispatcher fans committed events out to every sink. Delivery is best
// effort: a failing sink is logged and never reported to the caller.
type Dispatcher struct {
	sinks   []Sink
	metrics *metrics.Metrics
	timeout time.Duration
}

func NewDispatcher(m *metrics.Metrics, sinks ...Sink) *Dispatcher {
	return &Dispatcher{sinks: sinks, metrics: m, timeout: 5 * time.Second}
}

func (d *Dispatcher) Publish(ctx context.Context, event models.LedgerEvent) {
	if d == nil {
		return
	}
	// The originating request may already be done; keep its values only.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	defer cancel()

	for _, sink := range d.sinks {
		err := sink.Publish(ctx, event)
		d.metrics.EventPublished(sink.Name(), err)
		if err != nil {
			zap.L().Error("Failed to publish ledger event",
				zap.String("sink", sink.Name()),
				zap.String("event_type", string(event.Type)),
				zap.String("account_id", event.AccountId),
				zap.String("reference", event.Reference),
				zap.Error(err))
		}
	}
}

func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	for _, sink := range d.sinks {
		if err := sink.Close(); err != nil {
			zap.L().Warn("Failed to close event sink", zap.String("sink", sink.Name()), zap.Error(err))
		}
	}
}
