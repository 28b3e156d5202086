package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"
)

// EventsTopic carries the gateway's signal outcome stream.
const EventsTopic = "signals.events"

// Kafka publishes events to the outcome stream for downstream analytics.
type Kafka struct {
	client *kgo.Client
	logger *zap.Logger

	produceCount int64
	errorCount   int64
}

// NewKafka creates a Kafka notifier against the given brokers.
func NewKafka(brokers []string, logger *zap.Logger) (*Kafka, error) {
	opts := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.DisableIdempotentWrite(),
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}

	k := &Kafka{client: client, logger: logger}
	logger.Info("kafka notifier initialized", zap.Strings("brokers", brokers))

	go k.logStats()

	return k, nil
}

type kafkaEvent struct {
	Title        string            `json:"title"`
	Status       string            `json:"status"`
	OrderID      string            `json:"order_id"`
	Fields       map[string]string `json:"fields,omitempty"`
	TsUnixMillis int64             `json:"ts_unix_millis"`
}

// Notify produces the event keyed by order id. Failures are logged at warn
// and dropped.
func (k *Kafka) Notify(ctx context.Context, ev Event) {
	fields := make(map[string]string, len(ev.Fields))
	for _, f := range ev.Fields {
		fields[f.Name] = f.Value
	}

	data, err := json.Marshal(kafkaEvent{
		Title:        ev.Title,
		Status:       ev.Status,
		OrderID:      ev.OrderID,
		Fields:       fields,
		TsUnixMillis: time.Now().UnixMilli(),
	})
	if err != nil {
		atomic.AddInt64(&k.errorCount, 1)
		k.logger.Warn("kafka event marshal failed", zap.Error(err))
		return
	}

	record := &kgo.Record{
		Topic: EventsTopic,
		Key:   []byte(ev.OrderID),
		Value: data,
	}

	produceCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	result := k.client.ProduceSync(produceCtx, record)
	if result.FirstErr() != nil {
		atomic.AddInt64(&k.errorCount, 1)
		k.logger.Warn("kafka event produce failed", zap.Error(result.FirstErr()))
		return
	}

	atomic.AddInt64(&k.produceCount, 1)
}

// Close closes the underlying client.
func (k *Kafka) Close() {
	if k.client != nil {
		k.client.Close()
	}
}

func (k *Kafka) logStats() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		produced := atomic.LoadInt64(&k.produceCount)
		errors := atomic.LoadInt64(&k.errorCount)
		k.logger.Info("kafka notifier stats",
			zap.Int64("produced", produced),
			zap.Int64("errors", errors),
		)
	}
}
