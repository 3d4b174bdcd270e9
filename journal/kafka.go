package journal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// KafkaWriter is the part of *kafka.Writer the journal needs.
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewKafkaWriter returns an async writer that balances messages by key.
// WriteMessages only enqueues, so a slow broker never holds up a trade.
// Delivery failures are reported to logger.
func NewKafkaWriter(brokers []string, topic string, logger *zap.Logger) *kafka.Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
		Async:        true,
		Completion:   completionLogger(logger, topic),
	}
}

func completionLogger(logger *zap.Logger, topic string) func([]kafka.Message, error) {
	return func(msgs []kafka.Message, err error) {
		if err == nil {
			return
		}
		logger.Warn("journal delivery failed",
			zap.String("topic", topic),
			zap.Int("messages", len(msgs)),
			zap.Error(err),
		)
	}
}

// Kafka publishes every record as JSON, keyed by username so one
// user's events stay ordered within a partition.
type Kafka struct {
	w       KafkaWriter
	timeout time.Duration
}

// kafkaEvent wraps a record with its kind.
type kafkaEvent struct {
	Kind   string `json:"kind"`
	Record any    `json:"record"`
}

func NewKafka(w KafkaWriter) *Kafka {
	return &Kafka{w: w, timeout: 5 * time.Second}
}

func (j *Kafka) RecordTrade(t TradeRecord) error {
	return j.publish(t.Username, kafkaEvent{Kind: "trade", Record: t})
}

func (j *Kafka) RecordEquity(e EquitySnapshot) error {
	return j.publish(e.Username, kafkaEvent{Kind: "equity", Record: e})
}

func (j *Kafka) Close() error {
	return j.w.Close()
}

func (j *Kafka) publish(key string, ev kafkaEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	return j.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: body,
		Time:  time.Now().UTC(),
	})
}
