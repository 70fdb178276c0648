// Package kafkahook publishes committed transaction log entries to Kafka.
//
// Every entry becomes one message keyed by account id, so a consumer reading
// one partition sees an account's entries in sequence order.
package kafkahook

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/IBM/sarama"

	"github.com/xraph/credits/plugin"
	"github.com/xraph/credits/txlog"
)

// DefaultTopic is used when New is given an empty topic.
const DefaultTopic = "credits.transactions"

// Header keys set on every message.
const (
	HeaderType     = "credits-type"
	HeaderGroup    = "credits-group"
	HeaderSequence = "credits-sequence"
)

var (
	_ plugin.Plugin            = (*Publisher)(nil)
	_ plugin.OnEntriesAppended = (*Publisher)(nil)
	_ plugin.OnShutdown        = (*Publisher)(nil)
)

// Publisher is a credits plugin that forwards log entries to a topic.
type Publisher struct {
	producer sarama.SyncProducer
	topic    string
	logger   *slog.Logger
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithLogger sets the logger used for publish failures.
func WithLogger(l *slog.Logger) Option {
	return func(p *Publisher) { p.logger = l }
}

// New creates a Publisher writing to topic through producer. The
// Publisher owns producer and closes it on shutdown.
func New(producer sarama.SyncProducer, topic string, opts ...Option) *Publisher {
	if topic == "" {
		topic = DefaultTopic
	}
	p := &Publisher{
		producer: producer,
		topic:    topic,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewProducer dials brokers with a producer config that waits for all
// in-sync replicas.
func NewProducer(brokers []string) (sarama.SyncProducer, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 3
	cfg.Producer.Return.Successes = true
	cfg.Producer.Idempotent = true
	cfg.Net.MaxOpenRequests = 1

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("credits/kafka: producer: %w", err)
	}
	return producer, nil
}

// Name implements plugin.Plugin.
func (p *Publisher) Name() string { return "kafka-publisher" }

// OnEntriesAppended implements plugin.OnEntriesAppended. The entries of one
// unit are sent as one batch.
func (p *Publisher) OnEntriesAppended(_ context.Context, entries []*txlog.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	msgs := make([]*sarama.ProducerMessage, 0, len(entries))
	for _, e := range entries {
		m, err := p.message(e)
		if err != nil {
			return err
		}
		msgs = append(msgs, m)
	}

	if err := p.producer.SendMessages(msgs); err != nil {
		p.logger.Warn("kafka publish failed",
			"topic", p.topic,
			"group_id", entries[0].GroupID.String(),
			"entries", len(entries),
			"error", err,
		)
		return fmt.Errorf("credits/kafka: publish: %w", err)
	}
	return nil
}

// OnShutdown implements plugin.OnShutdown.
func (p *Publisher) OnShutdown(context.Context) error {
	return p.producer.Close()
}

func (p *Publisher) message(e *txlog.Entry) (*sarama.ProducerMessage, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("credits/kafka: encode %s: %w", e.ID, err)
	}
	return &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(e.AccountID),
		Value: sarama.ByteEncoder(body),
		Headers: []sarama.RecordHeader{
			{Key: []byte(HeaderType), Value: []byte(e.Type)},
			{Key: []byte(HeaderGroup), Value: []byte(e.GroupID.String())},
			{Key: []byte(HeaderSequence), Value: []byte(strconv.FormatInt(e.Sequence, 10))},
		},
	}, nil
}
