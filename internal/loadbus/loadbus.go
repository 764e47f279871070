// Package loadbus carries shard connection-count events over Kafka, §4.3c/§12.1: async,
// at-least-once, advisory, deliberately decoupled from the synchronous shardrpc fan-out
// channel so a slow or backed-up load topic never stalls a dispatch. Grounded on the
// teacher's cmd/workers/kafka/user/main.go (kafkalib.NewConsumer + RegisterHandler); the
// producer side mirrors kafka-lib's config/constructor shape since the teacher only
// ships a consumer worker.
package loadbus

import (
	"context"
	"encoding/json"
	"fmt"

	kafkalib "github.com/s21platform/kafka-lib"
	"github.com/s21platform/metrics-lib/pkg"
)

const loadConsumerGroupID = "sinkr-coordinator-load"

// ShardLoad is the event body a shard publishes periodically (cmd/shard's
// loadPublishInterval), matching internal/loadstore.ShardLoad's fields.
type ShardLoad struct {
	ShardID         string `json:"shardId"`
	AdvertiseAddr   string `json:"advertiseAddr"`
	ConnectionCount int    `json:"connectionCount"`
}

// Producer is run by each shard process.
type Producer struct {
	producer *kafkalib.KafkaProducer
	topic    string
}

func NewProducer(host, port, topic string) (*Producer, error) {
	cfg := kafkalib.DefaultProducerConfig(host, port, topic)
	p := kafkalib.NewProducer(cfg)
	return &Producer{producer: p, topic: topic}, nil
}

func (p *Producer) Publish(ctx context.Context, load ShardLoad) error {
	data, err := json.Marshal(load)
	if err != nil {
		return fmt.Errorf("loadbus: marshal: %w", err)
	}
	if err := p.producer.ProduceMessage(ctx, []byte(load.ShardID), data); err != nil {
		return fmt.Errorf("loadbus: produce: %w", err)
	}
	return nil
}

func (p *Producer) Close() error {
	return p.producer.Close()
}

// Consumer is run once by the coordinator process. Sink is called for every decoded
// event; the coordinator's wiring passes internal/loadstore.Store.Report.
type Consumer struct {
	consumer *kafkalib.KafkaConsumer
}

func NewConsumer(host, port, topic string, metrics *pkg.Metrics) (*Consumer, error) {
	cfg := kafkalib.DefaultConsumerConfig(host, port, topic, loadConsumerGroupID)
	c, err := kafkalib.NewConsumer(cfg, metrics)
	if err != nil {
		return nil, fmt.Errorf("loadbus: new consumer: %w", err)
	}
	return &Consumer{consumer: c}, nil
}

// Run registers the decode-and-forward handler and blocks per kafka-lib's
// RegisterHandler convention until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context, sink func(context.Context, ShardLoad) error) {
	c.consumer.RegisterHandler(ctx, func(ctx context.Context, msg []byte) error {
		var load ShardLoad
		if err := json.Unmarshal(msg, &load); err != nil {
			return fmt.Errorf("loadbus: decode: %w", err)
		}
		return sink(ctx, load)
	})
}
