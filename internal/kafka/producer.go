package kafka

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/mafia-engine/internal/config"
	"github.com/mafia-engine/internal/domain"
)

// Producer publishes session lifecycle events to Kafka for downstream
// consumers
type Producer struct {
	producer sarama.AsyncProducer
	topic    string
	logger   *slog.Logger
	wg       sync.WaitGroup
	done     chan struct{}
}

// NewProducer creates an async Kafka producer for lifecycle events
func NewProducer(cfg *config.KafkaConfig, logger *slog.Logger) (*Producer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Producer.RequiredAcks = sarama.WaitForLocal
	saramaConfig.Producer.Compression = sarama.CompressionSnappy
	saramaConfig.Producer.Flush.Frequency = 100 * time.Millisecond
	saramaConfig.Producer.Flush.Messages = 100
	saramaConfig.Producer.Return.Successes = false
	saramaConfig.Producer.Return.Errors = true

	producer, err := sarama.NewAsyncProducer(cfg.Brokers, saramaConfig)
	if err != nil {
		return nil, err
	}

	p := &Producer{
		producer: producer,
		topic:    cfg.EventsTopic,
		logger:   logger,
		done:     make(chan struct{}),
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for err := range producer.Errors() {
			p.logger.Error("event publish failed", "error", err)
		}
	}()

	return p, nil
}

// PublishEvent sends a lifecycle event keyed by session id. Delivery is
// best effort; a failure is logged and never propagated to the engine.
func (p *Producer) PublishEvent(event domain.SessionEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("failed to marshal event", "error", err)
		return
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(event.SessionID),
		Value: sarama.ByteEncoder(data),
	}

	select {
	case p.producer.Input() <- msg:
	case <-p.done:
	}
}

// Close flushes and shuts down the producer
func (p *Producer) Close() error {
	close(p.done)
	p.producer.AsyncClose()
	p.wg.Wait()
	return nil
}
