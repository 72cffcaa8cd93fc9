package destination

import (
	"context"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"github.com/djlord-it/easy-relay/internal/domain"
)

// Kafka publishes the payload to a topic keyed by the unique code.
type Kafka struct {
	producer sarama.SyncProducer
	topic    string
}

func NewKafka(producer sarama.SyncProducer, topic string) *Kafka {
	return &Kafka{producer: producer, topic: topic}
}

// NewSyncProducer returns a producer configured for acknowledged writes.
func NewSyncProducer(brokers []string) (sarama.SyncProducer, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 3
	cfg.Producer.Retry.Backoff = 250 * time.Millisecond

	return sarama.NewSyncProducer(brokers, cfg)
}

func (k *Kafka) Attempt(_ context.Context, _ string, payload domain.Payload) domain.DestinationResult {
	body, err := encode(payload)
	if err != nil {
		return domain.Failure(err.Error())
	}

	msg := &sarama.ProducerMessage{
		Topic: k.topic,
		Key:   sarama.StringEncoder(payload.PayloadUniqueCode),
		Value: sarama.ByteEncoder(body),
		Headers: []sarama.RecordHeader{
			{Key: []byte(HeaderRequestID), Value: []byte(payload.ID.String())},
		},
		Timestamp: time.Now(),
	}

	partition, offset, err := k.producer.SendMessage(msg)
	if err != nil {
		return failuref("kafka send: %v", err)
	}
	return domain.Success(fmt.Sprintf("published to %s [%d@%d]", k.topic, partition, offset))
}
