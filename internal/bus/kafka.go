package bus

import (
	"encoding/json"
	"fmt"
	"log"

	"mol-collab/internal/models"

	"github.com/IBM/sarama"
)

// KafkaPublisher emits room lifecycle events to a Kafka topic, keyed by
// room id so one room's history lands in one partition, in order. It
// implements collab.EventPublisher.
//
// Publishing is fire-and-forget from the caller's point of view: the
// actual send happens on a goroutine and failures are logged, because a
// flaky broker must never stall a room actor.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
}

func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true // required by SyncProducer
	config.Producer.RequiredAcks = sarama.WaitForLocal

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to kafka %v: %w", brokers, err)
	}
	return &KafkaPublisher{producer: producer, topic: topic}, nil
}

// Publish enqueues one lifecycle event. Never blocks the caller.
func (p *KafkaPublisher) Publish(evt models.LifecycleEvent) {
	go func() {
		data, err := json.Marshal(evt)
		if err != nil {
			log.Printf("⚠️  Failed to encode lifecycle event %s: %v", evt.Event, err)
			return
		}
		msg := &sarama.ProducerMessage{
			Topic: p.topic,
			Key:   sarama.StringEncoder(evt.RoomID),
			Value: sarama.ByteEncoder(data),
		}
		if _, _, err := p.producer.SendMessage(msg); err != nil {
			log.Printf("⚠️  Failed to publish %s for room %s: %v", evt.Event, evt.RoomID, err)
		}
	}()
}

func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}
