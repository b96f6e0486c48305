package bus

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mol-collab/internal/models"
)

// TestKafkaPublisher_PublishesKeyedByRoom tests that a lifecycle event
// lands on the configured topic keyed by room id.
func TestKafkaPublisher_PublishesKeyedByRoom(t *testing.T) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	producer := mocks.NewSyncProducer(t, config)

	sent := make(chan *sarama.ProducerMessage, 1)
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		sent <- msg
		return nil
	})

	pub := &KafkaPublisher{producer: producer, topic: "mol-collab.lifecycle"}
	pub.Publish(models.LifecycleEvent{
		Event:     models.LifecycleRoomCreated,
		RoomID:    "room-1",
		SubjectID: "1ABC",
		UserID:    "alice",
	})

	select {
	case msg := <-sent:
		assert.Equal(t, "mol-collab.lifecycle", msg.Topic)

		key, err := msg.Key.Encode()
		require.NoError(t, err)
		assert.Equal(t, "room-1", string(key))

		value, err := msg.Value.Encode()
		require.NoError(t, err)
		var evt models.LifecycleEvent
		require.NoError(t, json.Unmarshal(value, &evt))
		assert.Equal(t, models.LifecycleRoomCreated, evt.Event)
		assert.Equal(t, "1ABC", evt.SubjectID)
	case <-time.After(2 * time.Second):
		t.Fatal("event never reached the producer")
	}

	require.NoError(t, pub.Close())
}

// TestKafkaPublisher_SendFailureDoesNotPropagate tests the
// fire-and-forget contract: a broker error is logged, not returned, and
// the publisher stays usable.
func TestKafkaPublisher_SendFailureDoesNotPropagate(t *testing.T) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	producer := mocks.NewSyncProducer(t, config)

	failed := make(chan struct{})
	producer.ExpectSendMessageWithMessageCheckerFunctionAndFail(func(*sarama.ProducerMessage) error {
		close(failed)
		return nil
	}, sarama.ErrBrokerNotAvailable)

	pub := &KafkaPublisher{producer: producer, topic: "mol-collab.lifecycle"}
	pub.Publish(models.LifecycleEvent{Event: models.LifecycleRoomClosed, RoomID: "room-1"})

	select {
	case <-failed:
	case <-time.After(2 * time.Second):
		t.Fatal("event never reached the producer")
	}
	require.NoError(t, pub.Close())
}
