package lib

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"

	"github.com/confluentinc/confluent-kafka-go/kafka"
)

type MessageHandler func(payload string)

var (
	producer   *kafka.Producer
	producerMu sync.Mutex
)

func KafkaEnabled() bool {
	return Settings().KafkaBroker != ""
}

func GetKafkaProducer() (*kafka.Producer, error) {
	producerMu.Lock()
	defer producerMu.Unlock()
	if producer != nil {
		return producer, nil
	}
	broker := Settings().KafkaBroker
	if broker == "" {
		return nil, errors.New("KAFKA_BROKER is not set")
	}
	log.Printf("Initializing kafka Producer for %s...\n", broker)
	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": broker,
		"client.id":         "hallpass",
		"acks":              "all",
	})
	if err != nil {
		log.Printf("Error on producer: %s\n", err.Error())
		return nil, err
	}
	go func() {
		for ev := range p.Events() {
			if m, ok := ev.(*kafka.Message); ok && m.TopicPartition.Error != nil {
				log.Printf("Delivery failed for %s: %s\n", *m.TopicPartition.Topic, m.TopicPartition.Error.Error())
			}
		}
	}()
	producer = p
	return p, nil
}

// KafkaProduceMessage publishes payload as JSON. Messages with the same key land on the same partition.
func KafkaProduceMessage(topic string, key string, payload map[string]any) error {
	p, err := GetKafkaProducer()
	if err != nil {
		return err
	}
	value, err := json.Marshal(payload)
	if err != nil {
		log.Printf("Error processing payload: %s\n", err.Error())
		return err
	}
	err = p.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Key:            []byte(key),
		Value:          value,
	}, nil)
	if err != nil {
		log.Printf("Error sending data to queue: %s\n", err.Error())
		return err
	}
	return nil
}

// KafkaConsume polls topics until ctx is done, handing each message value to handler.
func KafkaConsume(ctx context.Context, groupId string, topics []string, handler MessageHandler) error {
	c, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers": Settings().KafkaBroker,
		"group.id":          groupId,
		"auto.offset.reset": "earliest",
		"retry.backoff.ms":  100,
	})
	if err != nil {
		log.Printf("Error on consumer: %s\n", err.Error())
		return err
	}
	if err := c.SubscribeTopics(topics, nil); err != nil {
		log.Printf("Error subscribing to %v: %s\n", topics, err.Error())
		c.Close()
		return err
	}
	go func() {
		defer c.Close()
		log.Printf("[%s] waiting for messages on %v...\n", groupId, topics)
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			switch e := c.Poll(100).(type) {
			case *kafka.Message:
				handler(string(e.Value))
			case kafka.Error:
				log.Printf("[%s] consumer error: %v\n", groupId, e)
				if e.IsFatal() {
					return
				}
			}
		}
	}()
	return nil
}

func KafkaCreateTopics(ctx context.Context, topics ...string) error {
	a, err := kafka.NewAdminClient(&kafka.ConfigMap{
		"bootstrap.servers": Settings().KafkaBroker,
	})
	if err != nil {
		log.Printf("Error on AdminClient: %s\n", err.Error())
		return err
	}
	defer a.Close()
	topicsDef := []kafka.TopicSpecification{}
	for _, topic := range topics {
		topicsDef = append(topicsDef, kafka.TopicSpecification{
			Topic:             topic,
			NumPartitions:     10,
			ReplicationFactor: 1,
		})
	}
	results, err := a.CreateTopics(ctx, topicsDef)
	if err != nil {
		log.Printf("Error creating topics: %s\n", err.Error())
		return err
	}
	for _, r := range results {
		if r.Error.Code() != kafka.ErrNoError && r.Error.Code() != kafka.ErrTopicAlreadyExists {
			log.Printf("Topic %s: %s\n", r.Topic, r.Error.String())
		}
	}
	return nil
}

func CloseKafkaProducer() {
	producerMu.Lock()
	defer producerMu.Unlock()
	if producer == nil {
		return
	}
	producer.Flush(5000)
	producer.Close()
	producer = nil
}
