package ingest

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/example/ride-client/internal/models"
)

// KafkaMirror copies each published location sample onto a Kafka
// topic for downstream telemetry. Optional; the push channel remains
// the primary path.
type KafkaMirror struct {
	writer *kafka.Writer
}

func NewKafkaMirror(brokers []string, topic string) *KafkaMirror {
	w := kafka.NewWriter(kafka.WriterConfig{Brokers: brokers, Topic: topic, Balancer: &kafka.LeastBytes{}})
	return &KafkaMirror{writer: w}
}

func (k *KafkaMirror) PublishLocation(u models.LocationUpdate) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	b, _ := json.Marshal(u)
	key := strconv.FormatInt(u.UserID, 10)
	return k.writer.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: b})
}

func (k *KafkaMirror) Close() error {
	if k.writer == nil {
		return nil
	}
	return k.writer.Close()
}
