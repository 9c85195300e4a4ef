package queue

import (
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
)

// ReaderConfig describes a consumer-group reader.
type ReaderConfig struct {
	Brokers  []string
	Topic    string
	GroupID  string
	Capacity int
}

// NewReader builds a reader with manual commits.
func NewReader(cfg ReaderConfig) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.GroupID,
		QueueCapacity:  cfg.Capacity,
		MinBytes:       1e3,
		MaxBytes:       10e6,
		MaxWait:        time.Second,
		CommitInterval: 0,
	})
}

// DeadLetterTopic names the DLQ for topic.
func DeadLetterTopic(topic string) string {
	return topic + "_dlq"
}

// DeadLetter copies msg for the DLQ, recording where it came from and why it failed.
func DeadLetter(msg kafka.Message, cause error, now time.Time) kafka.Message {
	headers := make([]kafka.Header, 0, len(msg.Headers)+4)
	headers = append(headers, msg.Headers...)
	headers = append(headers,
		kafka.Header{Key: "original_partition", Value: []byte(strconv.Itoa(msg.Partition))},
		kafka.Header{Key: "original_offset", Value: []byte(strconv.FormatInt(msg.Offset, 10))},
		kafka.Header{Key: "error", Value: []byte(cause.Error())},
		kafka.Header{Key: "timestamp", Value: []byte(now.UTC().Format(time.RFC3339))},
	)
	return kafka.Message{Key: msg.Key, Value: msg.Value, Headers: headers}
}
