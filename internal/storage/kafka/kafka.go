// Package kafka publishes documents to a Kafka topic. Each document becomes
// one message keyed by its identifier, so updates to the same document land
// on the same partition in order.
package kafka

import (
	"context"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"tsvload/internal/storage"
	"tsvload/pkg/records"
)

// Config holds Kafka store configuration.
type Config struct {
	Brokers []string

	// Topic overrides the collection name as the destination topic.
	Topic    string
	Encoding string
}

// messageWriter is the part of *kafkago.Writer the store uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Store is a Kafka-backed storage.DocumentStore. kafka-go writers are safe
// for concurrent use, so one Store is shared by all workers.
type Store struct {
	w     messageWriter
	enc   storage.Encoder
	topic string
}

// newWriter is a test hook.
var newWriter = func(cfg Config) messageWriter {
	return &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.Brokers...),
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
	}
}

// New returns a Store for cfg.
func New(cfg Config) (*Store, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka: at least one broker address is required")
	}
	enc, err := storage.EncoderFor(cfg.Encoding)
	if err != nil {
		return nil, err
	}
	return &Store{w: newWriter(cfg), enc: enc, topic: cfg.Topic}, nil
}

// BulkWrite publishes docs and waits until every message is acknowledged by
// all in-sync replicas.
func (s *Store) BulkWrite(ctx context.Context, collection string, docs []records.Document) error {
	if len(docs) == 0 {
		return nil
	}
	topic := s.topic
	if topic == "" {
		topic = collection
	}
	msgs := make([]kafkago.Message, len(docs))
	for i, d := range docs {
		b, err := s.enc.Encode(d)
		if err != nil {
			return fmt.Errorf("kafka: encode %s: %w", d.ID, err)
		}
		msgs[i] = kafkago.Message{
			Topic: topic,
			Key:   []byte(d.ID),
			Value: b,
			Headers: []kafkago.Header{
				{Key: "content-type", Value: []byte(s.enc.ContentType())},
				{Key: "collection", Value: []byte(collection)},
			},
		}
	}
	if err := s.w.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("kafka: write %d messages to %s: %w", len(msgs), topic, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (s *Store) Close() error { return s.w.Close() }

func init() {
	storage.Register("kafka", func(ctx context.Context, cfg storage.Config) (storage.DocumentStore, error) {
		return New(Config{Brokers: cfg.Addrs, Topic: cfg.Topic, Encoding: cfg.Encoding})
	})
}
