// Package amqp publishes documents to a RabbitMQ queue with publisher
// confirms. An AMQP channel must not be shared between goroutines, so the
// store hands out one channel per worker session.
package amqp

import (
	"context"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"tsvload/internal/storage"
	"tsvload/pkg/records"
)

// Config holds AMQP store configuration.
type Config struct {
	URL string

	// Queue overrides the collection name as the routing key.
	Queue    string
	Encoding string
}

// publisher is the part of *amqp.Channel a session uses.
type publisher interface {
	Confirm(noWait bool) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithDeferredConfirmWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) (*amqp.DeferredConfirmation, error)
	Close() error
}

// connection is the part of *amqp.Connection the store uses.
type connection interface {
	channel() (publisher, error)
	Close() error
}

type amqpConn struct{ *amqp.Connection }

func (c amqpConn) channel() (publisher, error) { return c.Channel() }

// dial is a test hook.
var dial = func(url string) (connection, error) {
	c, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	return amqpConn{c}, nil
}

// Store is an AMQP-backed storage.DocumentStore and storage.Sessioner.
// BulkWrite on the Store itself uses a lazily opened channel guarded by a
// mutex; workers should use Session instead.
type Store struct {
	conn  connection
	enc   storage.Encoder
	queue string

	mu     sync.Mutex
	shared *Session
}

// New dials url and returns a Store.
func New(cfg Config) (*Store, error) {
	enc, err := storage.EncoderFor(cfg.Encoding)
	if err != nil {
		return nil, err
	}
	conn, err := dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("amqp: dial: %w", err)
	}
	return &Store{conn: conn, enc: enc, queue: cfg.Queue}, nil
}

// Session opens a confirm-mode channel for one worker.
func (s *Store) Session(ctx context.Context) (storage.DocumentStore, error) {
	return s.openSession()
}

func (s *Store) openSession() (*Session, error) {
	ch, err := s.conn.channel()
	if err != nil {
		return nil, fmt.Errorf("amqp: channel: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("amqp: confirm mode: %w", err)
	}
	return &Session{ch: ch, enc: s.enc, queue: s.queue, declared: map[string]bool{}}, nil
}

// BulkWrite publishes through a shared session.
func (s *Store) BulkWrite(ctx context.Context, collection string, docs []records.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shared == nil {
		sess, err := s.openSession()
		if err != nil {
			return err
		}
		s.shared = sess
	}
	return s.shared.BulkWrite(ctx, collection, docs)
}

// Close closes the shared channel, if any, and the connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shared != nil {
		_ = s.shared.Close()
		s.shared = nil
	}
	return s.conn.Close()
}

// Session is one worker's channel.
type Session struct {
	ch       publisher
	enc      storage.Encoder
	queue    string
	declared map[string]bool
}

// BulkWrite declares the destination queue on first use, publishes every
// document as a persistent message, and waits for all broker confirms. A
// nack fails the batch.
func (s *Session) BulkWrite(ctx context.Context, collection string, docs []records.Document) error {
	if len(docs) == 0 {
		return nil
	}
	queue := s.queue
	if queue == "" {
		queue = collection
	}
	if !s.declared[queue] {
		if _, err := s.ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
			return fmt.Errorf("amqp: declare %s: %w", queue, err)
		}
		s.declared[queue] = true
	}

	confirms := make([]*amqp.DeferredConfirmation, 0, len(docs))
	for _, d := range docs {
		b, err := s.enc.Encode(d)
		if err != nil {
			return fmt.Errorf("amqp: encode %s: %w", d.ID, err)
		}
		dc, err := s.ch.PublishWithDeferredConfirmWithContext(ctx, "", queue, false, false, amqp.Publishing{
			ContentType:  s.enc.ContentType(),
			DeliveryMode: amqp.Persistent,
			MessageId:    d.ID,
			Type:         collection,
			Body:         b,
		})
		if err != nil {
			return fmt.Errorf("amqp: publish %s: %w", d.ID, err)
		}
		confirms = append(confirms, dc)
	}
	for i, dc := range confirms {
		if dc == nil {
			continue
		}
		ok, err := dc.WaitContext(ctx)
		if err != nil {
			return fmt.Errorf("amqp: confirm %s: %w", docs[i].ID, err)
		}
		if !ok {
			return fmt.Errorf("amqp: broker nacked %s", docs[i].ID)
		}
	}
	return nil
}

// Close closes the channel.
func (s *Session) Close() error { return s.ch.Close() }

var (
	_ storage.DocumentStore = (*Store)(nil)
	_ storage.Sessioner     = (*Store)(nil)
	_ storage.DocumentStore = (*Session)(nil)
)

func init() {
	storage.Register("amqp", func(ctx context.Context, cfg storage.Config) (storage.DocumentStore, error) {
		return New(Config{URL: cfg.DSN, Queue: cfg.Queue, Encoding: cfg.Encoding})
	})
}
