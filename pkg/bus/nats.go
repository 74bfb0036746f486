package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NATSBus implements MessageBus using NATS. With Config.Stream set, publishes
// go through JetStream into a stream covering every feed subject.
type NATSBus struct {
	conn   *nats.Conn
	js     jetstream.JetStream
	config Config
	closed atomic.Bool

	streamMu    sync.Mutex
	streamReady bool
}

// NewNATSBus creates a new NATS-backed message bus.
func NewNATSBus(cfg Config) (*NATSBus, error) {
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.Timeout(cfg.Timeout),
		nats.ReconnectWait(time.Second),
		nats.MaxReconnects(-1), // Unlimited reconnects
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	b, err := NewNATSBusFromConn(conn, cfg)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return b, nil
}

// NewNATSBusFromConn creates a NATSBus from an existing connection.
func NewNATSBusFromConn(conn *nats.Conn, cfg Config) (*NATSBus, error) {
	js, err := jetstream.New(conn)
	if err != nil {
		return nil, fmt.Errorf("jetstream init: %w", err)
	}
	if cfg.StreamMaxAge == 0 {
		cfg.StreamMaxAge = DefaultConfig().StreamMaxAge
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	return &NATSBus{
		conn:   conn,
		js:     js,
		config: cfg,
	}, nil
}

// ensureStream creates the stream on first use. Failures are retried on the
// next publish; the publisher's ctx is not used so a cancelled fetch cannot
// fail stream creation.
func (b *NATSBus) ensureStream() error {
	b.streamMu.Lock()
	defer b.streamMu.Unlock()
	if b.streamReady {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.config.Timeout)
	defer cancel()
	_, err := b.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     b.config.Stream,
		Subjects: []string{SubjectPrefix + ".>"},
		MaxAge:   b.config.StreamMaxAge,
		Discard:  jetstream.DiscardOld,
		Storage:  jetstream.FileStorage,
		Replicas: 1,
	})
	if err != nil {
		return err
	}
	b.streamReady = true
	return nil
}

func (b *NATSBus) Publish(ctx context.Context, subject string, data []byte) error {
	if b.closed.Load() {
		return ErrClosed
	}
	if b.config.Stream == "" {
		return b.conn.Publish(subject, data)
	}

	if err := b.ensureStream(); err != nil {
		return fmt.Errorf("jetstream stream %s: %w", b.config.Stream, err)
	}
	if _, err := b.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("jetstream publish: %w", err)
	}
	return nil
}

func (b *NATSBus) Subscribe(ctx context.Context, subject string, handler MessageHandler) (Subscription, error) {
	if b.closed.Load() {
		return nil, ErrClosed
	}

	sub, err := b.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(&Message{
			Subject: msg.Subject,
			Data:    msg.Data,
		})
	})
	if err != nil {
		return nil, err
	}

	return &natsSubscription{sub: sub}, nil
}

func (b *NATSBus) Close() error {
	if b.closed.Swap(true) {
		return ErrClosed
	}
	if err := b.conn.Drain(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		b.conn.Close()
		return err
	}
	return nil
}

// Conn returns the underlying NATS connection.
func (b *NATSBus) Conn() *nats.Conn {
	return b.conn
}

// natsSubscription wraps a NATS subscription.
type natsSubscription struct {
	sub *nats.Subscription
}

func (s *natsSubscription) Unsubscribe() error {
	return s.sub.Unsubscribe()
}

func (s *natsSubscription) Subject() string {
	return s.sub.Subject
}
