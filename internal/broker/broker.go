// Package broker owns the RabbitMQ connection and channel for one relay
// instance. The handle is constructed once and passed explicitly; nothing
// here is package-level state. The manager declares the tenant queue,
// caps the prefetch credit at one so deliveries are processed strictly in
// order, and issues exactly one ack or nack per delivery.
package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/anglebert-dev/print-relay/internal/dispatch"
	"github.com/anglebert-dev/print-relay/internal/envelope"
	"github.com/anglebert-dev/print-relay/internal/metrics"
	"github.com/anglebert-dev/print-relay/internal/notify"
)

// deadLetterExchange is the broker-side destination for dropped and
// expired messages. Declaring and binding it is an operator concern.
const deadLetterExchange = "dead-letter-exchange"

// messageTTL is how long a message may wait in the queue before the
// broker dead-letters it.
const messageTTL = 24 * time.Hour

// Handler processes one delivery and decides the broker response.
type Handler interface {
	Handle(ctx context.Context, d envelope.Delivery) dispatch.Outcome
}

// Config holds broker manager configuration.
type Config struct {
	URL            string
	QueueName      string
	ConsumerTag    string
	ReconnectDelay time.Duration
	Heartbeat      time.Duration
	ConnectTimeout time.Duration
}

// Manager maintains one connection and one channel to the broker and runs
// the consume loop. On any connection loss it reconnects after a fixed
// delay, indefinitely, until its context is cancelled.
type Manager struct {
	cfg      Config
	handler  Handler
	notifier *notify.Notifier
	log      zerolog.Logger

	// dial is injectable so tests can substitute a failing or fake broker
	// without real network and without waiting on real reconnect delays.
	dial func() (*amqp.Connection, error)

	mu        sync.Mutex
	conn      *amqp.Connection
	ch        *amqp.Channel
	connected bool
}

// NewManager creates a Manager. The connection is not opened until Run.
func NewManager(cfg Config, handler Handler, notifier *notify.Notifier, log zerolog.Logger) *Manager {
	m := &Manager{
		cfg:      cfg,
		handler:  handler,
		notifier: notifier,
		log:      log,
	}
	m.dial = func() (*amqp.Connection, error) {
		return amqp.DialConfig(cfg.URL, amqp.Config{
			Heartbeat: cfg.Heartbeat,
			Dial:      amqp.DefaultDial(cfg.ConnectTimeout),
		})
	}
	return m
}

// Run connects, declares the queue, and consumes until ctx is cancelled.
// Connection and setup failures are retried on the fixed reconnect delay
// rather than aborting; only context cancellation ends the loop.
func (m *Manager) Run(ctx context.Context) {
	for {
		err := m.consumeOnce(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			m.notifier.ConnectionError(err, "RabbitMQ", true)
			m.log.Warn().
				Err(err).
				Dur("delay", m.cfg.ReconnectDelay).
				Msg("broker session ended, reconnecting")
		}

		metrics.BrokerReconnectsTotal.Inc()
		select {
		case <-ctx.Done():
			return
		case <-time.After(m.cfg.ReconnectDelay):
		}
	}
}

// consumeOnce runs one broker session: connect, set up the queue, and
// process deliveries until the session dies or ctx is cancelled.
func (m *Manager) consumeOnce(ctx context.Context) error {
	conn, err := m.dial()
	if err != nil {
		return fmt.Errorf("broker: connect: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("broker: open channel: %w", err)
	}

	if err := m.setupQueue(ch); err != nil {
		ch.Close()
		conn.Close()
		return err
	}

	m.setSession(conn, ch)
	defer m.clearSession()

	m.notifier.System("RabbitMQ connection established")
	m.log.Info().Str("queue", m.cfg.QueueName).Msg("consuming from queue")

	deliveries, err := ch.Consume(
		m.cfg.QueueName,
		m.cfg.ConsumerTag,
		false, // autoAck: acknowledgement is the dispatch outcome
		false, // exclusive
		false, // noLocal
		false, // noWait
		nil,
	)
	if err != nil {
		return fmt.Errorf("broker: start consuming: %w", err)
	}

	closed := conn.NotifyClose(make(chan *amqp.Error, 1))

	for {
		select {
		case <-ctx.Done():
			return nil
		case amqpErr := <-closed:
			if amqpErr == nil {
				return errors.New("broker: connection closed")
			}
			return fmt.Errorf("broker: connection closed: %w", amqpErr)
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("broker: delivery channel closed")
			}
			m.process(ctx, d)
		}
	}
}

// setupQueue declares the durable tenant queue with dead-letter routing and
// the message TTL, then caps the prefetch credit at one unacknowledged
// delivery.
func (m *Manager) setupQueue(ch *amqp.Channel) error {
	_, err := ch.QueueDeclare(
		m.cfg.QueueName,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		amqp.Table{
			"x-dead-letter-exchange": deadLetterExchange,
			"x-message-ttl":          messageTTL.Milliseconds(),
		},
	)
	if err != nil {
		return fmt.Errorf("broker: declare queue %s: %w", m.cfg.QueueName, err)
	}

	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("broker: set prefetch: %w", err)
	}

	m.notifier.System("queue " + m.cfg.QueueName + " setup complete")
	return nil
}

// process hands one delivery to the handler and issues exactly one of
// ack, nack-with-requeue, or nack-without-requeue.
func (m *Manager) process(ctx context.Context, d amqp.Delivery) {
	delivery := envelope.Delivery{
		MessageID:   d.MessageId,
		ContentType: d.ContentType,
		Headers:     map[string]interface{}(d.Headers),
		Body:        d.Body,
	}

	outcome := m.handler.Handle(ctx, delivery)

	var err error
	switch outcome {
	case dispatch.OutcomeAck:
		err = d.Ack(false)
	case dispatch.OutcomeNackRequeue:
		err = d.Nack(false, true)
	case dispatch.OutcomeNackDrop:
		err = d.Nack(false, false)
	default:
		// Unreachable with the closed Outcome set; requeue rather than
		// leave the delivery unacknowledged forever.
		err = d.Nack(false, true)
	}
	if err != nil {
		m.log.Error().
			Err(err).
			Str("message_id", d.MessageId).
			Str("outcome", outcome.String()).
			Msg("failed to settle delivery")
	}
}

func (m *Manager) setSession(conn *amqp.Connection, ch *amqp.Channel) {
	m.mu.Lock()
	m.conn = conn
	m.ch = ch
	m.connected = true
	m.mu.Unlock()
	metrics.BrokerConnected.Set(1)
}

// clearSession tears the session down: channel first, then connection,
// then the published state. consumeOnce defers this so every exit path,
// including cancellation and a failed Consume, releases its handles
// instead of leaking a live connection into the next reconnect cycle.
func (m *Manager) clearSession() {
	m.mu.Lock()
	ch, conn := m.ch, m.conn
	m.ch, m.conn, m.connected = nil, nil, false
	m.mu.Unlock()
	metrics.BrokerConnected.Set(0)

	// A session that died on the broker side is already closed; these
	// then fail with ErrClosed, which is not worth surfacing.
	if ch != nil {
		if err := ch.Close(); err != nil {
			m.log.Debug().Err(err).Msg("channel close during teardown")
		}
	}
	if conn != nil {
		if err := conn.Close(); err != nil {
			m.log.Debug().Err(err).Msg("connection close during teardown")
		}
	}
}

// Connected reports whether a broker session is currently established.
func (m *Manager) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// Close shuts the channel, then the connection, in that order. It is the
// external-stop path for a session whose Run loop is not already tearing
// it down; after a context-cancelled Run the handles are gone and Close
// is a no-op. Close errors are propagated to the caller without retrying.
func (m *Manager) Close() error {
	m.mu.Lock()
	ch, conn := m.ch, m.conn
	m.ch, m.conn, m.connected = nil, nil, false
	m.mu.Unlock()
	metrics.BrokerConnected.Set(0)

	var errs []error
	if ch != nil {
		if err := ch.Close(); err != nil {
			errs = append(errs, fmt.Errorf("broker: close channel: %w", err))
		}
	}
	if conn != nil {
		if err := conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("broker: close connection: %w", err))
		}
	}

	if len(errs) == 0 {
		m.notifier.System("RabbitMQ connection closed gracefully")
	}
	return errors.Join(errs...)
}
