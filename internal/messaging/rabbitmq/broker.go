package rabbitmq

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/baechuer/real-time-ressys/services/composite-service/internal/messaging"
	amqp "github.com/rabbitmq/amqp091-go"
)

type Options struct {
	URL            string
	Bindings       []string
	PartitionCount int
	// Group, when set, has its partition queues declared up front so
	// mandatory publishes have a route before any consumer starts.
	Group string
}

// Broker publishes to one topic exchange per binding with mandatory
// routing and publisher confirms.
type Broker struct {
	opts Options

	mu sync.Mutex

	conn *amqp.Connection
	ch   *amqp.Channel

	returns *returnTracker
}

func Dial(opts Options) (*Broker, error) {
	if strings.TrimSpace(opts.URL) == "" {
		return nil, errors.New("missing rabbit url")
	}
	if opts.PartitionCount < 1 {
		opts.PartitionCount = 1
	}

	b := &Broker{opts: opts}
	if err := b.connect(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Broker) connect() error {
	conn, err := amqp.Dial(b.opts.URL)
	if err != nil {
		return err
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return err
	}

	for _, binding := range b.opts.Bindings {
		if err := declareTopology(ch, binding, b.opts.Group, b.opts.PartitionCount); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return err
		}
	}

	// enable publisher confirms
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return err
	}

	b.conn = conn
	b.ch = ch

	// unbuffered: the channel's dispatcher hands each Return over before
	// it processes the following Confirm
	b.returns = newReturnTracker(ch.NotifyReturn(make(chan amqp.Return)))

	return nil
}

// Send publishes msg and waits for the broker's confirm. An unroutable
// message is reported as NO_ROUTE.
func (b *Broker) Send(ctx context.Context, msg messaging.Message) error {
	if msg.Binding == "" {
		return errors.New("missing binding")
	}
	if strings.TrimSpace(msg.MessageID) == "" {
		return errors.New("missing messageID")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.ch == nil {
		return errors.New("publisher channel not ready")
	}

	routingKey := RoutingKey(msg.Binding, msg.Partition)
	dc, err := b.ch.PublishWithDeferredConfirmWithContext(
		ctx,
		msg.Binding,
		routingKey,
		true,  // mandatory
		false, // immediate
		amqp.Publishing{
			MessageId:    msg.MessageID,
			Type:         msg.EventType,
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			Headers:      amqp.Table{HeaderPartitionKey: int64(msg.PartitionKey)},
			Body:         msg.Body,
		},
	)
	if err != nil {
		return err
	}

	ack, err := dc.WaitContext(ctx)
	if err != nil {
		// forget a late Return so it cannot be matched later
		returns, id := b.returns, msg.MessageID
		go func() {
			dc.Wait()
			returns.take(id)
		}()
		return err
	}

	if key, returned := b.returns.take(msg.MessageID); returned {
		return errors.New("NO_ROUTE: " + key)
	}
	if !ack {
		return errors.New("publish nack")
	}
	return nil
}

// Ping reports whether the connection is still open.
func (b *Broker) Ping(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn == nil || b.conn.IsClosed() {
		return errors.New("rabbitmq connection closed")
	}
	return nil
}

func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.ch != nil {
		_ = b.ch.Close()
		b.ch = nil
	}
	if b.conn != nil {
		_ = b.conn.Close()
		b.conn = nil
	}
	return nil
}

var _ messaging.Broker = (*Broker)(nil)
