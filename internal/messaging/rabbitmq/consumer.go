package rabbitmq

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/baechuer/real-time-ressys/services/composite-service/internal/domain"
	"github.com/baechuer/real-time-ressys/services/composite-service/internal/logger"
	"github.com/baechuer/real-time-ressys/services/composite-service/internal/metrics"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// Delivery is the broker-neutral view of one received message.
type Delivery struct {
	Binding   string
	Partition int
	MessageID string
	Body      []byte
}

// HandlerFunc processes one delivery. EventProcessing errors drop the
// message; any other error requeues it.
type HandlerFunc func(ctx context.Context, d Delivery) error

type ConsumerOptions struct {
	URL       string
	Binding   string
	Group     string
	Partition int
	Prefetch  int
	// HandleTimeout bounds a single handler call.
	HandleTimeout time.Duration
}

// Consumer reads one partition queue of a binding.
type Consumer struct {
	opts    ConsumerOptions
	handler HandlerFunc
}

func NewConsumer(opts ConsumerOptions, handler HandlerFunc) *Consumer {
	opts.URL = strings.TrimSpace(opts.URL)
	if opts.Prefetch < 1 {
		opts.Prefetch = 10
	}
	if opts.HandleTimeout <= 0 {
		opts.HandleTimeout = 5 * time.Second
	}
	return &Consumer{opts: opts, handler: handler}
}

// Start declares the partition queue and consumes it until ctx is done.
// It returns once consumption has started.
func (c *Consumer) Start(ctx context.Context) error {
	queue := QueueName(c.opts.Binding, c.opts.Group, c.opts.Partition)
	log := logger.Component("rabbitmq_consumer").With().Str("queue", queue).Logger()

	conn, err := amqp.Dial(c.opts.URL)
	if err != nil {
		return err
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return err
	}

	// Ensure exchange and queue exist (idempotent)
	if err := ch.ExchangeDeclare(c.opts.Binding, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return err
	}
	if err := declarePartitionQueue(ch, c.opts.Binding, c.opts.Group, c.opts.Partition); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return err
	}

	if err := ch.Qos(c.opts.Prefetch, 0, false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return err
	}

	deliveries, err := ch.Consume(queue, "composite-"+c.opts.Group, false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return err
	}

	go func() {
		defer func() {
			_ = ch.Close()
			_ = conn.Close()
		}()

		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("consumer shutting down")
				return
			case d, ok := <-deliveries:
				if !ok {
					log.Warn().Msg("consumer channel closed")
					return
				}
				c.ack(d, c.handle(ctx, d, log))
			}
		}
	}()

	log.Info().Msg("consumer started")
	return nil
}

type acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

func (c *Consumer) ack(d acknowledger, o outcome) {
	switch o {
	case outcomeRequeue:
		_ = d.Nack(false, true)
	default:
		_ = d.Ack(false)
	}
}

type outcome int

const (
	outcomeProcessed outcome = iota
	outcomeDropped
	outcomeRequeue
)

func (c *Consumer) handle(ctx context.Context, d amqp.Delivery, log zerolog.Logger) outcome {
	return c.process(ctx, Delivery{
		Binding:   c.opts.Binding,
		Partition: c.opts.Partition,
		MessageID: d.MessageId,
		Body:      d.Body,
	}, log)
}

// process runs the handler and classifies its result.
func (c *Consumer) process(ctx context.Context, d Delivery, log zerolog.Logger) outcome {
	hctx, cancel := context.WithTimeout(ctx, c.opts.HandleTimeout)
	defer cancel()

	log = log.With().Str("message_id", d.MessageID).Logger()

	err := c.handler(hctx, d)
	switch {
	case err == nil:
		metrics.RecordConsumed(d.Binding, "processed")
		return outcomeProcessed
	case errors.Is(err, domain.ErrEventProcessing):
		// poison => drop
		metrics.RecordConsumed(d.Binding, "dropped")
		log.Warn().Err(err).Msg("dropping unprocessable event")
		return outcomeDropped
	default:
		metrics.RecordConsumed(d.Binding, "requeued")
		log.Error().Err(err).Msg("processing failed (requeue)")
		return outcomeRequeue
	}
}
