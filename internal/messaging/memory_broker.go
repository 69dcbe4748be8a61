package messaging

import (
	"context"
	"errors"
	"sync"
)

var ErrBrokerClosed = errors.New("broker closed")

// MemoryBroker keeps an ordered log per binding. It backs local development
// without RabbitMQ and the tests.
type MemoryBroker struct {
	mu     sync.Mutex
	log    map[string][]Message
	closed bool

	// SendHook, when set, runs before a message is stored; a non-nil error
	// refuses the message.
	SendHook func(ctx context.Context, msg Message) error
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{log: make(map[string][]Message)}
}

func (b *MemoryBroker) Send(ctx context.Context, msg Message) error {
	if b.SendHook != nil {
		if err := b.SendHook(ctx, msg); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBrokerClosed
	}
	b.log[msg.Binding] = append(b.log[msg.Binding], msg)
	return nil
}

// Messages returns a copy of what was sent to binding, in send order.
func (b *MemoryBroker) Messages(binding string) []Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Message, len(b.log[binding]))
	copy(out, b.log[binding])
	return out
}

func (b *MemoryBroker) Ping(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBrokerClosed
	}
	return nil
}

func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	return nil
}
