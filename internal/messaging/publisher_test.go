package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/baechuer/real-time-ressys/services/composite-service/internal/domain"
	"github.com/baechuer/real-time-ressys/services/composite-service/internal/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPublisher(b Broker) *Publisher {
	return NewPublisher(b, PublisherConfig{
		Workers:        2,
		QueueSize:      10,
		PartitionCount: 2,
		Timeout:        time.Second,
	})
}

func TestPublisher_Publish(t *testing.T) {
	broker := NewMemoryBroker()
	p := testPublisher(broker)
	defer p.Close()

	e := events.NewCreate(domain.Product{ProductID: 1, Name: "name", Weight: 1})
	require.NoError(t, p.Publish(context.Background(), events.BindingProducts, e))

	msgs := broker.Messages(events.BindingProducts)
	require.Len(t, msgs, 1)
	assert.Equal(t, "CREATE", msgs[0].EventType)
	assert.Equal(t, 1, msgs[0].PartitionKey)
	assert.Equal(t, 1, msgs[0].Partition)
	assert.NotEmpty(t, msgs[0].MessageID)

	got, err := events.Decode[domain.Product](msgs[0].Body)
	require.NoError(t, err)
	assert.True(t, events.SameEvent(e, got))
}

func TestPublisher_PerKeyOrdering(t *testing.T) {
	broker := NewMemoryBroker()
	p := testPublisher(broker)
	defer p.Close()

	ctx := context.Background()
	require.NoError(t, p.Publish(ctx, events.BindingReviews, events.NewCreate(domain.Review{ProductID: 3, ReviewID: 1})))
	require.NoError(t, p.Publish(ctx, events.BindingReviews, events.NewDelete[domain.Review](3)))

	msgs := broker.Messages(events.BindingReviews)
	require.Len(t, msgs, 2)
	assert.Equal(t, "CREATE", msgs[0].EventType)
	assert.Equal(t, "DELETE", msgs[1].EventType)
	assert.Equal(t, msgs[0].Partition, msgs[1].Partition)
}

func TestPublisher_ConcurrentSameKeyStaysOnOnePartition(t *testing.T) {
	broker := NewMemoryBroker()
	p := testPublisher(broker)
	defer p.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = p.Publish(context.Background(), events.BindingProducts, events.NewDelete[domain.Product](4))
		}()
	}
	wg.Wait()

	msgs := broker.Messages(events.BindingProducts)
	require.Len(t, msgs, 8)
	for _, m := range msgs {
		assert.Equal(t, 0, m.Partition)
	}
}

func TestPublisher_BrokerFailure(t *testing.T) {
	broker := NewMemoryBroker()
	broker.SendHook = func(context.Context, Message) error { return errors.New("NO_ROUTE: products.1") }
	p := testPublisher(broker)
	defer p.Close()

	err := p.Publish(context.Background(), events.BindingProducts, events.NewDelete[domain.Product](1))
	assert.True(t, errors.Is(err, domain.ErrUnavailable))
	assert.Contains(t, err.Error(), "NO_ROUTE")
}

func TestPublisher_NoCapacity(t *testing.T) {
	block := make(chan struct{})
	broker := NewMemoryBroker()
	broker.SendHook = func(context.Context, Message) error {
		<-block
		return nil
	}
	p := NewPublisher(broker, PublisherConfig{Workers: 1, QueueSize: 1, PartitionCount: 1})
	defer p.Close()
	defer close(block)

	ctx, cancel := context.WithCancel(context.Background())
	// one send in flight, one queued
	for i := 0; i < 2; i++ {
		go func() { _ = p.Publish(ctx, events.BindingProducts, events.NewDelete[domain.Product](1)) }()
	}

	require.Eventually(t, func() bool {
		shortCtx, stop := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer stop()
		err := p.Publish(shortCtx, events.BindingProducts, events.NewDelete[domain.Product](1))
		return err == ErrPublishRejected
	}, time.Second, 5*time.Millisecond)
	cancel()
}

func TestPublisher_CallerCancellationDoesNotAbortSend(t *testing.T) {
	release := make(chan struct{})
	broker := NewMemoryBroker()
	broker.SendHook = func(ctx context.Context, _ Message) error {
		<-release
		return ctx.Err()
	}
	p := testPublisher(broker)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- p.Publish(ctx, events.BindingProducts, events.NewDelete[domain.Product](1))
	}()

	cancel()
	err := <-errCh
	assert.Equal(t, domain.KindUnavailable, domain.KindOf(err))

	close(release)
	require.NoError(t, p.Close())
	assert.Len(t, broker.Messages(events.BindingProducts), 1)
}

func TestPublisher_EnvelopeWireShape(t *testing.T) {
	broker := NewMemoryBroker()
	p := testPublisher(broker)
	defer p.Close()

	require.NoError(t, p.Publish(context.Background(), events.BindingRecommendations, events.NewDelete[domain.Recommendation](1)))

	var wire map[string]any
	require.NoError(t, json.Unmarshal(broker.Messages(events.BindingRecommendations)[0].Body, &wire))
	assert.Equal(t, "DELETE", wire["eventType"])
	assert.Equal(t, float64(1), wire["key"])
	assert.Nil(t, wire["data"])
	assert.Contains(t, wire, "eventCreatedAt")
}
