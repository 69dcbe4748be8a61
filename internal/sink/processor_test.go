package sink

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/baechuer/real-time-ressys/services/composite-service/internal/domain"
	"github.com/baechuer/real-time-ressys/services/composite-service/internal/events"
	"github.com/baechuer/real-time-ressys/services/composite-service/internal/idempotency"
	"github.com/baechuer/real-time-ressys/services/composite-service/internal/messaging/rabbitmq"
)

type mockHandler[T any] struct {
	mock.Mock
}

func (m *mockHandler[T]) Create(ctx context.Context, payload T) error {
	return m.Called(ctx, payload).Error(0)
}

func (m *mockHandler[T]) Delete(ctx context.Context, key int) error {
	return m.Called(ctx, key).Error(0)
}

func setupStore(t *testing.T) (*idempotency.Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return idempotency.NewStore(client, "sink", time.Hour), mr
}

func body(t *testing.T, e any) []byte {
	t.Helper()
	b, err := json.Marshal(e)
	require.NoError(t, err)
	return b
}

func TestProcessor_RoutesByBinding(t *testing.T) {
	products := new(mockHandler[domain.Product])
	recs := new(mockHandler[domain.Recommendation])
	reviews := new(mockHandler[domain.Review])
	p := NewProcessor(nil, Handlers{Products: products, Recommendations: recs, Reviews: reviews})

	product := domain.Product{ProductID: 1, Name: "n", Weight: 1}
	rec := domain.Recommendation{ProductID: 1, RecommendationID: 2, Author: "a", Rate: 3, Content: "c"}
	products.On("Create", mock.Anything, product).Return(nil)
	recs.On("Create", mock.Anything, rec).Return(nil)
	reviews.On("Delete", mock.Anything, 1).Return(nil)

	ctx := context.Background()
	require.NoError(t, p.Handle(ctx, rabbitmq.Delivery{Binding: events.BindingProducts, Body: body(t, events.NewCreate(product))}))
	require.NoError(t, p.Handle(ctx, rabbitmq.Delivery{Binding: events.BindingRecommendations, Body: body(t, events.NewCreate(rec))}))
	require.NoError(t, p.Handle(ctx, rabbitmq.Delivery{Binding: events.BindingReviews, Body: body(t, events.NewDelete[domain.Review](1))}))

	products.AssertExpectations(t)
	recs.AssertExpectations(t)
	reviews.AssertExpectations(t)
}

func TestProcessor_PoisonMessages(t *testing.T) {
	p := NewProcessor(nil, Handlers{
		Products:        new(mockHandler[domain.Product]),
		Recommendations: new(mockHandler[domain.Recommendation]),
		Reviews:         new(mockHandler[domain.Review]),
	})

	cases := map[string]rabbitmq.Delivery{
		"malformed body":  {Binding: events.BindingProducts, Body: []byte(`{"eventType":`)},
		"unknown type":    {Binding: events.BindingProducts, Body: []byte(`{"eventType":"UPDATE","key":1,"data":null}`)},
		"unknown binding": {Binding: "orders", Body: []byte(`{"eventType":"DELETE","key":1,"data":null}`)},
	}
	for name, d := range cases {
		t.Run(name, func(t *testing.T) {
			err := p.Handle(context.Background(), d)
			assert.ErrorIs(t, err, domain.ErrEventProcessing)
		})
	}
}

func TestProcessor_SkipsDuplicates(t *testing.T) {
	store, _ := setupStore(t)
	products := new(mockHandler[domain.Product])
	products.On("Delete", mock.Anything, 1).Return(nil).Once()
	p := NewProcessor(store, Handlers{Products: products})

	d := rabbitmq.Delivery{
		Binding:   events.BindingProducts,
		MessageID: "msg-1",
		Body:      body(t, events.NewDelete[domain.Product](1)),
	}
	require.NoError(t, p.Handle(context.Background(), d))
	require.NoError(t, p.Handle(context.Background(), d))

	products.AssertNumberOfCalls(t, "Delete", 1)
}

func TestProcessor_ReleasesMarkOnTransientFailure(t *testing.T) {
	store, mr := setupStore(t)
	products := new(mockHandler[domain.Product])
	products.On("Delete", mock.Anything, 1).Return(errors.New("sink down")).Once()
	products.On("Delete", mock.Anything, 1).Return(nil).Once()
	p := NewProcessor(store, Handlers{Products: products})

	d := rabbitmq.Delivery{
		Binding:   events.BindingProducts,
		MessageID: "msg-2",
		Body:      body(t, events.NewDelete[domain.Product](1)),
	}
	require.Error(t, p.Handle(context.Background(), d))
	assert.False(t, mr.Exists(store.Key("msg-2")))

	// the requeued copy is processed
	require.NoError(t, p.Handle(context.Background(), d))
	assert.True(t, mr.Exists(store.Key("msg-2")))
	products.AssertNumberOfCalls(t, "Delete", 2)
}

func TestProcessor_KeepsMarkOnPoison(t *testing.T) {
	store, mr := setupStore(t)
	p := NewProcessor(store, Handlers{Products: new(mockHandler[domain.Product])})

	err := p.Handle(context.Background(), rabbitmq.Delivery{
		Binding:   events.BindingProducts,
		MessageID: "msg-3",
		Body:      []byte(`not json`),
	})
	assert.ErrorIs(t, err, domain.ErrEventProcessing)
	assert.True(t, mr.Exists(store.Key("msg-3")))
}

func TestProcessor_StoreDownRequeues(t *testing.T) {
	store, mr := setupStore(t)
	mr.Close()
	p := NewProcessor(store, Handlers{Products: new(mockHandler[domain.Product])})

	err := p.Handle(context.Background(), rabbitmq.Delivery{
		Binding:   events.BindingProducts,
		MessageID: "msg-4",
		Body:      body(t, events.NewDelete[domain.Product](1)),
	})
	assert.ErrorIs(t, err, domain.ErrUnavailable)
}

func TestLogHandler(t *testing.T) {
	h := LogHandler[domain.Review]{Entity: "review"}
	assert.NoError(t, h.Create(context.Background(), domain.Review{ProductID: 1, ReviewID: 1}))
	assert.NoError(t, h.Delete(context.Background(), 1))
}
