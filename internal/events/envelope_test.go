package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/baechuer/real-time-ressys/services/composite-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func product(id int, name string) domain.Product {
	return domain.Product{ProductID: id, Name: name, Weight: 1}
}

func TestNewCreate_KeyFromPayload(t *testing.T) {
	e := NewCreate(product(1, "name"))

	assert.Equal(t, EventCreate, e.Type)
	assert.Equal(t, 1, e.Key)
	assert.Equal(t, 1, e.PartitionKey())
	require.NotNil(t, e.Data)
	assert.Equal(t, "name", e.Data.Name)
	assert.False(t, e.CreatedAt.IsZero())
}

func TestNewDelete_NullPayload(t *testing.T) {
	e := NewDelete[domain.Review](1)
	assert.Nil(t, e.Data)

	raw, err := json.Marshal(e)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"data":null`)
	assert.Contains(t, string(raw), `"eventType":"DELETE"`)
}

func TestSameEvent_IgnoresCreatedAt(t *testing.T) {
	a := NewCreate(product(1, "name"))
	b := NewCreate(product(1, "name"))
	b.CreatedAt = a.CreatedAt.Add(time.Hour)

	assert.True(t, SameEvent(a, b))

	rawA, _ := json.Marshal(a)
	rawB, _ := json.Marshal(b)
	same, err := SameEventJSON(rawA, rawB)
	require.NoError(t, err)
	assert.True(t, same)
}

func TestSameEvent_RoundTrip(t *testing.T) {
	sent := NewCreate(product(1, "name"))
	raw, err := json.Marshal(sent)
	require.NoError(t, err)

	got, err := Decode[domain.Product](raw)
	require.NoError(t, err)
	assert.True(t, SameEvent(sent, got))
}

func TestSameEvent_Differences(t *testing.T) {
	base := NewCreate(product(1, "name"))

	cases := map[string]Envelope[domain.Product]{
		"type":    NewDelete[domain.Product](1),
		"key":     NewCreate(product(2, "name")),
		"payload": NewCreate(product(1, "other")),
	}
	for name, other := range cases {
		t.Run(name, func(t *testing.T) {
			assert.False(t, SameEvent(base, other))

			rawA, _ := json.Marshal(base)
			rawB, _ := json.Marshal(other)
			same, err := SameEventJSON(rawA, rawB)
			require.NoError(t, err)
			assert.False(t, same)
		})
	}
}

func TestSameEventJSON_Malformed(t *testing.T) {
	_, err := SameEventJSON([]byte(`{`), []byte(`{}`))
	assert.Error(t, err)
}

func TestDecode_Malformed(t *testing.T) {
	_, err := Decode[domain.Product]([]byte(`not json`))
	assert.True(t, errors.Is(err, domain.ErrEventProcessing))
}

type mockHandler struct {
	mock.Mock
}

func (m *mockHandler) Create(ctx context.Context, p domain.Product) error {
	return m.Called(ctx, p).Error(0)
}

func (m *mockHandler) Delete(ctx context.Context, key int) error {
	return m.Called(ctx, key).Error(0)
}

func TestDispatch(t *testing.T) {
	ctx := context.Background()

	t.Run("create", func(t *testing.T) {
		h := new(mockHandler)
		h.On("Create", ctx, product(1, "name")).Return(nil)

		require.NoError(t, Dispatch(ctx, NewCreate(product(1, "name")), h))
		h.AssertExpectations(t)
	})

	t.Run("delete", func(t *testing.T) {
		h := new(mockHandler)
		h.On("Delete", ctx, 1).Return(nil)

		require.NoError(t, Dispatch(ctx, NewDelete[domain.Product](1), h))
		h.AssertExpectations(t)
	})

	t.Run("handler error propagates", func(t *testing.T) {
		h := new(mockHandler)
		want := errors.New("db down")
		h.On("Delete", ctx, 1).Return(want)

		assert.ErrorIs(t, Dispatch(ctx, NewDelete[domain.Product](1), h), want)
	})

	invalid := map[string]Envelope[domain.Product]{
		"unknown type":       {Type: "UPDATE", Key: 1},
		"create no payload":  {Type: EventCreate, Key: 1},
		"delete payload":     {Type: EventDelete, Key: 1, Data: &domain.Product{ProductID: 1}},
		"create key differs": {Type: EventCreate, Key: 2, Data: &domain.Product{ProductID: 1}},
	}
	for name, e := range invalid {
		t.Run(name, func(t *testing.T) {
			h := new(mockHandler)
			err := Dispatch(ctx, e, h)
			assert.True(t, errors.Is(err, domain.ErrEventProcessing))
			h.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
			h.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
		})
	}

	t.Run("key mismatch from the wire", func(t *testing.T) {
		e, err := Decode[domain.Product]([]byte(`{"eventType":"CREATE","key":7,"data":{"productId":1,"name":"n","weight":1}}`))
		require.NoError(t, err)
		assert.EqualError(t, Dispatch(ctx, e, new(mockHandler)), "CREATE event key 7 does not match payload key 1")
	})

	t.Run("unknown type message", func(t *testing.T) {
		err := Dispatch(ctx, Envelope[domain.Product]{Type: "UPDATE", Key: 1}, new(mockHandler))
		assert.EqualError(t, err, "Incorrect event type: UPDATE, expected a CREATE or DELETE event")
	})
}
