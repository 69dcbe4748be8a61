package downstream

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/baechuer/real-time-ressys/services/composite-service/internal/domain"
	"github.com/baechuer/real-time-ressys/services/composite-service/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient() *Client {
	return NewClient(ClientConfig{ReadTimeout: 200 * time.Millisecond, WriteTimeout: 200 * time.Millisecond})
}

func TestProductClient_GetProduct(t *testing.T) {
	var gotQuery, gotReqID, gotGroup string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/product/1", r.URL.Path)
		gotQuery = r.URL.RawQuery
		gotReqID = r.Header.Get("X-Request-ID")
		gotGroup = r.Header.Get("X-group")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"productId":1,"name":"name","weight":1,"serviceAddress":"pro/1"}`))
	}))
	defer srv.Close()

	c := NewProductClient(srv.URL+"/", newTestClient())

	t.Run("plain", func(t *testing.T) {
		ctx := middleware.SetRequestIDForTest(context.Background(), "req-1")
		p, err := c.GetProduct(ctx, 1, 0, 0)
		require.NoError(t, err)
		assert.Equal(t, &domain.Product{ProductID: 1, Name: "name", Weight: 1, ServiceAddress: "pro/1"}, p)
		assert.Empty(t, gotQuery)
		assert.Equal(t, "req-1", gotReqID)
		assert.Empty(t, gotGroup)
	})

	t.Run("routing group forwarded", func(t *testing.T) {
		ctx := middleware.SetGroupForTest(context.Background(), "canary")
		_, err := c.GetProduct(ctx, 1, 0, 0)
		require.NoError(t, err)
		assert.Equal(t, "canary", gotGroup)
	})

	t.Run("diagnostic hints forwarded", func(t *testing.T) {
		_, err := c.GetProduct(context.Background(), 1, 3, 50)
		require.NoError(t, err)
		assert.Equal(t, "delay=3&faultPercent=50", gotQuery)
	})
}

func TestProductClient_ErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		kind   domain.Kind
		msg    string
	}{
		{"not found", http.StatusNotFound, `{"message":"No product found for productId: 13"}`, domain.KindNotFound, "No product found for productId: 13"},
		{"invalid input", http.StatusUnprocessableEntity, `{"message":"Invalid productId: -1"}`, domain.KindInvalidInput, "Invalid productId: -1"},
		{"server error", http.StatusInternalServerError, `oops`, domain.KindUnavailable, "unexpected status: 500"},
		{"unexpected status", http.StatusTeapot, ``, domain.KindUnknown, "unexpected status: 418"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			_, err := NewProductClient(srv.URL, newTestClient()).GetProduct(context.Background(), 1, 0, 0)
			require.Error(t, err)
			assert.Equal(t, tc.kind, domain.KindOf(err))
			assert.Contains(t, err.Error(), tc.msg)
		})
	}
}

func TestProductClient_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	_, err := NewProductClient(srv.URL, newTestClient()).GetProduct(context.Background(), 1, 0, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrUnavailable))
	assert.True(t, errors.Is(err, ErrTimeout))
}

func TestProductClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewProductClient(url, newTestClient()).GetProduct(context.Background(), 1, 0, 0)
	assert.Equal(t, domain.KindUnavailable, domain.KindOf(err))
}

func TestProductClient_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{not json`))
	}))
	defer srv.Close()

	_, err := NewProductClient(srv.URL, newTestClient()).GetProduct(context.Background(), 1, 0, 0)
	assert.Equal(t, domain.KindUnknown, domain.KindOf(err))
}

func TestDependentClients(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1", r.URL.Query().Get("productId"))
		switch r.URL.Path {
		case "/recommendation":
			w.Write([]byte(`[{"productId":1,"recommendationId":1,"author":"a","rate":5,"content":"c"},{"productId":1,"recommendationId":2,"author":"b","rate":4,"content":"d"}]`))
		case "/review":
			w.Write([]byte(`[]`))
		}
	}))
	defer srv.Close()

	client := newTestClient()

	recs := NewRecommendationClient(srv.URL, client).ListRecommendations(context.Background(), 1)
	require.Len(t, recs, 2)
	assert.Equal(t, 1, recs[0].RecommendationID)
	assert.Equal(t, 2, recs[1].RecommendationID)

	revs := NewReviewClient(srv.URL, client).ListReviews(context.Background(), 1)
	assert.NotNil(t, revs)
	assert.Empty(t, revs)
}

func TestDependentClients_DegradeToEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/recommendation":
			w.WriteHeader(http.StatusInternalServerError)
		case "/review":
			w.Write([]byte(`null`))
		}
	}))
	defer srv.Close()

	client := newTestClient()

	recs := NewRecommendationClient(srv.URL, client).ListRecommendations(context.Background(), 1)
	assert.NotNil(t, recs)
	assert.Empty(t, recs)

	revs := NewReviewClient(srv.URL, client).ListReviews(context.Background(), 1)
	assert.NotNil(t, revs)
	assert.Empty(t, revs)
}

func TestHealthChecker(t *testing.T) {
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/actuator/health", r.URL.Path)
		w.Write([]byte(`{"status":"UP"}`))
	}))
	defer up.Close()
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()

	client := newTestClient()
	assert.NoError(t, NewHealthChecker("product", up.URL, client).Check(context.Background()))

	h := NewHealthChecker("review", down.URL, client)
	assert.Equal(t, "review", h.Name())
	assert.ErrorContains(t, h.Check(context.Background()), "review health: status 503")
}
