package downstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/baechuer/real-time-ressys/services/composite-service/internal/domain"
	"github.com/baechuer/real-time-ressys/services/composite-service/internal/logger"
	"github.com/baechuer/real-time-ressys/services/composite-service/internal/metrics"
)

const (
	CapabilityProduct        = "product"
	CapabilityRecommendation = "recommendation"
	CapabilityReview         = "review"
)

// decodeError maps a non-2xx response onto the domain taxonomy.
// The backing services answer with {timestamp, path, httpStatus, message}.
func decodeError(resp *http.Response) error {
	msg := fmt.Sprintf("unexpected status: %d", resp.StatusCode)
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var info domain.HTTPErrorInfo
	if err := json.Unmarshal(body, &info); err == nil && info.Message != "" {
		msg = info.Message
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return domain.NewNotFound("%s", msg)
	case resp.StatusCode == http.StatusUnprocessableEntity:
		return domain.NewInvalidInput("%s", msg)
	case resp.StatusCode >= 500:
		return domain.NewUnavailable(msg, nil)
	default:
		return domain.NewUnknown(msg, nil)
	}
}

func decodeJSON[T any](resp *http.Response, out *T) error {
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return domain.NewUnknown("decode downstream response", err)
	}
	return nil
}

type ProductClient struct {
	BaseURL string
	client  *Client
}

func NewProductClient(baseURL string, c *Client) *ProductClient {
	return &ProductClient{BaseURL: strings.TrimRight(baseURL, "/"), client: c}
}

// GetProduct fetches the root entity. delay and faultPercent are diagnostic
// hints forwarded verbatim to the product service; zero values are omitted.
func (c *ProductClient) GetProduct(ctx context.Context, productID, delay, faultPercent int) (*domain.Product, error) {
	u := fmt.Sprintf("%s/product/%d", c.BaseURL, productID)
	q := url.Values{}
	if delay != 0 {
		q.Set("delay", strconv.Itoa(delay))
	}
	if faultPercent != 0 {
		q.Set("faultPercent", strconv.Itoa(faultPercent))
	}
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	logger.Ctx(ctx).Debug().Str("url", u).Msg("calling getProduct")

	resp, err := c.client.Get(ctx, u, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}

	var p domain.Product
	if err := decodeJSON(resp, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

type RecommendationClient struct {
	BaseURL string
	client  *Client
}

func NewRecommendationClient(baseURL string, c *Client) *RecommendationClient {
	return &RecommendationClient{BaseURL: strings.TrimRight(baseURL, "/"), client: c}
}

// ListRecommendations is best-effort: any failure yields an empty list.
func (c *RecommendationClient) ListRecommendations(ctx context.Context, productID int) []domain.Recommendation {
	u := fmt.Sprintf("%s/recommendation?productId=%d", c.BaseURL, productID)
	return listDependents[domain.Recommendation](ctx, c.client, CapabilityRecommendation, u)
}

type ReviewClient struct {
	BaseURL string
	client  *Client
}

func NewReviewClient(baseURL string, c *Client) *ReviewClient {
	return &ReviewClient{BaseURL: strings.TrimRight(baseURL, "/"), client: c}
}

// ListReviews is best-effort: any failure yields an empty list.
func (c *ReviewClient) ListReviews(ctx context.Context, productID int) []domain.Review {
	u := fmt.Sprintf("%s/review?productId=%d", c.BaseURL, productID)
	return listDependents[domain.Review](ctx, c.client, CapabilityReview, u)
}

func listDependents[T any](ctx context.Context, c *Client, capability, u string) []T {
	items, err := fetchList[T](ctx, c, u)
	if err != nil {
		metrics.RecordDependentDegraded(capability)
		logger.Ctx(ctx).Warn().
			Err(err).
			Str("capability", capability).
			Msg("dependent list unavailable, degrading to empty")
		return []T{}
	}
	return items
}

func fetchList[T any](ctx context.Context, c *Client, u string) ([]T, error) {
	resp, err := c.Get(ctx, u, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}

	var items []T
	if err := decodeJSON(resp, &items); err != nil {
		return nil, err
	}
	if items == nil {
		items = make([]T, 0)
	}
	return items, nil
}
