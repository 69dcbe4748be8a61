package domain

import "time"

// Product is the root entity owned by the product service.
type Product struct {
	ProductID      int    `json:"productId"`
	Name           string `json:"name"`
	Weight         int    `json:"weight"`
	ServiceAddress string `json:"serviceAddress,omitempty"`
}

type Recommendation struct {
	ProductID        int    `json:"productId"`
	RecommendationID int    `json:"recommendationId"`
	Author           string `json:"author"`
	Rate             int    `json:"rate"`
	Content          string `json:"content"`
	ServiceAddress   string `json:"serviceAddress,omitempty"`
}

type Review struct {
	ProductID      int    `json:"productId"`
	ReviewID       int    `json:"reviewId"`
	Author         string `json:"author"`
	Subject        string `json:"subject"`
	Content        string `json:"content"`
	ServiceAddress string `json:"serviceAddress,omitempty"`
}

type RecommendationSummary struct {
	RecommendationID int    `json:"recommendationId" validate:"gte=0"`
	Author           string `json:"author"`
	Rate             int    `json:"rate" validate:"gte=0"`
	Content          string `json:"content"`
}

type ReviewSummary struct {
	ReviewID int    `json:"reviewId" validate:"gte=0"`
	Author   string `json:"author"`
	Subject  string `json:"subject"`
	Content  string `json:"content"`
}

// ServiceAddresses records which backend instance answered each part of an aggregate.
type ServiceAddresses struct {
	Cmp string `json:"cmp"`
	Pro string `json:"pro"`
	Rev string `json:"rev"`
	Rec string `json:"rec"`
}

// Aggregate is the composed view of one product. It is built per request and never cached.
type Aggregate struct {
	ProductID        int                     `json:"productId" validate:"gte=1"`
	Name             string                  `json:"name"`
	Weight           int                     `json:"weight"`
	Recommendations  []RecommendationSummary `json:"recommendations" validate:"dive"`
	Reviews          []ReviewSummary         `json:"reviews" validate:"dive"`
	ServiceAddresses *ServiceAddresses       `json:"serviceAddresses,omitempty"`
}

// HTTPErrorInfo is the error body returned to external callers.
type HTTPErrorInfo struct {
	Timestamp  string `json:"timestamp"`
	Path       string `json:"path"`
	HTTPStatus int    `json:"httpStatus"`
	Message    string `json:"message"`
}

func NewHTTPErrorInfo(status int, path, message string) HTTPErrorInfo {
	return HTTPErrorInfo{
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		Path:       path,
		HTTPStatus: status,
		Message:    message,
	}
}

// EventKey is the partition key carried by events about this entity.
func (p Product) EventKey() int { return p.ProductID }

func (r Recommendation) EventKey() int { return r.ProductID }

func (r Review) EventKey() int { return r.ProductID }
