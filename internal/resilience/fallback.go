package resilience

import (
	"fmt"

	"github.com/baechuer/real-time-ressys/services/composite-service/internal/domain"
)

// Fallback synthesizes a degraded product while the circuit is open.
// Ids listed in notFound reproduce a NotFound instead.
type Fallback struct {
	serviceAddress string
	notFound       map[int]struct{}
}

func NewFallback(serviceAddress string, notFoundIDs []int) *Fallback {
	nf := make(map[int]struct{}, len(notFoundIDs))
	for _, id := range notFoundIDs {
		nf[id] = struct{}{}
	}
	return &Fallback{serviceAddress: serviceAddress, notFound: nf}
}

func (f *Fallback) Product(productID, delay, faultPercent int) (*domain.Product, error) {
	if _, ok := f.notFound[productID]; ok {
		return nil, domain.NewNotFound("Product Id: %d not found in fallback cache!", productID)
	}
	return &domain.Product{
		ProductID:      productID,
		Name:           fmt.Sprintf("Fallback product%d", productID),
		Weight:         productID,
		ServiceAddress: f.serviceAddress,
	}, nil
}
