package composite

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/baechuer/real-time-ressys/services/composite-service/internal/domain"
	"github.com/baechuer/real-time-ressys/services/composite-service/internal/events"
	"github.com/baechuer/real-time-ressys/services/composite-service/internal/logger"
	"github.com/baechuer/real-time-ressys/services/composite-service/internal/tracing"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
)

type ProductClient interface {
	GetProduct(ctx context.Context, productID, delay, faultPercent int) (*domain.Product, error)
}

// RecommendationClient and ReviewClient are best-effort: failures come back
// as empty lists.
type RecommendationClient interface {
	ListRecommendations(ctx context.Context, productID int) []domain.Recommendation
}

type ReviewClient interface {
	ListReviews(ctx context.Context, productID int) []domain.Review
}

type Publisher interface {
	Publish(ctx context.Context, binding string, e events.Event) error
}

// Service composes product aggregates on reads and fans writes out as events.
type Service struct {
	products        ProductClient
	recommendations RecommendationClient
	reviews         ReviewClient
	publisher       Publisher
	serviceAddress  string
	validate        *validator.Validate
}

func NewService(p ProductClient, rec RecommendationClient, rev ReviewClient, pub Publisher, serviceAddress string) *Service {
	return &Service{
		products:        p,
		recommendations: rec,
		reviews:         rev,
		publisher:       pub,
		serviceAddress:  serviceAddress,
		validate:        validator.New(validator.WithRequiredStructEnabled()),
	}
}

// GetAggregate fetches the product and both dependent lists concurrently.
// A product failure cancels the dependent calls and is returned unchanged.
func (s *Service) GetAggregate(ctx context.Context, productID, delay, faultPercent int) (*domain.Aggregate, error) {
	if err := domain.ValidateProductID(productID); err != nil {
		return nil, err
	}

	ctx, span := tracing.StartProductSpan(ctx, "composite.GetAggregate", productID)
	defer span.End()

	logger.Ctx(ctx).Debug().Int("product_id", productID).Msg("getCompositeProduct")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg      sync.WaitGroup
		product *domain.Product
		prodErr error
		recs    []domain.Recommendation
		reviews []domain.Review
	)
	wg.Add(3)

	go func() {
		defer wg.Done()
		product, prodErr = s.products.GetProduct(ctx, productID, delay, faultPercent)
		if prodErr != nil {
			cancel()
		}
	}()

	go func() {
		defer wg.Done()
		recs = s.recommendations.ListRecommendations(ctx, productID)
	}()

	go func() {
		defer wg.Done()
		reviews = s.reviews.ListReviews(ctx, productID)
	}()

	wg.Wait()

	if prodErr != nil {
		span.RecordError(prodErr)
		span.SetStatus(codes.Error, "product fetch failed")
		return nil, prodErr
	}

	return s.buildAggregate(product, recs, reviews), nil
}

func (s *Service) buildAggregate(p *domain.Product, recs []domain.Recommendation, reviews []domain.Review) *domain.Aggregate {
	recSummaries := make([]domain.RecommendationSummary, 0, len(recs))
	for _, r := range recs {
		recSummaries = append(recSummaries, domain.RecommendationSummary{
			RecommendationID: r.RecommendationID,
			Author:           r.Author,
			Rate:             r.Rate,
			Content:          r.Content,
		})
	}

	reviewSummaries := make([]domain.ReviewSummary, 0, len(reviews))
	for _, r := range reviews {
		reviewSummaries = append(reviewSummaries, domain.ReviewSummary{
			ReviewID: r.ReviewID,
			Author:   r.Author,
			Subject:  r.Subject,
			Content:  r.Content,
		})
	}

	addrs := &domain.ServiceAddresses{
		Cmp: s.serviceAddress,
		Pro: p.ServiceAddress,
	}
	if len(reviews) > 0 {
		addrs.Rev = reviews[0].ServiceAddress
	}
	if len(recs) > 0 {
		addrs.Rec = recs[0].ServiceAddress
	}

	return &domain.Aggregate{
		ProductID:        p.ProductID,
		Name:             p.Name,
		Weight:           p.Weight,
		Recommendations:  recSummaries,
		Reviews:          reviewSummaries,
		ServiceAddresses: addrs,
	}
}

type publication struct {
	binding string
	event   events.Event
}

// CreateAggregate publishes one product CREATE plus one CREATE per
// recommendation and review. It returns once every event was handed to the
// publisher; any single failure fails the whole write.
func (s *Service) CreateAggregate(ctx context.Context, agg domain.Aggregate) error {
	if err := s.validateAggregate(agg); err != nil {
		return err
	}

	ctx, span := tracing.StartProductSpan(ctx, "composite.CreateAggregate", agg.ProductID)
	defer span.End()

	pubs := []publication{{
		binding: events.BindingProducts,
		event: events.NewCreate(domain.Product{
			ProductID: agg.ProductID,
			Name:      agg.Name,
			Weight:    agg.Weight,
		}),
	}}
	for _, r := range agg.Recommendations {
		pubs = append(pubs, publication{
			binding: events.BindingRecommendations,
			event: events.NewCreate(domain.Recommendation{
				ProductID:        agg.ProductID,
				RecommendationID: r.RecommendationID,
				Author:           r.Author,
				Rate:             r.Rate,
				Content:          r.Content,
			}),
		})
	}
	for _, r := range agg.Reviews {
		pubs = append(pubs, publication{
			binding: events.BindingReviews,
			event: events.NewCreate(domain.Review{
				ProductID: agg.ProductID,
				ReviewID:  r.ReviewID,
				Author:    r.Author,
				Subject:   r.Subject,
				Content:   r.Content,
			}),
		})
	}

	if err := s.publishAll(ctx, pubs); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "publish failed")
		logger.Ctx(ctx).Warn().Err(err).Int("product_id", agg.ProductID).Msg("createCompositeProduct failed")
		return err
	}

	logger.Ctx(ctx).Info().
		Int("product_id", agg.ProductID).
		Int("events", len(pubs)).
		Msg("createCompositeProduct: composite entities published")
	return nil
}

// DeleteAggregate publishes one DELETE per capability. Repeating it is not an
// error here; consumers no-op on missing data.
func (s *Service) DeleteAggregate(ctx context.Context, productID int) error {
	if err := domain.ValidateProductID(productID); err != nil {
		return err
	}

	ctx, span := tracing.StartProductSpan(ctx, "composite.DeleteAggregate", productID)
	defer span.End()

	pubs := []publication{
		{binding: events.BindingProducts, event: events.NewDelete[domain.Product](productID)},
		{binding: events.BindingRecommendations, event: events.NewDelete[domain.Recommendation](productID)},
		{binding: events.BindingReviews, event: events.NewDelete[domain.Review](productID)},
	}

	if err := s.publishAll(ctx, pubs); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "publish failed")
		logger.Ctx(ctx).Warn().Err(err).Int("product_id", productID).Msg("deleteCompositeProduct failed")
		return err
	}

	logger.Ctx(ctx).Info().Int("product_id", productID).Msg("deleteCompositeProduct: composite entities deleted")
	return nil
}

func (s *Service) publishAll(ctx context.Context, pubs []publication) error {
	var g errgroup.Group
	for _, p := range pubs {
		g.Go(func() error {
			return s.publisher.Publish(ctx, p.binding, p.event)
		})
	}
	return g.Wait()
}

func (s *Service) validateAggregate(agg domain.Aggregate) error {
	if err := domain.ValidateProductID(agg.ProductID); err != nil {
		return err
	}
	if err := s.validate.Struct(agg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
			}
			return domain.NewInvalidInput("Invalid aggregate: %s", strings.Join(fields, ", "))
		}
		return domain.NewInvalidInput("Invalid aggregate: %v", err)
	}
	return nil
}
