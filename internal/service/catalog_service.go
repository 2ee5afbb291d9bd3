// Package service holds the catalog's business operations: item creation,
// listing reconciliation and the read-side queries.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"catalog-service/internal/events"
	"catalog-service/internal/model"
	"catalog-service/internal/store"
	"catalog-service/pkg/logger"
	"catalog-service/prometheus"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "catalog-service/internal/service"

// CreateItemRequest describes a new catalog item and its creator's first offer.
type CreateItemRequest struct {
	Name        string
	Brand       string
	Description string
	CategoryID  *uint
	IsFeatured  bool
	Rating      float64
	NumReviews  int
	ImageURL    string
	Price       decimal.Decimal
	Quantity    int64
}

// ReconcileRequest is a seller's desired price and quantity for an item.
// Nil metadata fields are left untouched; set ones are applied verbatim.
type ReconcileRequest struct {
	ItemID      uuid.UUID
	Name        *string
	Brand       *string
	Description *string
	CategoryID  *uint
	IsFeatured  *bool
	ImageURL    *string
	Price       decimal.Decimal
	Quantity    int64
}

func (r ReconcileRequest) applyMetadata(item *model.CatalogItem) {
	if r.Name != nil {
		item.Name = *r.Name
	}
	if r.Brand != nil {
		item.Brand = *r.Brand
	}
	if r.Description != nil {
		item.Description = *r.Description
	}
	if r.CategoryID != nil {
		id := *r.CategoryID
		item.CategoryID = &id
	}
	if r.IsFeatured != nil {
		item.IsFeatured = *r.IsFeatured
	}
	if r.ImageURL != nil {
		item.Image = *r.ImageURL
	}
}

// CatalogService coordinates the item store, the reconciliation algorithm and
// event publication. It performs no retries: a failed call can be repeated
// as a whole because every attempt starts from a fresh load.
type CatalogService struct {
	store       store.Store
	publisher   events.Publisher
	pricePolicy PricePolicy
	tracer      trace.Tracer
	now         func() time.Time
}

type Option func(*CatalogService)

func WithPublisher(p events.Publisher) Option {
	return func(s *CatalogService) { s.publisher = p }
}

func WithPricePolicy(p PricePolicy) Option {
	return func(s *CatalogService) { s.pricePolicy = p }
}

func NewCatalogService(st store.Store, opts ...Option) *CatalogService {
	s := &CatalogService{
		store:       st,
		publisher:   events.NopPublisher{},
		pricePolicy: PriceExistingSeller,
		tracer:      otel.Tracer(tracerName),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateItem stores a new item owned by the actor's segment, with a single
// listing for the actor.
func (s *CatalogService) CreateItem(ctx context.Context, actor model.Actor, req CreateItemRequest) (*model.CatalogItem, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.create", trace.WithAttributes(
		attribute.Int64("seller.id", int64(actor.ID)),
		attribute.String("seller.segment", actor.Segment().String()),
	))
	defer span.End()
	prometheus.RecordCatalogOperation("create")

	if err := validateOffer(req.Price, req.Quantity); err != nil {
		recordSpanError(span, err)
		return nil, err
	}

	item := &model.CatalogItem{
		Name:          req.Name,
		Brand:         req.Brand,
		Description:   req.Description,
		CategoryID:    req.CategoryID,
		Price:         req.Price,
		TotalQuantity: req.Quantity,
		SellerSegment: actor.Segment(),
		Image:         req.ImageURL,
		IsFeatured:    req.IsFeatured,
		Rating:        req.Rating,
		NumReviews:    req.NumReviews,
		Listings: []model.SellerListing{{
			SellerID:      actor.ID,
			SellerName:    actor.Name,
			SellerAddress: actor.Address,
			Price:         req.Price,
			Quantity:      req.Quantity,
		}},
	}

	created, err := s.store.Create(ctx, item)
	if err != nil {
		err = normalize(err)
		recordSpanError(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.String("item.id", created.ID.String()))

	logger.FromCtx(ctx).Info("Catalog item created",
		zap.String("item_id", created.ID.String()),
		zap.Uint("seller_id", actor.ID),
		zap.Int64("total_quantity", created.TotalQuantity),
		zap.Stringer("segment", created.SellerSegment))
	prometheus.UpdateItemInventory(created.ID.String(), created.SellerSegment.String(), float64(created.TotalQuantity))

	s.publish(ctx, events.Event{
		Type:          events.ItemCreated,
		ItemID:        created.ID,
		SellerID:      actor.ID,
		NewSeller:     true,
		Quantity:      req.Quantity,
		Delta:         req.Quantity,
		TotalQuantity: created.TotalQuantity,
		Price:         req.Price,
		ItemPrice:     created.Price,
		OccurredAt:    s.now().UTC(),
	})
	return created, nil
}

// Reconcile merges the actor's desired price and quantity into the item's
// listing ledger under the item's write lock and returns the stored result.
func (s *CatalogService) Reconcile(ctx context.Context, actor model.Actor, req ReconcileRequest) (*model.CatalogItem, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.reconcile", trace.WithAttributes(
		attribute.String("item.id", req.ItemID.String()),
		attribute.Int64("seller.id", int64(actor.ID)),
		attribute.Int64("listing.quantity", req.Quantity),
	))
	defer span.End()
	prometheus.RecordCatalogOperation("reconcile")

	log := logger.FromCtx(ctx).With(
		zap.String("item_id", req.ItemID.String()),
		zap.Uint("seller_id", actor.ID))

	if err := validateOffer(req.Price, req.Quantity); err != nil {
		recordSpanError(span, err)
		prometheus.RecordReconcile("none", resultLabel(err))
		return nil, err
	}

	var outcome mergeOutcome
	item, err := s.store.Update(ctx, req.ItemID, func(item *model.CatalogItem) error {
		if item.SellerSegment != actor.Segment() {
			return fmt.Errorf("%w: item is %s, caller is %s",
				model.ErrSegmentMismatch, item.SellerSegment, actor.Segment())
		}
		if _, err := projectedTotal(item, actor.ID, req.Quantity); err != nil {
			return err
		}
		req.applyMetadata(item)
		outcome = mergeListing(item, actor, req.Price, req.Quantity, s.pricePolicy)
		if listed := item.ListedQuantity(); listed != item.TotalQuantity {
			log.Warn("Aggregate quantity differs from listed quantity",
				zap.Int64("total_quantity", item.TotalQuantity),
				zap.Int64("listed_quantity", listed))
		}
		return nil
	})
	if err != nil {
		err = normalize(err)
		recordSpanError(span, err)
		prometheus.RecordReconcile("none", resultLabel(err))
		log.Warn("Reconciliation rejected", zap.Error(err))
		return nil, err
	}

	span.SetAttributes(
		attribute.String("listing.branch", outcome.branch()),
		attribute.Int64("listing.delta", outcome.Delta),
		attribute.Int64("item.total_quantity", item.TotalQuantity),
	)
	prometheus.RecordReconcile(outcome.branch(), resultLabel(nil))
	prometheus.UpdateItemInventory(item.ID.String(), item.SellerSegment.String(), float64(item.TotalQuantity))
	log.Info("Listing reconciled",
		zap.String("branch", outcome.branch()),
		zap.Int64("delta", outcome.Delta),
		zap.Int64("total_quantity", item.TotalQuantity),
		zap.Bool("price_lowered", outcome.PriceLowered))

	s.publish(ctx, events.Event{
		Type:             events.ListingReconciled,
		ItemID:           item.ID,
		SellerID:         actor.ID,
		NewSeller:        outcome.NewSeller,
		PreviousQuantity: outcome.PreviousQuantity,
		Quantity:         req.Quantity,
		Delta:            outcome.Delta,
		TotalQuantity:    item.TotalQuantity,
		Price:            req.Price,
		ItemPrice:        item.Price,
		OccurredAt:       s.now().UTC(),
	})
	return item, nil
}

// ReplaceImages swaps the item's gallery. The ledger is not touched.
func (s *CatalogService) ReplaceImages(ctx context.Context, actor model.Actor, id uuid.UUID, urls []string) (*model.CatalogItem, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.replace_images", trace.WithAttributes(
		attribute.String("item.id", id.String()),
		attribute.Int("images.count", len(urls)),
	))
	defer span.End()
	prometheus.RecordCatalogOperation("replace_images")

	item, err := s.store.Update(ctx, id, func(item *model.CatalogItem) error {
		if item.SellerSegment != actor.Segment() {
			return model.ErrSegmentMismatch
		}
		item.Images = append([]string(nil), urls...)
		return nil
	})
	if err != nil {
		err = normalize(err)
		recordSpanError(span, err)
		return nil, err
	}
	return item, nil
}

func (s *CatalogService) publish(ctx context.Context, event events.Event) {
	if err := s.publisher.Publish(ctx, event); err != nil {
		prometheus.RecordEventPublishFailure(string(event.Type))
		logger.FromCtx(ctx).Error("Failed to publish catalog event",
			zap.String("event_type", string(event.Type)),
			zap.String("item_id", event.ItemID.String()),
			zap.Error(err))
	}
}

func validateOffer(price decimal.Decimal, quantity int64) error {
	if quantity < 0 {
		return fmt.Errorf("%w: got %d", model.ErrInvalidQuantity, quantity)
	}
	if price.IsNegative() {
		return fmt.Errorf("%w: got %s", model.ErrInvalidPrice, price)
	}
	return nil
}

// normalize keeps the catalog taxonomy intact; anything unexpected from the
// store is reported as a retryable conflict.
func normalize(err error) error {
	switch {
	case errors.Is(err, model.ErrItemNotFound),
		errors.Is(err, model.ErrSegmentMismatch),
		errors.Is(err, model.ErrInvalidQuantity),
		errors.Is(err, model.ErrInvalidPrice),
		errors.Is(err, model.ErrConflict):
		return err
	default:
		return errors.Join(model.ErrConflict, err)
	}
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, model.ErrItemNotFound):
		return "not_found"
	case errors.Is(err, model.ErrSegmentMismatch):
		return "forbidden"
	case errors.Is(err, model.ErrInvalidQuantity), errors.Is(err, model.ErrInvalidPrice):
		return "invalid"
	default:
		return "conflict"
	}
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
