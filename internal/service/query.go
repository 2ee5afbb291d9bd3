package service

import (
	"context"

	"catalog-service/internal/model"
	"catalog-service/internal/store"
	"catalog-service/prometheus"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// View selects which side of the market a listing query reads.
type View int

const (
	// ViewMarket shows the goods offered by the opposite trading side:
	// customers browse retail items, retailers browse customer-segment items.
	ViewMarket View = iota
	// ViewOwnSegment shows items of the caller's own segment, i.e. the items
	// the caller may list stock against.
	ViewOwnSegment
)

type ListQuery struct {
	View        View
	CategoryIDs []uint
}

func (v View) segmentFor(actor model.Actor) model.Segment {
	if v == ViewOwnSegment {
		return actor.Segment()
	}
	return actor.Segment().Opposite()
}

// GetItem returns one item with its category joined.
func (s *CatalogService) GetItem(ctx context.Context, id uuid.UUID) (*model.CatalogItem, error) {
	prometheus.RecordCatalogOperation("get")
	item, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, normalize(err)
	}
	return item, nil
}

// ListItems returns the items visible to the actor in the requested view.
// Reads take no locks and may trail concurrent writes.
func (s *CatalogService) ListItems(ctx context.Context, actor model.Actor, q ListQuery) ([]model.CatalogItem, error) {
	segment := q.View.segmentFor(actor)
	ctx, span := s.tracer.Start(ctx, "catalog.list", trace.WithAttributes(
		attribute.String("catalog.segment", segment.String()),
		attribute.Int("catalog.category_filter", len(q.CategoryIDs)),
	))
	defer span.End()
	prometheus.RecordCatalogOperation("list")

	items, err := s.store.List(ctx, store.Filter{Segment: segment, CategoryIDs: q.CategoryIDs})
	if err != nil {
		err = normalize(err)
		recordSpanError(span, err)
		return nil, err
	}
	return items, nil
}

// FeaturedItems returns up to count featured items of the actor's own
// segment; count <= 0 means no limit.
func (s *CatalogService) FeaturedItems(ctx context.Context, actor model.Actor, count int) ([]model.CatalogItem, error) {
	prometheus.RecordCatalogOperation("featured")
	items, err := s.store.List(ctx, store.Filter{
		Segment:      actor.Segment(),
		FeaturedOnly: true,
		Limit:        count,
	})
	if err != nil {
		return nil, normalize(err)
	}
	return items, nil
}
