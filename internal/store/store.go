// Package store persists catalog items and serializes writes per item.
package store

import (
	"context"

	"catalog-service/internal/model"

	"github.com/google/uuid"
)

// Mutation edits a private copy of an item inside Store.Update. Returning an
// error aborts the update and leaves the stored record unchanged.
type Mutation func(item *model.CatalogItem) error

// Filter narrows List results. Zero values mean "no restriction" except for
// Segment, which is always applied.
type Filter struct {
	Segment      model.Segment
	CategoryIDs  []uint
	FeaturedOnly bool
	Limit        int
}

// Store is durable keyed storage for catalog items.
//
// Update holds an exclusive per-item lock across load, mutate and persist.
// Waiting for the lock is bounded; on expiry the error matches
// model.ErrConflict. Get and List never take item locks.
type Store interface {
	Get(ctx context.Context, id uuid.UUID) (*model.CatalogItem, error)
	Create(ctx context.Context, item *model.CatalogItem) (*model.CatalogItem, error)
	Update(ctx context.Context, id uuid.UUID, mutate Mutation) (*model.CatalogItem, error)
	List(ctx context.Context, filter Filter) ([]model.CatalogItem, error)
}

func (f Filter) matches(item *model.CatalogItem) bool {
	if item.SellerSegment != f.Segment {
		return false
	}
	if f.FeaturedOnly && !item.IsFeatured {
		return false
	}
	if len(f.CategoryIDs) == 0 {
		return true
	}
	if item.CategoryID == nil {
		return false
	}
	for _, id := range f.CategoryIDs {
		if id == *item.CategoryID {
			return true
		}
	}
	return false
}
