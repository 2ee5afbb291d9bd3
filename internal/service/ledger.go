package service

import (
	"fmt"
	"math"

	"catalog-service/internal/model"

	"github.com/shopspring/decimal"
)

// PricePolicy decides when an offer lowers the item-level price.
type PricePolicy string

const (
	// PriceExistingSeller lowers the item price only when a seller who
	// already has a listing offers less. New sellers never move it.
	PriceExistingSeller PricePolicy = "existing_seller"
	// PriceLowestAlways lowers the item price whenever any offer is lower.
	PriceLowestAlways PricePolicy = "lowest_always"
)

const (
	branchExistingSeller = "existing_seller"
	branchNewSeller      = "new_seller"
)

// mergeOutcome reports what a ledger merge did.
type mergeOutcome struct {
	NewSeller        bool
	PreviousQuantity int64
	Delta            int64
	PriceLowered     bool
}

func (o mergeOutcome) branch() string {
	if o.NewSeller {
		return branchNewSeller
	}
	return branchExistingSeller
}

// projectedTotal returns the TotalQuantity the item would hold after
// mergeListing, or ErrInvalidQuantity when it does not fit in an int64.
func projectedTotal(item *model.CatalogItem, sellerID uint, quantity int64) (int64, error) {
	delta := quantity
	if idx := item.FindListing(sellerID); idx >= 0 {
		delta = quantity - item.Listings[idx].Quantity
	}
	if (delta > 0 && item.TotalQuantity > math.MaxInt64-delta) ||
		(delta < 0 && item.TotalQuantity < math.MinInt64-delta) {
		return 0, fmt.Errorf("%w: total quantity %d cannot absorb %d", model.ErrInvalidQuantity, item.TotalQuantity, delta)
	}
	return item.TotalQuantity + delta, nil
}

// mergeListing folds one seller's offer into the item's ledger and keeps
// TotalQuantity equal to the sum of listing quantities. Exactly one of the
// two branches runs: the first listing owned by the seller is overwritten,
// or a new listing is appended.
func mergeListing(item *model.CatalogItem, seller model.Actor, price decimal.Decimal, quantity int64, policy PricePolicy) mergeOutcome {
	if idx := item.FindListing(seller.ID); idx >= 0 {
		listing := &item.Listings[idx]
		out := mergeOutcome{
			PreviousQuantity: listing.Quantity,
			Delta:            quantity - listing.Quantity,
		}
		item.TotalQuantity += out.Delta
		listing.Price = price
		listing.Quantity = quantity
		listing.SellerName = seller.Name
		listing.SellerAddress = seller.Address

		if price.LessThan(item.Price) {
			item.Price = price
			out.PriceLowered = true
		}
		return out
	}

	item.Listings = append(item.Listings, model.SellerListing{
		SellerID:      seller.ID,
		SellerName:    seller.Name,
		SellerAddress: seller.Address,
		Price:         price,
		Quantity:      quantity,
	})
	item.TotalQuantity += quantity

	out := mergeOutcome{NewSeller: true, Delta: quantity}
	if policy == PriceLowestAlways && price.LessThan(item.Price) {
		item.Price = price
		out.PriceLowered = true
	}
	return out
}
