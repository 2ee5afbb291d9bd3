package service

import (
	"math"
	"testing"

	"catalog-service/internal/model"

	"github.com/stretchr/testify/assert"
)

func TestMergeListingUsesFirstMatchOnly(t *testing.T) {
	item := &model.CatalogItem{
		Price:         price(100),
		TotalQuantity: 9,
		Listings: []model.SellerListing{
			{SellerID: 1, Quantity: 2, Price: price(100)},
			{SellerID: 2, Quantity: 3, Price: price(100)},
			{SellerID: 2, Quantity: 4, Price: price(100)},
		},
	}

	out := mergeListing(item, model.Actor{ID: 2}, price(100), 10, PriceExistingSeller)

	assert.False(t, out.NewSeller)
	assert.Equal(t, int64(7), out.Delta)
	assert.Equal(t, int64(10), item.Listings[1].Quantity)
	assert.Equal(t, int64(4), item.Listings[2].Quantity)
	assert.Equal(t, int64(16), item.TotalQuantity)
	assert.Len(t, item.Listings, 3)
}

func TestMergeListingNewSellerAppends(t *testing.T) {
	item := &model.CatalogItem{Price: price(100), TotalQuantity: 2, Listings: []model.SellerListing{{SellerID: 1, Quantity: 2}}}

	out := mergeListing(item, model.Actor{ID: 5, Name: "E", Address: "Addr"}, price(50), 3, PriceExistingSeller)

	assert.True(t, out.NewSeller)
	assert.False(t, out.PriceLowered)
	assert.Equal(t, "new_seller", out.branch())
	assert.Equal(t, int64(5), item.TotalQuantity)
	assert.Equal(t, model.SellerListing{SellerID: 5, SellerName: "E", SellerAddress: "Addr", Price: price(50), Quantity: 3}, item.Listings[1])
	assert.True(t, item.Price.Equal(price(100)))
}

func TestProjectedTotal(t *testing.T) {
	item := &model.CatalogItem{
		TotalQuantity: math.MaxInt64 - 5,
		Listings: []model.SellerListing{
			{SellerID: 1, Quantity: math.MaxInt64 - 5},
		},
	}

	total, err := projectedTotal(item, 1, math.MaxInt64)
	assert.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), total)

	_, err = projectedTotal(item, 2, 6)
	assert.ErrorIs(t, err, model.ErrInvalidQuantity)

	total, err = projectedTotal(item, 2, 5)
	assert.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), total)
}
