package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// SellerListing is one seller's offer against a catalog item. Listings are
// embedded in the item and have no identity of their own.
type SellerListing struct {
	SellerID      uint            `json:"seller_id"`
	SellerName    string          `json:"seller_name"`
	SellerAddress string          `json:"seller_address"`
	Price         decimal.Decimal `json:"price"`
	Quantity      int64           `json:"quantity"`
}

// CatalogItem is a product record aggregating stock from one or more sellers.
//
// TotalQuantity always equals the sum of Listings[i].Quantity after a
// successful write, and Listings holds at most one entry per SellerID.
type CatalogItem struct {
	ID            uuid.UUID                          `json:"id" gorm:"type:uuid;primaryKey"`
	Name          string                             `json:"name" gorm:"type:varchar(255);not null"`
	Brand         string                             `json:"brand" gorm:"type:varchar(255)"`
	Description   string                             `json:"description" gorm:"type:text"`
	CategoryID    *uint                              `json:"category_id,omitempty" gorm:"index"`
	Category      *Category                          `json:"category,omitempty" gorm:"foreignKey:CategoryID"`
	Price         decimal.Decimal                    `json:"price" gorm:"type:numeric(12,2);not null"`
	TotalQuantity int64                              `json:"total_quantity" gorm:"not null;default:0"`
	Listings      datatypes.JSONSlice[SellerListing] `json:"listings"`
	SellerSegment Segment                            `json:"seller_segment" gorm:"index;not null"`
	Image         string                             `json:"image"`
	Images        pq.StringArray                     `json:"images" gorm:"type:text[]"`
	IsFeatured    bool                               `json:"is_featured" gorm:"index;default:false"`
	Rating        float64                            `json:"rating" gorm:"default:0"`
	NumReviews    int                                `json:"num_reviews" gorm:"default:0"`
	CreatedAt     time.Time                          `json:"created_at"`
	UpdatedAt     time.Time                          `json:"updated_at"`
}

// FindListing returns the index of the first listing owned by sellerID, or -1.
func (i *CatalogItem) FindListing(sellerID uint) int {
	for idx := range i.Listings {
		if i.Listings[idx].SellerID == sellerID {
			return idx
		}
	}
	return -1
}

// ListedQuantity sums the quantities of all listings.
func (i *CatalogItem) ListedQuantity() int64 {
	var total int64
	for _, l := range i.Listings {
		total += l.Quantity
	}
	return total
}

// Clone returns a deep copy that shares no slices with the receiver.
func (i *CatalogItem) Clone() *CatalogItem {
	out := *i
	if i.Listings != nil {
		out.Listings = append(datatypes.JSONSlice[SellerListing]{}, i.Listings...)
	}
	if i.Images != nil {
		out.Images = append(pq.StringArray{}, i.Images...)
	}
	if i.CategoryID != nil {
		id := *i.CategoryID
		out.CategoryID = &id
	}
	if i.Category != nil {
		c := *i.Category
		out.Category = &c
	}
	return &out
}
