// Package events publishes catalog changes to downstream consumers.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Type string

const (
	ItemCreated       Type = "catalog.item.created"
	ListingReconciled Type = "catalog.listing.reconciled"
)

// Event describes one committed change to a catalog item's ledger.
type Event struct {
	Type             Type            `json:"type"`
	ItemID           uuid.UUID       `json:"item_id"`
	SellerID         uint            `json:"seller_id"`
	NewSeller        bool            `json:"new_seller"`
	PreviousQuantity int64           `json:"previous_quantity"`
	Quantity         int64           `json:"quantity"`
	Delta            int64           `json:"delta"`
	TotalQuantity    int64           `json:"total_quantity"`
	Price            decimal.Decimal `json:"price"`
	ItemPrice        decimal.Decimal `json:"item_price"`
	OccurredAt       time.Time       `json:"occurred_at"`
}

// Publisher delivers events. Publication happens after the write has been
// committed, so a failure never undoes the write.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// NopPublisher drops every event. It is used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
func (NopPublisher) Close() error                         { return nil }
