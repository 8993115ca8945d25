package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Listing is a fixed-price marketplace offer for an owned link.
type Listing struct {
	bun.BaseModel `bun:"table:listings,alias:ml"`

	ID       int64 `bun:"id,pk"`
	LinkID   int64 `bun:"link_id,notnull"`
	SellerID int64 `bun:"seller_id,notnull"`
	Price    int64 `bun:"price,notnull"`
	IsSold   bool  `bun:"is_sold,notnull,default:false"`

	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

// TradeRecord is written when a listing is purchased and carries the one-shot
// rating flag for the buyer's seller review.
type TradeRecord struct {
	bun.BaseModel `bun:"table:trade_records,alias:tr"`

	ID        int64 `bun:"id,pk"`
	BuyerID   int64 `bun:"buyer_id,notnull"`
	SellerID  int64 `bun:"seller_id,notnull"`
	ListingID int64 `bun:"listing_id,notnull"`
	Rated     bool  `bun:"rated,notnull,default:false"`

	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}
