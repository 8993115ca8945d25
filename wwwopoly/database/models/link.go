package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Link struct {
	bun.BaseModel `bun:"table:links,alias:l"`

	ID  int64  `bun:"id,pk"`
	URL string `bun:"url,notnull,unique"`

	// Zero means unowned and claimable.
	OwnerID int64 `bun:"owner_id,nullzero"`

	Toll        int64  `bun:"toll,notnull,default:1"`
	Level       int    `bun:"level,notnull,default:1"`
	Category    string `bun:"category"`
	DailyVisits int64  `bun:"daily_visits,notnull,default:0"`

	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

func (l *Link) Owned() bool {
	return l.OwnerID != 0
}
