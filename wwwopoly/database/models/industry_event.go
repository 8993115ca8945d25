package models

import (
	"time"

	"github.com/uptrace/bun"
)

type EventEffect string

const (
	EffectBoost   EventEffect = "boost"
	EffectPenalty EventEffect = "penalty"
)

type IndustryEvent struct {
	bun.BaseModel `bun:"table:industry_events,alias:ie"`

	ID               int64       `bun:"id,pk"`
	Category         string      `bun:"category,notnull"`
	EffectType       EventEffect `bun:"effect_type,notnull"`
	EffectMultiplier float64     `bun:"effect_multiplier,notnull"`
	StartDate        time.Time   `bun:"start_date,notnull"`
	EndDate          time.Time   `bun:"end_date,notnull"`
	IsActive         bool        `bun:"is_active,notnull,default:true"`
	Description      string      `bun:"description"`

	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}
