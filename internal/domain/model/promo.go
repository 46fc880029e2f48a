package model

import "time"

// PromoCode grants bonus days on top of a paid activation. Each code carries
// a maximum-activation counter consumed atomically; exhausted codes fail closed.
type PromoCode struct {
	ID                 int64
	Code               string
	BonusDays          int
	MaxActivations     int
	CurrentActivations int
	ValidUntil         *time.Time
	IsActive           bool
	CreatedAt          time.Time
}

// Redeemable reports whether the code can still be consumed at the given
// instant. The authoritative check is the repository's guarded consume; this
// is the cheap pre-check used at purchase initiation.
func (c *PromoCode) Redeemable(now time.Time) bool {
	if !c.IsActive {
		return false
	}
	if c.ValidUntil != nil && c.ValidUntil.Before(now) {
		return false
	}
	return c.CurrentActivations < c.MaxActivations
}
