package model

import "time"

// Subscription is one access period for a user. At most one row per user is
// current (is_active and end_date in the future); history is retained.
type Subscription struct {
	ID                    string // UUID
	UserID                int64
	PanelSubscriptionUUID *string    // remote access-panel identifier, if known
	StartDate             *time.Time // nil when not knowable (panel-imported rows)
	EndDate               time.Time
	DurationMonths        int
	IsActive              bool
	Provider              Provider
	AutoRenewEnabled      bool
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Current reports whether the period grants access at the given instant.
func (s *Subscription) Current(now time.Time) bool {
	return s.IsActive && s.EndDate.After(now)
}
