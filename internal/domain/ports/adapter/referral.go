package adapter

import (
	"context"
	"time"
)

// ReferralBonus reports what a referral application did. RefereeNewEndDate is
// nil when no bonus applied to the paying user.
type ReferralBonus struct {
	RefereeBonusDays  int
	RefereeNewEndDate *time.Time
	ReferrerBonusDays int
}

// ReferralService is a black-box collaborator. Contract: given a paid user,
// the purchased months and the ledger entry id, it decides whether referral
// policy applies and, if so, extends the referee's current period and,
// independently, the referrer's. It manages its own transactional scope and
// is idempotent per ledger entry id. Failures are best-effort for callers:
// they never roll back the base activation.
type ReferralService interface {
	ApplyForPayment(ctx context.Context, userID int64, months int, ledgerID string) (*ReferralBonus, error)
}
