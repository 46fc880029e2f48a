package repository

import "context"

// ReferralGrantRepository records which ledger entries already produced a
// referral grant. RecordGrant returns false when the entry was granted before;
// the unique key makes the check-and-record atomic under concurrency.
type ReferralGrantRepository interface {
	RecordGrant(ctx context.Context, tx Tx, ledgerID string) (bool, error)
}
