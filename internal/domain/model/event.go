package model

import "time"

type EventOutcome string

const (
	OutcomeSucceeded EventOutcome = "succeeded"
	OutcomeCanceled  EventOutcome = "canceled"
	// OutcomeSubscriptionCanceled is emitted by subscription-platform providers
	// when a recurring subscription is cancelled on their side. It does not
	// target a ledger row; the user's access gets a short grace period.
	OutcomeSubscriptionCanceled EventOutcome = "subscription_canceled"
)

// EventMeta is the metadata the purchase flow attached when initiating the
// payment and got round-tripped through the provider. It is attacker-reachable
// input and is validated defensively, never trusted.
type EventMeta struct {
	UserID      int64
	Months      int
	PromoCodeID *int64
	AutoRenew   bool // provider-initiated renewal charge, no local pre-image
}

// ProviderEvent is the canonical, provider-independent form of one inbound
// notification. Transient; only the ledger row it resolves to is persisted.
type ProviderEvent struct {
	Provider          Provider
	ProviderPaymentID string
	LedgerID          string // may be empty for provider-initiated flows
	Outcome           EventOutcome
	Amount            int64 // minor units
	Currency          string
	Meta              EventMeta
	RawPayload        []byte // kept for forensic logging only
}

// ActivationOutcome is the result of processing one provider event end to end.
type ActivationOutcome struct {
	LedgerID    string
	UserID      int64
	Provider    Provider
	Amount      int64
	Currency    string
	Months      int
	Duplicate   bool // echo of an already-terminal ledger entry
	Canceled    bool
	UserMissing bool

	EndDate      time.Time // base activation end date
	FinalEndDate time.Time // after bonus chain
	AccessLink   string

	AppliedPromoDays    int
	AppliedReferralDays int
	PromoErr            error // best-effort step failures, surfaced but non-fatal
	ReferralErr         error
}
