package model

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

type Provider string

const (
	ProviderYooKassa  Provider = "yookassa"
	ProviderCryptoPay Provider = "cryptopay"
	ProviderStars     Provider = "telegram_stars"
	ProviderTribute   Provider = "tribute"
	ProviderManual    Provider = "phone_transfer"
)

type PaymentStatus string

const (
	PaymentStatusCreated           PaymentStatus = "created"           // ledger row exists, provider not yet contacted
	PaymentStatusAwaitingProvider  PaymentStatus = "awaiting_provider" // provider payment requested; waiting for notification
	PaymentStatusSucceeded         PaymentStatus = "succeeded"
	PaymentStatusCanceled          PaymentStatus = "canceled"
	PaymentStatusFailedCreation    PaymentStatus = "failed_creation"
	PaymentStatusFailedMetadata    PaymentStatus = "failed_metadata"
	PaymentStatusFailedUserMissing PaymentStatus = "failed_user_missing"
)

// Terminal reports whether the status may never transition again.
// Any provider notification for a terminal row is an echo, not an error.
func (s PaymentStatus) Terminal() bool {
	switch s {
	case PaymentStatusSucceeded, PaymentStatusCanceled,
		PaymentStatusFailedCreation, PaymentStatusFailedMetadata, PaymentStatusFailedUserMissing:
		return true
	}
	return false
}

// Payment is one ledger entry: the durable record of a single payment attempt.
// Rows are never deleted; they are the audit trail.
type Payment struct {
	ID                string // ULID, monotonic, assigned locally at creation
	UserID            int64  // Telegram user id
	Amount            int64  // minor units (kopecks/cents), to avoid float errors
	Currency          string
	Provider          Provider
	ProviderPaymentID *string // assigned by the provider; unique once set
	Status            PaymentStatus
	Months            int // billing period purchased
	PromoCodeID       *int64
	Description       string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewLedgerID returns a new monotonic ledger id.
func NewLedgerID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}
