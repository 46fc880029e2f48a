package provider

import (
	"errors"
	"fmt"
	"strings"

	"github.com/zerodata731/remnawave-tg-shop-sub000/internal/domain/model"
)

// Sentinel errors the webhook handler maps to HTTP responses.
var (
	// ErrAuthenticationFailed: signature/IP check failed. 403, no processing.
	ErrAuthenticationFailed = errors.New("webhook authentication failed")
	// ErrMalformedPayload: body is not parseable at all. 400.
	ErrMalformedPayload = errors.New("malformed webhook payload")
	// ErrMissingRequiredMetadata: parseable but the round-tripped metadata is
	// absent or invalid. Acknowledged so the provider stops retrying; the
	// ledger row (when resolvable) is failed terminally.
	ErrMissingRequiredMetadata = errors.New("webhook metadata missing or invalid")
	// ErrEventIgnored: a recognized event type this service deliberately does
	// not handle. Acknowledged and dropped.
	ErrEventIgnored = errors.New("event type ignored")
)

// WebhookRequest is the transport-level view of one inbound notification,
// captured before any parsing so adapters can verify raw-body signatures.
type WebhookRequest struct {
	Header   map[string]string // lower-cased header names
	Body     []byte
	RemoteIP string
}

func (r WebhookRequest) header(name string) string {
	return r.Header[strings.ToLower(name)]
}

// Adapter is the inbound side of one provider: verifying that a notification
// really came from the provider and translating it to the canonical event.
type Adapter interface {
	Name() model.Provider

	// Authenticate verifies the request origin (HMAC signature or source IP,
	// provider-dependent) against the raw body. ErrAuthenticationFailed when
	// the check does not pass.
	Authenticate(req WebhookRequest) error

	// Parse translates the payload into the canonical event. A returned event
	// may accompany ErrMissingRequiredMetadata when the ledger reference
	// survived but the rest of the metadata did not.
	Parse(req WebhookRequest) (*model.ProviderEvent, error)

	// AckBody is the response body the provider expects on acknowledgment.
	AckBody() []byte
}

// parseMinorUnits converts a provider decimal string like "100.50" to minor
// units without going through floats. At most two fraction digits.
func parseMinorUnits(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty amount")
	}
	neg := false
	if s[0] == '-' {
		neg = true
		s = s[1:]
	}
	whole, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		whole, frac = s[:i], s[i+1:]
	}
	if len(frac) > 2 {
		frac = frac[:2]
	}
	for len(frac) < 2 {
		frac += "0"
	}
	var v int64
	for _, part := range []string{whole, frac} {
		for _, c := range part {
			if c < '0' || c > '9' {
				return 0, fmt.Errorf("bad amount %q", s)
			}
			v = v*10 + int64(c-'0')
		}
	}
	if neg {
		v = -v
	}
	return v, nil
}
