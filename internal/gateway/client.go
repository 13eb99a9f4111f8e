// Package gateway provides the payment gateway client contract consumed by
// onboarding and billing. Only the status/outcome contract of the gateway is
// modeled here; card capture itself is the gateway's business.
package gateway

import (
	"context"
	"errors"
)

// ChargeStatus is the outcome the gateway reports for a charge.
type ChargeStatus string

const (
	ChargeApproved ChargeStatus = "approved"
	ChargeDeclined ChargeStatus = "declined"
)

// ErrGatewayUnavailable is returned when the gateway cannot be reached or
// times out. Callers treat it the same as a decline: record the failure and
// move on to the next instrument.
var ErrGatewayUnavailable = errors.New("payment gateway unavailable")

// ChargeRequest describes a single charge attempt against a stored instrument.
type ChargeRequest struct {
	AmountCents   int64  `json:"amount"`
	Currency      string `json:"currency"`
	InstrumentRef string `json:"instrumentReference"`
	CustomerRef   string `json:"customerReference"`
}

// ChargeResult is the gateway's response to a charge attempt.
type ChargeResult struct {
	ID            string       `json:"id"`
	Status        ChargeStatus `json:"status"`
	DeclineReason string       `json:"declineReason,omitempty"`
}

// Approved reports whether the charge settled.
func (r *ChargeResult) Approved() bool {
	return r != nil && r.Status == ChargeApproved
}

// Client is the payment gateway contract. An interface so billing and
// onboarding can be tested with mocks.
type Client interface {
	// Charge executes a one-time charge against a stored instrument.
	// The call blocks with a bounded timeout; a timeout or transport
	// error surfaces as ErrGatewayUnavailable.
	Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error)

	// CreateRecurringPayment executes a subscription renewal charge.
	// Same shape and semantics as Charge.
	CreateRecurringPayment(ctx context.Context, req ChargeRequest) (*ChargeResult, error)

	// SubmitApplication submits a merchant application for underwriting.
	SubmitApplication(ctx context.Context, externalApplicationID string) error
}
