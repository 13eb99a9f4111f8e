// Package merchant provides models and services for merchant onboarding
// applications: the submission that, once approved by the payment gateway,
// grants an organization a gateway account capable of accepting charges.
package merchant

import (
	"errors"
	"time"
)

// ApplicationStatus is the canonical status of a merchant application.
type ApplicationStatus string

const (
	StatusCreated         ApplicationStatus = "created"
	StatusPartiallySigned ApplicationStatus = "partially_signed"
	StatusSigned          ApplicationStatus = "signed"
	StatusSubmitted       ApplicationStatus = "submitted"
	StatusIncomplete      ApplicationStatus = "incomplete"
	StatusApproved        ApplicationStatus = "approved"
	StatusDeclined        ApplicationStatus = "declined"
)

// statusPriority ranks statuses for anti-regression checks. Higher rank wins;
// equal-rank siblings (approved/declined, signed/incomplete) never overwrite
// each other once a terminal status is stored.
var statusPriority = map[ApplicationStatus]int{
	StatusCreated:         1,
	StatusPartiallySigned: 2,
	StatusSigned:          3,
	StatusIncomplete:      3,
	StatusSubmitted:       4,
	StatusApproved:        5,
	StatusDeclined:        5,
}

// Priority returns the anti-regression rank of the status.
// Returns 0 for an unknown status so unknown values never outrank known ones.
func (s ApplicationStatus) Priority() int {
	return statusPriority[s]
}

// Valid reports whether the status is one of the canonical values.
func (s ApplicationStatus) Valid() bool {
	_, ok := statusPriority[s]
	return ok
}

// IsTerminal reports whether the status is a terminal state.
// Terminal applications are never deleted and never change status again.
func (s ApplicationStatus) IsTerminal() bool {
	return s == StatusApproved || s == StatusDeclined
}

// SubmissionStatus tracks the gateway-side submission stage of an application.
type SubmissionStatus string

const (
	SubmissionPending   SubmissionStatus = "pending"
	SubmissionSubmitted SubmissionStatus = "submitted"
	SubmissionSigning   SubmissionStatus = "signing"
)

// UnderwritingStatus tracks the gateway's risk-review stage.
type UnderwritingStatus string

const (
	UnderwritingNotStarted    UnderwritingStatus = "not_started"
	UnderwritingPending       UnderwritingStatus = "pending"
	UnderwritingInfoRequested UnderwritingStatus = "info_requested"
	UnderwritingApproved      UnderwritingStatus = "approved"
	UnderwritingDeclined      UnderwritingStatus = "declined"
)

// Common errors for merchant application operations.
var (
	ErrApplicationNotFound = errors.New("merchant application not found")
	ErrApplicationExists   = errors.New("merchant application already exists for organization")
)

// Application represents a merchant onboarding application.
// Mutated only by the status machine or an explicit submission action;
// never deleted, only terminal (approved/declined).
type Application struct {
	ID                 string             `json:"id"`
	ExternalID         string             `json:"external_id"`         // Gateway application ID
	ExternalAccountID  *string            `json:"external_account_id"` // Gateway merchant account ID, set on approval
	OrgID              string             `json:"org_id"`
	Status             ApplicationStatus  `json:"status"`
	SubmissionStatus   SubmissionStatus   `json:"submission_status"`
	UnderwritingStatus UnderwritingStatus `json:"underwriting_status"`
	SubmitAttempts     int                `json:"submit_attempts"`
	LastError          *string            `json:"last_error,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// StatusUpdate is a partial update produced by mapping a gateway event.
// Nil fields are left untouched when the update is applied.
type StatusUpdate struct {
	Status             *ApplicationStatus
	SubmissionStatus   *SubmissionStatus
	UnderwritingStatus *UnderwritingStatus
	ExternalAccountID  *string
}

// Empty reports whether the update carries no changes.
func (u StatusUpdate) Empty() bool {
	return u.Status == nil && u.SubmissionStatus == nil &&
		u.UnderwritingStatus == nil && u.ExternalAccountID == nil
}
