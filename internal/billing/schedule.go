package billing

import "time"

// Retry and grace policy for failed billing cycles. All timing decisions
// live in Schedule so the policy is testable without a clock or a store.
const (
	// GracePeriod is the window after the first failure during which the
	// subscription remains nominally active while retries are attempted.
	GracePeriod = 7 * 24 * time.Hour

	// FirstRetryDelay is the wait after the first failed cycle.
	FirstRetryDelay = 2 * 24 * time.Hour

	// SecondRetryDelay is the wait after the second failed cycle.
	SecondRetryDelay = 4 * 24 * time.Hour

	// MaxFailedAttempts is the failure count at which the grace window
	// decides between one final retry and downgrade.
	MaxFailedAttempts = 3
)

// NextAction is the scheduling decision after a failed billing cycle.
type NextAction struct {
	// NextRetryAt is when the next attempt should occur. Nil when Terminal.
	NextRetryAt *time.Time
	// GraceEndsAt is the end of the grace window opened by the first failure.
	GraceEndsAt time.Time
	// Terminal means the grace window has elapsed with the failure budget
	// exhausted: cancel the subscription and downgrade the organization.
	Terminal bool
}

// Schedule computes the next action after a failure has been counted.
// failedAttempts is the counter value including this failure;
// firstFailureAt anchors the grace window.
//
// Policy: grace ends 7 days after the first failure; retry 2 days after the
// first failure and 4 days after the second; on the third and later
// failures, one final retry at the grace boundary if it has not passed,
// otherwise terminal.
func Schedule(failedAttempts int, firstFailureAt, now time.Time) NextAction {
	graceEnd := firstFailureAt.Add(GracePeriod)
	action := NextAction{GraceEndsAt: graceEnd}

	switch {
	case failedAttempts <= 1:
		retry := now.Add(FirstRetryDelay)
		action.NextRetryAt = &retry
	case failedAttempts == 2:
		retry := now.Add(SecondRetryDelay)
		action.NextRetryAt = &retry
	default:
		if now.Before(graceEnd) {
			retry := graceEnd
			action.NextRetryAt = &retry
			return action
		}
		action.Terminal = true
	}
	return action
}
