package merchant

// Decision is the outcome of evaluating a status update against the
// application's current state, before any write happens.
type Decision int

const (
	// DecisionApply means the update should be written.
	DecisionApply Decision = iota
	// DecisionRegression means the update is an out-of-order regression:
	// the webhook is acknowledged but nothing is written.
	DecisionRegression
	// DecisionNoChange means the update carries no status change.
	DecisionNoChange
)

// Decide evaluates whether an incoming status may overwrite the current one.
//
// Rule: apply iff the incoming priority is >= the current priority, or the
// incoming status is exactly "incomplete" (the one permitted regression from
// "submitted", used when the gateway requests additional information
// mid-underwriting).
//
// Terminal statuses are frozen: once approved or declined is stored, any
// different incoming status is a regression. This resolves the ambiguity of
// approved and declined sharing a priority rank — first terminal wins.
func Decide(current, incoming ApplicationStatus) Decision {
	if incoming == current {
		return DecisionNoChange
	}
	if current.IsTerminal() {
		return DecisionRegression
	}
	if incoming == StatusIncomplete {
		return DecisionApply
	}
	if incoming.Priority() >= current.Priority() {
		return DecisionApply
	}
	return DecisionRegression
}

// TransitionResult describes the effect of applying a status update.
type TransitionResult struct {
	// Applied is true when the application record was mutated.
	Applied bool
	// StatusRegression is true when the update was rejected as an
	// out-of-order regression. The caller still acknowledges the webhook.
	StatusRegression bool
	// UpdatedFields lists the field names that were written, keyed to
	// their new values, for response reporting and the idempotency cache.
	UpdatedFields map[string]string
	// Approved is true when this transition moved the application into
	// the approved status, which triggers organization propagation.
	Approved bool
}

// ApplyUpdate mutates app in place according to the update, honoring the
// anti-regression rule. It is pure with respect to collaborators: persistence
// and organization propagation are the caller's responsibility.
func ApplyUpdate(app *Application, update StatusUpdate) TransitionResult {
	result := TransitionResult{UpdatedFields: map[string]string{}}

	if update.Status != nil {
		switch Decide(app.Status, *update.Status) {
		case DecisionRegression:
			result.StatusRegression = true
			return result
		case DecisionApply:
			app.Status = *update.Status
			result.Applied = true
			result.UpdatedFields["status"] = string(app.Status)
			if app.Status == StatusApproved {
				result.Approved = true
			}
		case DecisionNoChange:
			// Same status redelivered; secondary fields may still change.
		}
	}

	if update.SubmissionStatus != nil && *update.SubmissionStatus != app.SubmissionStatus {
		app.SubmissionStatus = *update.SubmissionStatus
		result.Applied = true
		result.UpdatedFields["submission_status"] = string(app.SubmissionStatus)
	}
	if update.UnderwritingStatus != nil && *update.UnderwritingStatus != app.UnderwritingStatus {
		app.UnderwritingStatus = *update.UnderwritingStatus
		result.Applied = true
		result.UpdatedFields["underwriting_status"] = string(app.UnderwritingStatus)
	}
	if update.ExternalAccountID != nil {
		app.ExternalAccountID = update.ExternalAccountID
		result.Applied = true
		result.UpdatedFields["external_account_id"] = *update.ExternalAccountID
	}

	return result
}
