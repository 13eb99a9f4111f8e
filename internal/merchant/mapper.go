package merchant

// Gateway webhook event types for merchant application lifecycle.
const (
	EventApplicationCreated         = "application.created"
	EventApplicationPartiallySigned = "application.partially_signed"
	EventApplicationSigned          = "application.signed"
	EventApplicationSubmitted       = "application.submitted"
	EventApplicationApproved        = "application.approved"
	EventApplicationDeclined        = "application.declined"
	EventApplicationInfoRequired    = "application.additional_info_required"
)

// ApplicationSummary is the gateway's view of an application carried
// inside a webhook event payload.
type ApplicationSummary struct {
	ID        string  `json:"id"`
	Status    string  `json:"status"`
	AccountID *string `json:"accountId,omitempty"`
}

func statusPtr(s ApplicationStatus) *ApplicationStatus          { return &s }
func submissionPtr(s SubmissionStatus) *SubmissionStatus        { return &s }
func underwritingPtr(s UnderwritingStatus) *UnderwritingStatus  { return &s }

// MapEvent translates a gateway event type plus its application summary
// into a partial status update. The second return value is false for
// unknown event types, which yield an empty update: the webhook is still
// acknowledged but no state changes ("no mapping").
func MapEvent(eventType string, summary ApplicationSummary) (StatusUpdate, bool) {
	switch eventType {
	case EventApplicationCreated:
		return StatusUpdate{
			Status:           statusPtr(StatusCreated),
			SubmissionStatus: submissionPtr(SubmissionPending),
		}, true
	case EventApplicationPartiallySigned:
		return StatusUpdate{
			Status:           statusPtr(StatusPartiallySigned),
			SubmissionStatus: submissionPtr(SubmissionSigning),
		}, true
	case EventApplicationSigned:
		return StatusUpdate{
			Status:           statusPtr(StatusSigned),
			SubmissionStatus: submissionPtr(SubmissionSigning),
		}, true
	case EventApplicationSubmitted:
		return StatusUpdate{
			Status:             statusPtr(StatusSubmitted),
			SubmissionStatus:   submissionPtr(SubmissionSubmitted),
			UnderwritingStatus: underwritingPtr(UnderwritingPending),
		}, true
	case EventApplicationApproved:
		update := StatusUpdate{
			Status:             statusPtr(StatusApproved),
			UnderwritingStatus: underwritingPtr(UnderwritingApproved),
		}
		// The merchant account id accompanies approval and is propagated
		// to the owning organization so it can start accepting charges.
		if summary.AccountID != nil && *summary.AccountID != "" {
			update.ExternalAccountID = summary.AccountID
		}
		return update, true
	case EventApplicationDeclined:
		return StatusUpdate{
			Status:             statusPtr(StatusDeclined),
			UnderwritingStatus: underwritingPtr(UnderwritingDeclined),
		}, true
	case EventApplicationInfoRequired:
		return StatusUpdate{
			Status:             statusPtr(StatusIncomplete),
			UnderwritingStatus: underwritingPtr(UnderwritingInfoRequested),
		}, true
	default:
		return StatusUpdate{}, false
	}
}
