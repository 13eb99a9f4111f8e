package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lumenfund/lumenfund/internal/merchant"
	"github.com/lumenfund/lumenfund/internal/org"
)

// Envelope is the gateway's webhook body:
// { webhook: { id, type, data: { object: { applicationSummary } }, created } }.
type Envelope struct {
	Webhook Event `json:"webhook"`
}

// Event is one gateway webhook event.
type Event struct {
	ID      string    `json:"id"`
	Type    string    `json:"type"`
	Data    EventData `json:"data"`
	Created int64     `json:"created"`
}

// EventData wraps the event's object payload.
type EventData struct {
	Object EventObject `json:"object"`
}

// EventObject carries the application summary for application.* events.
type EventObject struct {
	ApplicationSummary merchant.ApplicationSummary `json:"applicationSummary"`
}

// ErrMalformedPayload is returned when the webhook body fails structural
// validation. Malformed payloads are rejected with a non-2xx response.
var ErrMalformedPayload = errors.New("malformed webhook payload")

// ErrUnknownApplication is returned when the event references an application
// this platform has never seen. The delivery is acknowledged but recorded as
// failed so a redelivery after the application is created succeeds.
var ErrUnknownApplication = errors.New("unknown merchant application")

// ParseEnvelope decodes and structurally validates a webhook body.
func ParseEnvelope(body []byte) (*Event, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if env.Webhook.ID == "" || env.Webhook.Type == "" {
		return nil, fmt.Errorf("%w: missing event id or type", ErrMalformedPayload)
	}
	return &env.Webhook, nil
}

// Result is the processing outcome returned to the gateway.
// It is also the cached value stored in the idempotency ledger, so a replay
// of a processed event returns an identical body.
type Result struct {
	Success          bool              `json:"success"`
	Message          string            `json:"message"`
	ApplicationID    string            `json:"applicationId,omitempty"`
	UpdatedFields    map[string]string `json:"updatedFields,omitempty"`
	StatusRegression bool              `json:"statusRegression,omitempty"`
	AlreadyProcessed bool              `json:"alreadyProcessed,omitempty"`
}

// Stores bundles the collaborators the processor mutates inside one
// transactional unit: ledger check, application write, and organization
// propagation must be atomic with respect to concurrent deliveries.
type Stores struct {
	Ledger       Ledger
	Applications merchant.ApplicationRepository
	Orgs         org.Service
}

// Store provides the transactional boundary around webhook processing.
type Store interface {
	// Execute runs fn atomically over the bundled stores. If fn returns
	// an error, no effects are applied.
	Execute(ctx context.Context, fn func(s Stores) error) error

	// Ledger returns a non-transactional handle used to record failures
	// best-effort after a rolled-back unit, so a crash mid-processing does
	// not lose track of the attempt.
	FailureLedger() Ledger
}

// Processor applies gateway webhook events to merchant applications.
type Processor struct {
	store    Store
	archiver Archiver
	metrics  *Metrics
	logger   *slog.Logger
}

// NewProcessor creates a webhook processor. archiver and metrics may be nil.
func NewProcessor(store Store, archiver Archiver, metrics *Metrics, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		store:    store,
		archiver: archiver,
		metrics:  metrics,
		logger:   logger,
	}
}

// Process applies one verified, parsed event. raw is the verified payload,
// archived for audit best-effort.
//
// Outcomes follow the error taxonomy: unknown event types and regressions are
// acknowledged successes with no state change; replays return the cached
// result; an unknown application is acknowledged but recorded as failed so
// redelivery retries it; persistence errors surface as hard failures with the
// failure recorded outside the rolled-back unit.
func (p *Processor) Process(ctx context.Context, event *Event, raw []byte) (*Result, error) {
	var result *Result

	err := p.store.Execute(ctx, func(s Stores) error {
		var err error
		result, err = p.apply(ctx, s, event)
		return err
	})

	if err != nil {
		if errors.Is(err, ErrUnknownApplication) {
			// Acknowledged, recorded as failed, retried on redelivery.
			p.recordFailure(ctx, event, err)
			p.count(event.Type, "failed")
			return &Result{
				Success: false,
				Message: "merchant application not found for event",
			}, nil
		}
		p.recordFailure(ctx, event, err)
		p.count(event.Type, "error")
		return nil, err
	}

	p.archive(ctx, event, raw)
	return result, nil
}

// apply runs inside the transactional unit.
func (p *Processor) apply(ctx context.Context, s Stores, event *Event) (*Result, error) {
	// Replay check: a processed event returns its cached result without
	// reapplying effects.
	rec, err := s.Ledger.Get(ctx, event.ID)
	if err == nil && rec.Status == EventProcessed {
		cached := &Result{}
		if err := json.Unmarshal(rec.Result, cached); err != nil {
			return nil, fmt.Errorf("failed to decode cached result for event %s: %w", event.ID, err)
		}
		cached.AlreadyProcessed = true
		p.logger.InfoContext(ctx, "webhook event already processed, returning cached result",
			"event_id", event.ID)
		p.count(event.Type, "replay")
		return cached, nil
	}
	if err != nil && !errors.Is(err, ErrEventNotFound) {
		return nil, err
	}

	update, ok := merchant.MapEvent(event.Type, event.Data.Object.ApplicationSummary)
	if !ok {
		p.logger.WarnContext(ctx, "no status mapping for webhook event type",
			"event_type", event.Type, "event_id", event.ID)
		result := &Result{Success: true, Message: "no mapping for event type " + event.Type}
		if err := p.cache(ctx, s, event, result); err != nil {
			return nil, err
		}
		p.count(event.Type, "no_mapping")
		return result, nil
	}

	app, err := s.Applications.GetByExternalID(ctx, event.Data.Object.ApplicationSummary.ID)
	if err != nil {
		if errors.Is(err, merchant.ErrApplicationNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownApplication, event.Data.Object.ApplicationSummary.ID)
		}
		return nil, err
	}

	transition := merchant.ApplyUpdate(app, update)

	if transition.StatusRegression {
		// Out-of-order delivery: acknowledged, flagged, nothing written.
		p.logger.InfoContext(ctx, "status regression prevented",
			"event_id", event.ID, "application_id", app.ID,
			"current_status", string(app.Status))
		result := &Result{
			Success:          true,
			Message:          "status regression prevented",
			ApplicationID:    app.ID,
			StatusRegression: true,
		}
		if err := p.cache(ctx, s, event, result); err != nil {
			return nil, err
		}
		p.count(event.Type, "regression")
		return result, nil
	}

	if transition.Applied {
		if err := s.Applications.Update(ctx, app); err != nil {
			return nil, fmt.Errorf("failed to persist application update: %w", err)
		}
	}

	if transition.Approved {
		// Approval propagates the payment-ready account to the owning
		// organization as part of the same unit.
		status := org.MerchantStatusUpdate{
			Status:        string(merchant.StatusApproved),
			AccountID:     app.ExternalAccountID,
			PaymentsReady: true,
		}
		if err := s.Orgs.UpdateMerchantStatus(ctx, app.OrgID, status); err != nil {
			return nil, fmt.Errorf("failed to propagate merchant approval: %w", err)
		}
	}

	result := &Result{
		Success:       true,
		Message:       "event processed",
		ApplicationID: app.ID,
		UpdatedFields: transition.UpdatedFields,
	}
	if err := p.cache(ctx, s, event, result); err != nil {
		return nil, err
	}
	p.count(event.Type, "applied")
	return result, nil
}

func (p *Processor) cache(ctx context.Context, s Stores, event *Event, result *Result) error {
	encoded, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode processing result: %w", err)
	}
	if err := s.Ledger.MarkProcessed(ctx, event.ID, event.Type, encoded); err != nil {
		return fmt.Errorf("failed to record processed event: %w", err)
	}
	return nil
}

// recordFailure writes the failure to the ledger outside the rolled-back
// unit, best-effort, so redelivery of the event id is retried.
func (p *Processor) recordFailure(ctx context.Context, event *Event, cause error) {
	ledger := p.store.FailureLedger()
	if ledger == nil {
		return
	}
	if err := ledger.MarkFailed(ctx, event.ID, event.Type, cause.Error()); err != nil {
		p.logger.ErrorContext(ctx, "failed to record webhook failure",
			"event_id", event.ID, "error", err)
	}
}

func (p *Processor) archive(ctx context.Context, event *Event, raw []byte) {
	if p.archiver == nil {
		return
	}
	if err := p.archiver.Archive(ctx, event.ID, raw); err != nil {
		// Archival never blocks acknowledgment.
		p.logger.WarnContext(ctx, "failed to archive webhook payload",
			"event_id", event.ID, "error", err)
	}
}

func (p *Processor) count(eventType, outcome string) {
	if p.metrics != nil {
		p.metrics.RecordEvent(eventType, outcome)
	}
}
