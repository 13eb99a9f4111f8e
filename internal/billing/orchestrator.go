package billing

import (
	"context"
	"log/slog"

	"github.com/lumenfund/lumenfund/internal/gateway"
)

// Attempt records the outcome of charging one instrument.
type Attempt struct {
	InstrumentID string `json:"instrument_id"`
	ChargeID     string `json:"charge_id,omitempty"`
	Approved     bool   `json:"approved"`
	Error        string `json:"error,omitempty"`
}

// ChargeOutcome is the orchestrator's structured result. Attempted==0 means
// no instrument was available to try, which callers treat as the distinct
// no-payment-method condition rather than a charge failure.
type ChargeOutcome struct {
	Success    bool
	Instrument *PaymentInstrument // The instrument that settled, on success
	ChargeID   string
	Attempted  int
	Attempts   []Attempt
}

// Orchestrator executes a payment against instruments in order until one
// settles or the list is exhausted, recording per-instrument usage stats.
type Orchestrator struct {
	gateway     gateway.Client
	instruments InstrumentRepository
	metrics     *Metrics
	logger      *slog.Logger
}

// NewOrchestrator creates a payment attempt orchestrator. metrics may be nil.
func NewOrchestrator(gw gateway.Client, instruments InstrumentRepository, metrics *Metrics, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		gateway:     gw,
		instruments: instruments,
		metrics:     metrics,
		logger:      logger,
	}
}

// Charge attempts the given amount against each instrument in order. Each
// gateway call is a blocking network call with a bounded timeout; a timeout
// or transport error is treated identically to a decline. There is no
// cancellation mid-loop: once started, the sequence runs to success or
// exhaustion.
func (o *Orchestrator) Charge(ctx context.Context, ordered []*PaymentInstrument, amountCents int64, currency, customerRef string) *ChargeOutcome {
	outcome := &ChargeOutcome{}

	for _, ins := range ordered {
		outcome.Attempted++
		result, err := o.gateway.CreateRecurringPayment(ctx, gateway.ChargeRequest{
			AmountCents:   amountCents,
			Currency:      currency,
			InstrumentRef: ins.GatewayRef,
			CustomerRef:   customerRef,
		})

		if err != nil || !result.Approved() {
			attempt := Attempt{InstrumentID: ins.ID}
			if err != nil {
				attempt.Error = err.Error()
			} else {
				attempt.ChargeID = result.ID
				attempt.Error = result.DeclineReason
			}
			outcome.Attempts = append(outcome.Attempts, attempt)

			o.recordTick(ctx, ins.ID, false)
			o.logger.WarnContext(ctx, "charge attempt failed",
				"instrument_id", ins.ID, "error", attempt.Error)
			continue
		}

		outcome.Attempts = append(outcome.Attempts, Attempt{
			InstrumentID: ins.ID,
			ChargeID:     result.ID,
			Approved:     true,
		})
		outcome.Success = true
		outcome.Instrument = ins
		outcome.ChargeID = result.ID

		o.recordTick(ctx, ins.ID, true)
		o.logger.InfoContext(ctx, "charge settled",
			"instrument_id", ins.ID, "charge_id", result.ID)
		return outcome
	}

	return outcome
}

// recordTick updates instrument usage stats best-effort; a counter write
// failure never changes the charge outcome.
func (o *Orchestrator) recordTick(ctx context.Context, instrumentID string, success bool) {
	var err error
	if success {
		err = o.instruments.RecordSuccess(ctx, instrumentID)
	} else {
		err = o.instruments.RecordFailure(ctx, instrumentID)
	}
	if err != nil {
		o.logger.ErrorContext(ctx, "failed to record instrument usage",
			"instrument_id", instrumentID, "error", err)
	}
	if o.metrics != nil {
		o.metrics.RecordAttempt(success)
	}
}
