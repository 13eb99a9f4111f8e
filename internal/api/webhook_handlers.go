package api

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/lumenfund/lumenfund/internal/middleware"
	"github.com/lumenfund/lumenfund/internal/webhook"
)

// GatewaySignatureHeader carries the gateway's signature over the raw body,
// in the form "v1=<hex sha256 HMAC>".
const GatewaySignatureHeader = "Gateway-Signature"

// WebhookHandlers holds dependencies for gateway webhook ingestion.
type WebhookHandlers struct {
	secret    string
	processor *webhook.Processor
	metrics   *webhook.Metrics
}

// NewWebhookHandlers creates a new WebhookHandlers instance. metrics may be nil.
func NewWebhookHandlers(secret string, processor *webhook.Processor, metrics *webhook.Metrics) *WebhookHandlers {
	return &WebhookHandlers{
		secret:    secret,
		processor: processor,
		metrics:   metrics,
	}
}

// HandleGatewayWebhook ingests merchant-onboarding status events from the
// payment gateway.
// POST /internal/webhooks/gateway
//
// Only a bad signature or a structurally malformed body produce a non-2xx
// response. Every other outcome (replay, regression, unknown event type,
// unknown application) is acknowledged with 200 so the gateway does not
// redeliver forever.
func (h *WebhookHandlers) HandleGatewayWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if r.Method != http.MethodPost {
		ctx = middleware.SetErrorCode(ctx, ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		ctx = middleware.SetErrorCode(ctx, ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "failed to read request body")
		return
	}

	signature := r.Header.Get(GatewaySignatureHeader)
	if !webhook.VerifySignature(body, signature, h.secret) {
		if h.metrics != nil {
			h.metrics.RecordSignatureFailure()
		}
		slog.WarnContext(ctx, "webhook signature verification failed")
		ctx = middleware.SetErrorCode(ctx, ErrCodeInvalidSignature)
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeInvalidSignature, "invalid signature")
		return
	}

	event, err := webhook.ParseEnvelope(body)
	if err != nil {
		ctx = middleware.SetErrorCode(ctx, ErrCodeMalformedPayload)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeMalformedPayload, "malformed webhook payload")
		return
	}

	// Log minimal event info (type and ID only, not full payload)
	slog.InfoContext(ctx, "webhook event received", "event_type", event.Type, "event_id", event.ID)

	result, err := h.processor.Process(ctx, event, body)
	if err != nil {
		slog.ErrorContext(ctx, "webhook processing failed", "event_id", event.ID, "error", err)
		ctx = middleware.SetErrorCode(ctx, ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "failed to process webhook")
		return
	}

	WriteJSON(w, ctx, http.StatusOK, result)
}
