package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/lumenfund/lumenfund/internal/audit"
	"github.com/lumenfund/lumenfund/internal/auth"
	"github.com/lumenfund/lumenfund/internal/billing"
	"github.com/lumenfund/lumenfund/internal/middleware"
)

// BillingRunResponse summarizes an on-demand billing sweep.
type BillingRunResponse struct {
	Processed int                    `json:"processed"`
	Failed    int                    `json:"failed"`
	Results   []*billing.CycleResult `json:"results"`
}

// BillingHandlers holds dependencies for the admin billing trigger endpoints.
type BillingHandlers struct {
	machine *billing.StateMachine
	subs    billing.SubscriptionRepository
	jwt     *auth.JWTService
	audits  audit.Repository
}

// NewBillingHandlers creates a new BillingHandlers instance.
func NewBillingHandlers(machine *billing.StateMachine, subs billing.SubscriptionRepository, jwt *auth.JWTService, audits audit.Repository) *BillingHandlers {
	return &BillingHandlers{machine: machine, subs: subs, jwt: jwt, audits: audits}
}

// recordAction writes the admin action to the audit trail. The action has
// already run, so audit failures are logged rather than surfaced.
func (h *BillingHandlers) recordAction(r *http.Request, claims *auth.Claims, entityType, entityID, action, outcome string) {
	if h.audits == nil {
		return
	}
	if err := audit.RecordFromRequest(r, h.audits, claims.Subject, entityType, entityID, action, outcome); err != nil {
		slog.ErrorContext(r.Context(), "failed to record audit entry",
			"action", action, "entity_id", entityID, "error", err)
	}
}

// authorize validates the bearer token and requires the admin role.
// Writes the error response and returns nil when the request is not allowed.
func (h *BillingHandlers) authorize(w http.ResponseWriter, r *http.Request) *auth.Claims {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeAuthFailed)
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "missing bearer token")
		return nil
	}

	claims, err := h.jwt.ValidateToken(token)
	if err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeAuthFailed)
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "invalid token")
		return nil
	}
	if !claims.IsAdmin() {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeForbidden)
		WriteError(w, ctx, http.StatusForbidden, ErrCodeForbidden, "admin role required")
		return nil
	}
	return claims
}

// RunBilling handles POST /admin/billing/run - sweeps all subscriptions whose
// billing or retry date is due and runs one renewal cycle for each.
func (h *BillingHandlers) RunBilling(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}
	claims := h.authorize(w, r)
	if claims == nil {
		return
	}

	ctx := r.Context()
	due, err := h.subs.ListDue(ctx, time.Now())
	if err != nil {
		h.recordAction(r, claims, "billing_run", "sweep", "run_billing_sweep", audit.OutcomeFailure)
		ctx = middleware.SetErrorCode(ctx, ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to list due subscriptions")
		return
	}

	resp := BillingRunResponse{Results: make([]*billing.CycleResult, 0, len(due))}
	for _, id := range due {
		result, err := h.machine.ProcessCycle(ctx, id)
		if err != nil {
			// One broken subscription must not stall the sweep.
			slog.ErrorContext(ctx, "billing cycle failed", "subscription_id", id, "error", err)
			resp.Failed++
			continue
		}
		resp.Processed++
		resp.Results = append(resp.Results, result)
	}

	h.recordAction(r, claims, "billing_run", "sweep", "run_billing_sweep", audit.OutcomeSuccess)
	WriteJSON(w, ctx, http.StatusOK, resp)
}

// BillSubscription handles POST /admin/subscriptions/{id}/bill - runs one
// renewal cycle for a single subscription on demand.
func (h *BillingHandlers) BillSubscription(w http.ResponseWriter, r *http.Request) {
	pathParts := strings.Split(strings.TrimPrefix(r.URL.Path, "/admin/subscriptions/"), "/")
	if len(pathParts) != 2 || pathParts[0] == "" || pathParts[1] != "bill" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
		WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "The requested resource was not found")
		return
	}
	if r.Method != http.MethodPost {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}
	claims := h.authorize(w, r)
	if claims == nil {
		return
	}

	result, err := h.machine.ProcessCycle(r.Context(), pathParts[0])
	if err != nil {
		h.recordAction(r, claims, "subscription", pathParts[0], "bill_subscription", audit.OutcomeFailure)
		switch {
		case errors.Is(err, billing.ErrSubscriptionNotFound):
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
			WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Subscription not found")
		case errors.Is(err, billing.ErrSubscriptionCanceled):
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeSubscriptionCanceled)
			WriteError(w, ctx, http.StatusConflict, ErrCodeSubscriptionCanceled, "Subscription is canceled")
		default:
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
			WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to run billing cycle")
		}
		return
	}

	h.recordAction(r, claims, "subscription", pathParts[0], "bill_subscription", audit.OutcomeSuccess)
	WriteJSON(w, r.Context(), http.StatusOK, result)
}
