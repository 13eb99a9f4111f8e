package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/lumenfund/lumenfund/internal/merchant"
	"github.com/lumenfund/lumenfund/internal/middleware"
	"github.com/lumenfund/lumenfund/internal/org"
)

// StartOnboardingRequest represents the request body for starting merchant
// onboarding for an organization.
type StartOnboardingRequest struct {
	OrgID      string `json:"org_id"`
	ExternalID string `json:"external_id"`
}

// MerchantHandlers holds dependencies for merchant onboarding HTTP handlers.
type MerchantHandlers struct {
	service *merchant.Service
	apps    merchant.ApplicationRepository
	orgs    org.Repository
}

// NewMerchantHandlers creates a new MerchantHandlers instance.
func NewMerchantHandlers(service *merchant.Service, apps merchant.ApplicationRepository, orgs org.Repository) *MerchantHandlers {
	return &MerchantHandlers{service: service, apps: apps, orgs: orgs}
}

// StartOnboarding handles POST /merchant/applications - creates the
// application record for an organization's first onboarding attempt.
// Idempotent: an existing application is returned as is.
func (h *MerchantHandlers) StartOnboarding(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	var req StartOnboardingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}

	if strings.TrimSpace(req.OrgID) == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "org_id is required")
		return
	}
	if strings.TrimSpace(req.ExternalID) == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "external_id is required")
		return
	}

	if _, err := h.orgs.GetByID(r.Context(), req.OrgID); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
		WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Organization not found")
		return
	}

	app, err := h.service.StartOnboarding(r.Context(), req.OrgID, req.ExternalID)
	if err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to start onboarding")
		return
	}

	WriteJSON(w, r.Context(), http.StatusCreated, app)
}

// HandleApplicationByID routes requests under /merchant/applications/{id}:
//
//	GET  /merchant/applications/{id}         - fetch the application
//	POST /merchant/applications/{id}/submit  - submit it for underwriting
func (h *MerchantHandlers) HandleApplicationByID(w http.ResponseWriter, r *http.Request) {
	pathParts := strings.Split(strings.TrimPrefix(r.URL.Path, "/merchant/applications/"), "/")
	appID := pathParts[0]
	if appID == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "application id is required")
		return
	}

	switch {
	case len(pathParts) == 1 && r.Method == http.MethodGet:
		h.getApplication(w, r, appID)
	case len(pathParts) == 2 && pathParts[1] == "submit" && r.Method == http.MethodPost:
		h.submitApplication(w, r, appID)
	default:
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
		WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "The requested resource was not found")
	}
}

func (h *MerchantHandlers) getApplication(w http.ResponseWriter, r *http.Request, appID string) {
	app, err := h.apps.GetByID(r.Context(), appID)
	if err != nil {
		if errors.Is(err, merchant.ErrApplicationNotFound) {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
			WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Merchant application not found")
			return
		}
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to fetch application")
		return
	}
	WriteJSON(w, r.Context(), http.StatusOK, app)
}

func (h *MerchantHandlers) submitApplication(w http.ResponseWriter, r *http.Request, appID string) {
	app, err := h.apps.GetByID(r.Context(), appID)
	if err != nil {
		if errors.Is(err, merchant.ErrApplicationNotFound) {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
			WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Merchant application not found")
			return
		}
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to fetch application")
		return
	}

	submitted, err := h.service.SubmitApplication(r.Context(), app.OrgID)
	if err != nil {
		switch {
		case errors.Is(err, merchant.ErrAlreadySubmitted):
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeAlreadySubmitted)
			WriteError(w, ctx, http.StatusConflict, ErrCodeAlreadySubmitted, "Application is past the submittable stages")
		case errors.Is(err, merchant.ErrSubmissionFailed):
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeGatewayError)
			WriteError(w, ctx, http.StatusBadGateway, ErrCodeGatewayError, "Gateway rejected the submission")
		default:
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
			WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to submit application")
		}
		return
	}

	WriteJSON(w, r.Context(), http.StatusOK, submitted)
}
