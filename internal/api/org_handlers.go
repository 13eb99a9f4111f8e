package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/lumenfund/lumenfund/internal/billing"
	"github.com/lumenfund/lumenfund/internal/middleware"
	"github.com/lumenfund/lumenfund/internal/org"
	"github.com/lumenfund/lumenfund/internal/validate"
)

// CreateOrganizationRequest represents the request body for creating an organization.
type CreateOrganizationRequest struct {
	Name         string  `json:"name"`
	Tier         string  `json:"tier,omitempty"`
	CustomDomain *string `json:"custom_domain,omitempty"`
}

// CreateInstrumentRequest represents the request body for registering a
// payment instrument against an organization.
type CreateInstrumentRequest struct {
	GatewayRef string `json:"gateway_ref"`
	Priority   int    `json:"priority"`
	IsDefault  bool   `json:"is_default"`
}

// InstrumentListResponse wraps the active instruments of an organization
// in charge-attempt order.
type InstrumentListResponse struct {
	Instruments []*billing.PaymentInstrument `json:"instruments"`
}

// OrgHandlers holds dependencies for organization HTTP handlers.
type OrgHandlers struct {
	orgs        org.Repository
	instruments billing.InstrumentRepository
}

// NewOrgHandlers creates a new OrgHandlers instance.
func NewOrgHandlers(orgs org.Repository, instruments billing.InstrumentRepository) *OrgHandlers {
	return &OrgHandlers{orgs: orgs, instruments: instruments}
}

// CreateOrganization handles POST /organizations - registers a new nonprofit tenant.
func (h *OrgHandlers) CreateOrganization(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	var req CreateOrganizationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}

	name, err := validate.OrganizationName(req.Name)
	if err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "organization name must be 3-128 characters")
		return
	}

	tier := org.Tier(req.Tier)
	if req.Tier == "" {
		tier = org.TierFree
	}
	if tier != org.TierFree && tier != org.TierPro {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "tier must be 'free' or 'pro'")
		return
	}

	customDomain := req.CustomDomain
	if customDomain != nil {
		normalized, err := validate.CustomDomain(*customDomain)
		if err != nil {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "custom_domain must be a bare public hostname")
			return
		}
		customDomain = &normalized
	}

	newOrg := &org.Organization{
		Name:               name,
		Tier:               tier,
		SubscriptionStatus: "active",
		CustomDomain:       customDomain,
	}
	if err := h.orgs.Insert(r.Context(), newOrg); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to create organization")
		return
	}

	WriteJSON(w, r.Context(), http.StatusCreated, newOrg)
}

// HandleOrganizationByID routes requests under /organizations/{id}:
//
//	GET  /organizations/{id}              - fetch the organization
//	GET  /organizations/{id}/instruments  - list active instruments in charge order
//	POST /organizations/{id}/instruments  - register a payment instrument
func (h *OrgHandlers) HandleOrganizationByID(w http.ResponseWriter, r *http.Request) {
	pathParts := strings.Split(strings.TrimPrefix(r.URL.Path, "/organizations/"), "/")
	orgID := pathParts[0]
	if orgID == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "organization id is required")
		return
	}

	switch {
	case len(pathParts) == 1:
		if r.Method != http.MethodGet {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
			WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
			return
		}
		h.getOrganization(w, r, orgID)
	case len(pathParts) == 2 && pathParts[1] == "instruments":
		switch r.Method {
		case http.MethodGet:
			h.listInstruments(w, r, orgID)
		case http.MethodPost:
			h.createInstrument(w, r, orgID)
		default:
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
			WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		}
	default:
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
		WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "The requested resource was not found")
	}
}

func (h *OrgHandlers) getOrganization(w http.ResponseWriter, r *http.Request, orgID string) {
	o, err := h.orgs.GetByID(r.Context(), orgID)
	if err != nil {
		if errors.Is(err, org.ErrOrganizationNotFound) {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
			WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Organization not found")
			return
		}
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to fetch organization")
		return
	}
	WriteJSON(w, r.Context(), http.StatusOK, o)
}

func (h *OrgHandlers) listInstruments(w http.ResponseWriter, r *http.Request, orgID string) {
	if _, err := h.orgs.GetByID(r.Context(), orgID); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
		WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Organization not found")
		return
	}

	active, err := h.instruments.ListActiveByOrg(r.Context(), orgID)
	if err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to list instruments")
		return
	}

	// Present instruments in the order billing would try them.
	WriteJSON(w, r.Context(), http.StatusOK, InstrumentListResponse{
		Instruments: billing.Prioritize(active, ""),
	})
}

func (h *OrgHandlers) createInstrument(w http.ResponseWriter, r *http.Request, orgID string) {
	var req CreateInstrumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}

	gatewayRef, err := validate.GatewayRef(req.GatewayRef)
	if err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "gateway_ref is required and must be a gateway token")
		return
	}
	if req.Priority < 0 {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "priority must not be negative")
		return
	}

	if _, err := h.orgs.GetByID(r.Context(), orgID); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
		WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Organization not found")
		return
	}

	ins := &billing.PaymentInstrument{
		OrgID:      orgID,
		GatewayRef: gatewayRef,
		Priority:   req.Priority,
		IsDefault:  req.IsDefault,
		Status:     billing.InstrumentActive,
	}
	if err := h.instruments.Insert(r.Context(), ins); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to register instrument")
		return
	}

	WriteJSON(w, r.Context(), http.StatusCreated, ins)
}
