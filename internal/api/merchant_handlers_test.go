package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lumenfund/lumenfund/internal/gateway"
	"github.com/lumenfund/lumenfund/internal/merchant"
	"github.com/lumenfund/lumenfund/internal/org"
)

// stubGateway implements gateway.Client for handler tests.
type stubGateway struct {
	submitErr error
	submitted []string
}

func (g *stubGateway) Charge(ctx context.Context, req gateway.ChargeRequest) (*gateway.ChargeResult, error) {
	return &gateway.ChargeResult{ID: "ch_stub", Status: gateway.ChargeApproved}, nil
}

func (g *stubGateway) CreateRecurringPayment(ctx context.Context, req gateway.ChargeRequest) (*gateway.ChargeResult, error) {
	return &gateway.ChargeResult{ID: "ch_stub", Status: gateway.ChargeApproved}, nil
}

func (g *stubGateway) SubmitApplication(ctx context.Context, externalApplicationID string) error {
	g.submitted = append(g.submitted, externalApplicationID)
	return g.submitErr
}

type merchantFixture struct {
	handlers *MerchantHandlers
	apps     *merchant.InMemoryApplicationRepository
	orgs     *org.InMemoryRepository
	gateway  *stubGateway
	orgID    string
}

func newMerchantFixture(t *testing.T) *merchantFixture {
	t.Helper()
	orgs := org.NewInMemoryRepository()
	o := &org.Organization{Name: "Riverbend Food Bank", Tier: org.TierFree}
	if err := orgs.Insert(context.Background(), o); err != nil {
		t.Fatalf("failed to seed organization: %v", err)
	}

	apps := merchant.NewInMemoryApplicationRepository()
	gw := &stubGateway{}
	service := merchant.NewService(apps, gw, nil)

	return &merchantFixture{
		handlers: NewMerchantHandlers(service, apps, orgs),
		apps:     apps,
		orgs:     orgs,
		gateway:  gw,
		orgID:    o.ID,
	}
}

func (f *merchantFixture) startOnboarding(t *testing.T) *merchant.Application {
	t.Helper()
	body, _ := json.Marshal(StartOnboardingRequest{OrgID: f.orgID, ExternalID: "ext_app_1"})
	req := httptest.NewRequest(http.MethodPost, "/merchant/applications", bytes.NewReader(body))
	w := httptest.NewRecorder()
	f.handlers.StartOnboarding(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	var app merchant.Application
	if err := json.NewDecoder(w.Body).Decode(&app); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return &app
}

// TestStartOnboarding tests application creation and its idempotency.
func TestStartOnboarding(t *testing.T) {
	f := newMerchantFixture(t)

	app := f.startOnboarding(t)
	if app.ID == "" {
		t.Error("expected generated application id")
	}
	if app.Status != merchant.StatusCreated {
		t.Errorf("status = %s, want %s", app.Status, merchant.StatusCreated)
	}

	// A second attempt returns the existing application.
	again := f.startOnboarding(t)
	if again.ID != app.ID {
		t.Errorf("second onboarding created a new application: %s != %s", again.ID, app.ID)
	}
}

// TestStartOnboarding_Validation tests required fields and unknown organization.
func TestStartOnboarding_Validation(t *testing.T) {
	f := newMerchantFixture(t)

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{"missing org_id", `{"external_id": "ext_app_1"}`, http.StatusBadRequest},
		{"missing external_id", `{"org_id": "` + f.orgID + `"}`, http.StatusBadRequest},
		{"unknown org", `{"org_id": "org_missing", "external_id": "ext_app_1"}`, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/merchant/applications", bytes.NewReader([]byte(tt.body)))
			w := httptest.NewRecorder()
			f.handlers.StartOnboarding(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d: %s", tt.wantStatus, w.Code, w.Body.String())
			}
		})
	}
}

// TestGetApplication tests fetch by id.
func TestGetApplication(t *testing.T) {
	f := newMerchantFixture(t)
	app := f.startOnboarding(t)

	req := httptest.NewRequest(http.MethodGet, "/merchant/applications/"+app.ID, nil)
	w := httptest.NewRecorder()
	f.handlers.HandleApplicationByID(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/merchant/applications/app_missing", nil)
	w = httptest.NewRecorder()
	f.handlers.HandleApplicationByID(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected status 404 for missing application, got %d", w.Code)
	}
}

// TestSubmitApplication tests the submission action.
func TestSubmitApplication(t *testing.T) {
	f := newMerchantFixture(t)
	app := f.startOnboarding(t)

	req := httptest.NewRequest(http.MethodPost, "/merchant/applications/"+app.ID+"/submit", nil)
	w := httptest.NewRecorder()
	f.handlers.HandleApplicationByID(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var submitted merchant.Application
	if err := json.NewDecoder(w.Body).Decode(&submitted); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if submitted.Status != merchant.StatusSubmitted {
		t.Errorf("status = %s, want %s", submitted.Status, merchant.StatusSubmitted)
	}
	if submitted.SubmitAttempts != 1 {
		t.Errorf("submit attempts = %d, want 1", submitted.SubmitAttempts)
	}
	if len(f.gateway.submitted) != 1 || f.gateway.submitted[0] != "ext_app_1" {
		t.Errorf("gateway submissions = %v, want [ext_app_1]", f.gateway.submitted)
	}
}

// TestSubmitApplication_AlreadySubmitted tests the conflict on resubmission.
func TestSubmitApplication_AlreadySubmitted(t *testing.T) {
	f := newMerchantFixture(t)
	app := f.startOnboarding(t)

	req := httptest.NewRequest(http.MethodPost, "/merchant/applications/"+app.ID+"/submit", nil)
	w := httptest.NewRecorder()
	f.handlers.HandleApplicationByID(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("first submit: expected status 200, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/merchant/applications/"+app.ID+"/submit", nil)
	w = httptest.NewRecorder()
	f.handlers.HandleApplicationByID(w, req)

	if w.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d: %s", w.Code, w.Body.String())
	}

	var errResp ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&errResp); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	if errResp.Error.Code != ErrCodeAlreadySubmitted {
		t.Errorf("expected error code %s, got %s", ErrCodeAlreadySubmitted, errResp.Error.Code)
	}
}

// TestSubmitApplication_GatewayRejected tests that a gateway failure surfaces
// as a bad-gateway response while the attempt is still counted.
func TestSubmitApplication_GatewayRejected(t *testing.T) {
	f := newMerchantFixture(t)
	app := f.startOnboarding(t)
	f.gateway.submitErr = errors.New("application incomplete")

	req := httptest.NewRequest(http.MethodPost, "/merchant/applications/"+app.ID+"/submit", nil)
	w := httptest.NewRecorder()
	f.handlers.HandleApplicationByID(w, req)

	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected status 502, got %d: %s", w.Code, w.Body.String())
	}

	stored, err := f.apps.GetByID(context.Background(), app.ID)
	if err != nil {
		t.Fatalf("failed to fetch application: %v", err)
	}
	if stored.SubmitAttempts != 1 {
		t.Errorf("submit attempts = %d, want 1", stored.SubmitAttempts)
	}
	if stored.LastError == nil {
		t.Error("expected last error to be recorded")
	}
	if stored.Status != merchant.StatusCreated {
		t.Errorf("status = %s, want %s", stored.Status, merchant.StatusCreated)
	}
}
