package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lumenfund/lumenfund/internal/billing"
	"github.com/lumenfund/lumenfund/internal/org"
)

func newOrgHandlers(t *testing.T) (*OrgHandlers, *org.InMemoryRepository, *billing.InMemoryInstrumentRepository) {
	t.Helper()
	orgs := org.NewInMemoryRepository()
	instruments := billing.NewInMemoryInstrumentRepository()
	return NewOrgHandlers(orgs, instruments), orgs, instruments
}

func seedOrg(t *testing.T, orgs *org.InMemoryRepository, name string) *org.Organization {
	t.Helper()
	o := &org.Organization{Name: name, Tier: org.TierFree}
	if err := orgs.Insert(context.Background(), o); err != nil {
		t.Fatalf("failed to seed organization: %v", err)
	}
	return o
}

// TestCreateOrganization tests happy-path organization registration.
func TestCreateOrganization(t *testing.T) {
	handlers, _, _ := newOrgHandlers(t)

	body := []byte(`{"name": "Riverbend Food Bank", "tier": "pro"}`)
	req := httptest.NewRequest(http.MethodPost, "/organizations", bytes.NewReader(body))
	w := httptest.NewRecorder()
	handlers.CreateOrganization(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", w.Code, w.Body.String())
	}

	var created org.Organization
	if err := json.NewDecoder(w.Body).Decode(&created); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if created.ID == "" {
		t.Error("expected generated organization id")
	}
	if created.Name != "Riverbend Food Bank" {
		t.Errorf("name = %q", created.Name)
	}
	if created.Tier != org.TierPro {
		t.Errorf("tier = %s, want pro", created.Tier)
	}
}

// TestCreateOrganization_Validation tests name and tier validation.
func TestCreateOrganization_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"name too short", `{"name": "ab"}`},
		{"unknown tier", `{"name": "Riverbend Food Bank", "tier": "platinum"}`},
		{"custom domain is a url", `{"name": "Riverbend Food Bank", "custom_domain": "https://donate.riverbend.org"}`},
		{"custom domain is localhost", `{"name": "Riverbend Food Bank", "custom_domain": "localhost"}`},
		{"invalid json", `{`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handlers, _, _ := newOrgHandlers(t)
			req := httptest.NewRequest(http.MethodPost, "/organizations", bytes.NewReader([]byte(tt.body)))
			w := httptest.NewRecorder()
			handlers.CreateOrganization(w, req)

			if w.Code != http.StatusBadRequest {
				t.Errorf("expected status 400, got %d: %s", w.Code, w.Body.String())
			}
		})
	}
}

// TestGetOrganization tests fetch by id, including the not-found path.
func TestGetOrganization(t *testing.T) {
	handlers, orgs, _ := newOrgHandlers(t)
	o := seedOrg(t, orgs, "Harbor Light Shelter")

	req := httptest.NewRequest(http.MethodGet, "/organizations/"+o.ID, nil)
	w := httptest.NewRecorder()
	handlers.HandleOrganizationByID(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var got org.Organization
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if got.ID != o.ID {
		t.Errorf("id = %q, want %q", got.ID, o.ID)
	}

	req = httptest.NewRequest(http.MethodGet, "/organizations/org_missing", nil)
	w = httptest.NewRecorder()
	handlers.HandleOrganizationByID(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected status 404 for missing org, got %d", w.Code)
	}
}

// TestCreateInstrument tests instrument registration against an organization.
func TestCreateInstrument(t *testing.T) {
	handlers, orgs, instruments := newOrgHandlers(t)
	o := seedOrg(t, orgs, "Harbor Light Shelter")

	body := []byte(`{"gateway_ref": "tok_visa_4242", "priority": 1, "is_default": true}`)
	req := httptest.NewRequest(http.MethodPost, "/organizations/"+o.ID+"/instruments", bytes.NewReader(body))
	w := httptest.NewRecorder()
	handlers.HandleOrganizationByID(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", w.Code, w.Body.String())
	}

	var ins billing.PaymentInstrument
	if err := json.NewDecoder(w.Body).Decode(&ins); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if ins.ID == "" {
		t.Error("expected generated instrument id")
	}
	if ins.Status != billing.InstrumentActive {
		t.Errorf("status = %s, want active", ins.Status)
	}

	stored, err := instruments.GetByID(context.Background(), ins.ID)
	if err != nil {
		t.Fatalf("instrument not persisted: %v", err)
	}
	if stored.OrgID != o.ID {
		t.Errorf("org id = %q, want %q", stored.OrgID, o.ID)
	}
}

// TestCreateInstrument_Validation tests gateway_ref requirement and unknown org.
func TestCreateInstrument_Validation(t *testing.T) {
	handlers, orgs, _ := newOrgHandlers(t)
	o := seedOrg(t, orgs, "Harbor Light Shelter")

	body := []byte(`{"priority": 1}`)
	req := httptest.NewRequest(http.MethodPost, "/organizations/"+o.ID+"/instruments", bytes.NewReader(body))
	w := httptest.NewRecorder()
	handlers.HandleOrganizationByID(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing gateway_ref: expected status 400, got %d", w.Code)
	}

	body = []byte(`{"gateway_ref": "tok visa 4242"}`)
	req = httptest.NewRequest(http.MethodPost, "/organizations/"+o.ID+"/instruments", bytes.NewReader(body))
	w = httptest.NewRecorder()
	handlers.HandleOrganizationByID(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("malformed gateway_ref: expected status 400, got %d", w.Code)
	}

	body = []byte(`{"gateway_ref": "tok_visa_4242"}`)
	req = httptest.NewRequest(http.MethodPost, "/organizations/org_missing/instruments", bytes.NewReader(body))
	w = httptest.NewRecorder()
	handlers.HandleOrganizationByID(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown org: expected status 404, got %d", w.Code)
	}
}

// TestListInstruments tests that instruments come back in charge-attempt order.
func TestListInstruments(t *testing.T) {
	handlers, orgs, instruments := newOrgHandlers(t)
	o := seedOrg(t, orgs, "Harbor Light Shelter")

	ctx := context.Background()
	backup := &billing.PaymentInstrument{OrgID: o.ID, GatewayRef: "tok_backup", Priority: 5, Status: billing.InstrumentActive}
	primary := &billing.PaymentInstrument{OrgID: o.ID, GatewayRef: "tok_primary", Priority: 9, IsDefault: true, Status: billing.InstrumentActive}
	for _, ins := range []*billing.PaymentInstrument{backup, primary} {
		if err := instruments.Insert(ctx, ins); err != nil {
			t.Fatalf("failed to seed instrument: %v", err)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/organizations/"+o.ID+"/instruments", nil)
	w := httptest.NewRecorder()
	handlers.HandleOrganizationByID(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp InstrumentListResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Instruments) != 2 {
		t.Fatalf("expected 2 instruments, got %d", len(resp.Instruments))
	}
	// The default instrument leads regardless of priority.
	if resp.Instruments[0].GatewayRef != "tok_primary" {
		t.Errorf("first instrument = %s, want tok_primary", resp.Instruments[0].GatewayRef)
	}
}
