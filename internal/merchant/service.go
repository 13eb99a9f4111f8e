package merchant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lumenfund/lumenfund/internal/gateway"
)

// ErrAlreadySubmitted is returned when submission is attempted on an
// application that is past the submittable stages.
var ErrAlreadySubmitted = errors.New("application already submitted")

// ErrSubmissionFailed is returned when the gateway rejects or fails a
// submission attempt. The attempt is still counted and the cause recorded.
var ErrSubmissionFailed = errors.New("gateway submission failed")

// Service handles the explicit onboarding actions that are not driven by
// gateway webhooks: creating an application on first onboarding attempt and
// submitting it for underwriting.
type Service struct {
	apps    ApplicationRepository
	gateway gateway.Client
	logger  *slog.Logger
}

// NewService creates a merchant onboarding service.
func NewService(apps ApplicationRepository, gw gateway.Client, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{apps: apps, gateway: gw, logger: logger}
}

// StartOnboarding creates the application record for an organization's first
// onboarding attempt. Idempotent: an existing application is returned as is.
func (s *Service) StartOnboarding(ctx context.Context, orgID, externalID string) (*Application, error) {
	if existing, err := s.apps.GetByOrgID(ctx, orgID); err == nil {
		return existing, nil
	} else if !errors.Is(err, ErrApplicationNotFound) {
		return nil, err
	}

	app := &Application{
		ExternalID:         externalID,
		OrgID:              orgID,
		Status:             StatusCreated,
		SubmissionStatus:   SubmissionPending,
		UnderwritingStatus: UnderwritingNotStarted,
	}
	if err := s.apps.Insert(ctx, app); err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "merchant application created",
		"application_id", app.ID, "org_id", orgID)
	return app, nil
}

// SubmitApplication submits an application for underwriting. Each attempt
// increments the submission counter; a gateway rejection is recorded in
// LastError so operators can see why the last attempt failed.
func (s *Service) SubmitApplication(ctx context.Context, orgID string) (*Application, error) {
	app, err := s.apps.GetByOrgID(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if app.Status.IsTerminal() || app.Status == StatusSubmitted {
		return nil, fmt.Errorf("%w: status %s", ErrAlreadySubmitted, app.Status)
	}

	app.SubmitAttempts++

	if err := s.gateway.SubmitApplication(ctx, app.ExternalID); err != nil {
		msg := err.Error()
		app.LastError = &msg
		if uErr := s.apps.Update(ctx, app); uErr != nil {
			return nil, uErr
		}
		return nil, fmt.Errorf("%w: %v", ErrSubmissionFailed, err)
	}

	update := StatusUpdate{
		Status:             statusPtr(StatusSubmitted),
		SubmissionStatus:   submissionPtr(SubmissionSubmitted),
		UnderwritingStatus: underwritingPtr(UnderwritingPending),
	}
	transition := ApplyUpdate(app, update)
	if transition.StatusRegression {
		// A webhook advanced the application past submitted while the
		// gateway call was in flight; keep the stored state.
		return app, nil
	}
	app.LastError = nil
	if err := s.apps.Update(ctx, app); err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "merchant application submitted",
		"application_id", app.ID, "attempt", app.SubmitAttempts)
	return app, nil
}
