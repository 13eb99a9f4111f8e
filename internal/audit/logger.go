package audit

import (
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/lumenfund/lumenfund/internal/middleware"
)

var (
	// ErrNilRepository is returned when a nil repository is passed to logging functions.
	ErrNilRepository = errors.New("audit repository cannot be nil")
	// ErrInvalidEntityType is returned when an invalid entity type is provided.
	ErrInvalidEntityType = errors.New("entity type not recognized")
	// ErrInvalidEntityID is returned when an invalid entity ID is provided.
	ErrInvalidEntityID = errors.New("entity ID cannot be empty")
	// ErrInvalidAction is returned when an invalid action is provided.
	ErrInvalidAction = errors.New("action not recognized")
)

// Outcome values for recorded actions.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// ValidEntityTypes defines the allowed entity types for audit logging.
var ValidEntityTypes = map[string]bool{
	"subscription": true,
	"billing_run":  true,
}

// ValidActions defines the allowed actions for audit logging.
var ValidActions = map[string]bool{
	"run_billing_sweep": true,
	"bill_subscription": true,
}

// validateLogEntry validates the required fields of a log entry against
// the allowed sets.
func validateLogEntry(entityType, entityID, action string) error {
	if entityID == "" {
		return ErrInvalidEntityID
	}
	if !ValidEntityTypes[entityType] {
		return ErrInvalidEntityType
	}
	if !ValidActions[action] {
		return ErrInvalidAction
	}
	return nil
}

// extractIPAddress extracts the client IP address from an HTTP request.
// It checks X-Forwarded-For, X-Real-IP, and RemoteAddr in that order,
// stripping any port.
func extractIPAddress(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// First IP in the chain, trimmed per RFC 7239.
		firstIP := xff
		if idx := strings.Index(xff, ","); idx != -1 {
			firstIP = xff[:idx]
		}
		firstIP = strings.TrimSpace(firstIP)
		if firstIP != "" {
			host, _, err := net.SplitHostPort(firstIP)
			if err != nil {
				return firstIP
			}
			return host
		}
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		host, _, err := net.SplitHostPort(xri)
		if err != nil {
			return xri
		}
		return host
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RecordFromRequest records an admin action with HTTP request metadata.
// actorID is the authenticated operator, entityType/entityID name what was
// acted on, and outcome reports whether the action succeeded. The request
// id is pulled from the request context; IP and user agent come from the
// request itself.
func RecordFromRequest(r *http.Request, repo Repository, actorID, entityType, entityID, action, outcome string) error {
	if repo == nil {
		return ErrNilRepository
	}
	if err := validateLogEntry(entityType, entityID, action); err != nil {
		return err
	}

	entry := LogEntry{
		ActorID:    actorID,
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		Outcome:    outcome,
		RequestID:  middleware.GetRequestID(r.Context()),
		IPAddress:  extractIPAddress(r),
		UserAgent:  r.UserAgent(),
	}

	_, err := repo.Log(r.Context(), entry)
	return err
}
