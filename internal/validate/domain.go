package validate

import (
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"
)

// Domain validation errors
var (
	ErrInvalidDomain = errors.New("invalid domain name")
	ErrReservedHost  = errors.New("domain resolves to a reserved host")
)

// domainLabelPattern matches a single DNS label: alphanumeric with
// interior hyphens, max 63 characters.
var domainLabelPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9\-]{0,61}[a-z0-9])?$`)

// CustomDomain validates a custom donation-page domain configured by a
// pro-tier organization. The domain is served by the platform's edge, so
// localhost, IP literals, and single-label hosts are rejected outright.
// Returns the normalized (lowercased, trimmed) domain.
func CustomDomain(domain string) (string, error) {
	domain = strings.ToLower(strings.TrimSpace(domain))

	if domain == "" {
		return "", ErrEmpty
	}
	if len(domain) > 253 {
		return "", fmt.Errorf("%w: domain exceeds 253 characters", ErrStringTooLong)
	}
	if strings.Contains(domain, "://") || strings.ContainsAny(domain, "/?#@ ") {
		return "", fmt.Errorf("%w: expected a bare hostname, not a URL", ErrInvalidDomain)
	}

	if domain == "localhost" || strings.HasSuffix(domain, ".localhost") {
		return "", fmt.Errorf("%w: localhost not allowed", ErrReservedHost)
	}
	if ip := net.ParseIP(domain); ip != nil {
		return "", fmt.Errorf("%w: IP literals not allowed", ErrReservedHost)
	}

	labels := strings.Split(domain, ".")
	if len(labels) < 2 {
		return "", fmt.Errorf("%w: need at least two labels", ErrInvalidDomain)
	}
	for _, label := range labels {
		if !domainLabelPattern.MatchString(label) {
			return "", fmt.Errorf("%w: bad label %q", ErrInvalidDomain, label)
		}
	}

	return domain, nil
}
