package validation

import (
	"net/url"
	"strings"

	apperrors "go-tonesense/internal/errors"
)

// URLValidator checks the base URL of the remote analysis service
type URLValidator struct {
	allowedSchemes []string
	allowedHosts   []string
}

// NewURLValidator creates a new URL validator with default settings
func NewURLValidator() *URLValidator {
	return &URLValidator{
		allowedSchemes: []string{"http", "https"},
		allowedHosts:   []string{}, // empty means all hosts allowed
	}
}

// NewURLValidatorWithOptions creates a URL validator with custom options
func NewURLValidatorWithOptions(schemes []string, hosts []string) *URLValidator {
	return &URLValidator{
		allowedSchemes: schemes,
		allowedHosts:   hosts,
	}
}

// ValidateServiceURL validates a service base URL. A base URL carries no
// query or fragment; the API paths are appended to it.
func (v *URLValidator) ValidateServiceURL(serviceURL string) error {
	if strings.TrimSpace(serviceURL) == "" {
		return apperrors.NewValidationError("service URL cannot be empty", nil)
	}

	parsedURL, err := url.Parse(serviceURL)
	if err != nil {
		return apperrors.NewValidationError("invalid service URL format", err)
	}

	if !v.isSchemeAllowed(parsedURL.Scheme) {
		return apperrors.NewValidationError("service URL scheme not allowed", nil)
	}

	if parsedURL.Host == "" {
		return apperrors.NewValidationError("service URL must have a valid host", nil)
	}

	if len(v.allowedHosts) > 0 && !v.isHostAllowed(parsedURL.Hostname()) {
		return apperrors.NewValidationError("service URL host not allowed", nil)
	}

	if parsedURL.RawQuery != "" || parsedURL.Fragment != "" {
		return apperrors.NewValidationError("service URL must not carry a query or fragment", nil)
	}

	return nil
}

func (v *URLValidator) isSchemeAllowed(scheme string) bool {
	for _, allowed := range v.allowedSchemes {
		if scheme == allowed {
			return true
		}
	}
	return false
}

func (v *URLValidator) isHostAllowed(host string) bool {
	for _, allowed := range v.allowedHosts {
		if host == allowed {
			return true
		}
	}
	return false
}
