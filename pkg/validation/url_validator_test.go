package validation

import (
	"testing"

	apperrors "go-tonesense/internal/errors"
)

func TestNewURLValidator(t *testing.T) {
	validator := NewURLValidator()
	if validator == nil {
		t.Fatal("Expected non-nil URL validator")
	}

	expectedSchemes := []string{"http", "https"}
	if len(validator.allowedSchemes) != len(expectedSchemes) {
		t.Errorf("Expected %d schemes, got %d", len(expectedSchemes), len(validator.allowedSchemes))
	}
}

func TestValidateServiceURL_Valid(t *testing.T) {
	validator := NewURLValidator()

	validURLs := []string{
		"http://localhost:8000",
		"https://tonesense.app",
		"http://192.168.1.20:8000/",
		"https://api.example.com/tonesense",
	}

	for _, u := range validURLs {
		if err := validator.ValidateServiceURL(u); err != nil {
			t.Errorf("Expected valid URL %s to pass validation, got error: %v", u, err)
		}
	}
}

func TestValidateServiceURL_Invalid(t *testing.T) {
	validator := NewURLValidator()

	tests := []struct {
		url     string
		message string
	}{
		{"", "service URL cannot be empty"},
		{"   ", "service URL cannot be empty"},
		{"ftp://example.com", "service URL scheme not allowed"},
		{"localhost:8000", "service URL scheme not allowed"},
		{"http://", "service URL must have a valid host"},
		{"http://localhost:8000/?x=1", "service URL must not carry a query or fragment"},
		{"http://localhost:8000/#top", "service URL must not carry a query or fragment"},
	}

	for _, tt := range tests {
		err := validator.ValidateServiceURL(tt.url)
		if err == nil {
			t.Errorf("Expected URL %q to fail validation", tt.url)
			continue
		}
		appErr, ok := err.(*apperrors.AppError)
		if !ok {
			t.Errorf("Expected AppError, got: %T", err)
			continue
		}
		if appErr.Message != tt.message {
			t.Errorf("URL %q: expected %q, got %q", tt.url, tt.message, appErr.Message)
		}
	}
}

func TestValidateServiceURL_AllowedHosts(t *testing.T) {
	validator := NewURLValidatorWithOptions([]string{"https"}, []string{"tonesense.app"})

	if err := validator.ValidateServiceURL("https://tonesense.app:443"); err != nil {
		t.Errorf("Expected allowed host to pass, got %v", err)
	}
	if err := validator.ValidateServiceURL("https://evil.example.com"); err == nil {
		t.Error("Expected disallowed host to fail")
	}
}
