package models

import "encoding/json"

// Base64AnalysisRequest is the JSON body of POST /api/analyze-base64
type Base64AnalysisRequest struct {
	Image string `json:"image"`
}

// ServiceErrorBody is the failure body of the analysis service. Detail is
// usually a string but validation failures carry a list, so it is kept raw.
type ServiceErrorBody struct {
	Detail json.RawMessage `json:"detail"`
}

// HealthResponse is the liveness payload of GET /api/health
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service,omitempty"`
}

// ConsentRequest is the body of the local consent endpoint
type ConsentRequest struct {
	Accepted *bool `json:"accepted" binding:"required"`
}

// PreferencesRequest is the body of PUT /api/preferences
type PreferencesRequest struct {
	Dark *bool `json:"dark" binding:"required"`
}

// ErrorResponse represents an error response of the local API
type ErrorResponse struct {
	Error   string `json:"error"`
	Type    string `json:"type,omitempty"`
	Message string `json:"message,omitempty"`
}
