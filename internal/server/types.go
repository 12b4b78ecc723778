// Package server provides the browser UI and HTTP endpoints of the
// short-form assembler: uploads, per-clip settings, reordering, rendering
// and artifact downloads.
package server

// TrimRequest is the form body of POST /clips/{id}/trim.
type TrimRequest struct {
	// Start is the trim start in seconds.
	Start float64 `validate:"gte=0"`
	// Duration is the used length in seconds.
	Duration float64 `validate:"gt=0"`
}

// MoveRequest is the form body of POST /clips/{id}/move.
type MoveRequest struct {
	Direction string `validate:"required,oneof=up down"`
}

// RenderRequest is the form body of POST /render.
type RenderRequest struct {
	// Transition is the fade length in seconds.
	Transition float64 `validate:"gte=0.1,lte=1"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
}
