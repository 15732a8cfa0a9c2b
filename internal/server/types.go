// Package server provides the HTTP server for audiosplit.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

import (
	"time"

	"github.com/maauso/audiosplit/internal/segment"
)

// DurationRequest is the HTTP request body for changing the segment duration.
type DurationRequest struct {
	// Minutes is the requested segment length. Values below 1 are clamped to 1.
	Minutes *int `json:"minutes" validate:"required"`
}

// DurationResponse is the HTTP response after the duration changed.
type DurationResponse struct {
	// Minutes is the effective segment length in whole minutes.
	Minutes int `json:"minutes"`
	// Seconds is the value passed to the engine.
	Seconds int `json:"seconds"`
}

// StartRunResponse is the HTTP response after a run was accepted.
type StartRunResponse struct {
	// ID is the unique identifier for the run.
	ID string `json:"id"`
	// Status is the run status at acceptance.
	Status string `json:"status"`
}

// RunResponse is the HTTP response for getting run details.
type RunResponse struct {
	ID              string     `json:"id"`
	Status          string     `json:"status"`
	SourceName      string     `json:"source_name"`
	DurationSeconds int        `json:"duration_seconds"`
	Segments        []string   `json:"segments"`
	Error           string     `json:"error,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

func newRunResponse(r *segment.Run) RunResponse {
	resp := RunResponse{
		ID:              r.ID,
		Status:          string(r.Status),
		SourceName:      r.SourceName,
		DurationSeconds: r.Duration.Seconds(),
		Segments:        r.Segments,
		Error:           r.Error,
		CreatedAt:       r.CreatedAt,
	}
	if resp.Segments == nil {
		resp.Segments = []string{}
	}
	if !r.StartedAt.IsZero() {
		t := r.StartedAt
		resp.StartedAt = &t
	}
	if !r.CompletedAt.IsZero() {
		t := r.CompletedAt
		resp.CompletedAt = &t
	}
	return resp
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
