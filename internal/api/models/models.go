// Package models defines request and response types for the abyss
// management REST API.
package models

import "time"

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// StatusResponse represents a simple status response.
type StatusResponse struct {
	Status string `json:"status"`
}

// StatsResponse reports the TelemetryHub snapshot alongside process uptime.
type StatsResponse struct {
	Uptime            string  `json:"uptime"`
	UptimeSeconds     int64   `json:"uptime_seconds"`
	ConnectionsActive int64   `json:"connections_active"`
	ConnectionsTotal  uint64  `json:"connections_total"`
	AcceptsTotal      uint64  `json:"accepts_total"`
	ResponsesTotal    uint64  `json:"responses_total"`
	DroppedTotal      uint64  `json:"dropped_total"`
	AcceptsPerSecond  float64 `json:"accepts_per_second"`
	ResponsesPerSecond float64 `json:"responses_per_second"`
	StartedAt         time.Time `json:"started_at"`
}
