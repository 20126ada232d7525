package dto

import "stop-spying-server/internal/repository"

type HealthResponse struct {
	Status string                  `json:"status"`
	Stats  *repository.SystemStats `json:"stats"`
}

type LivenessResponse struct {
	Status        string  `json:"status"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

type ReadinessResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}
