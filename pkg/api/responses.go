package api

import "github.com/codeready-toolchain/deepsoc/pkg/database"

// HealthResponse is the GET /health response body.
type HealthResponse struct {
	Status   string                    `json:"status"`
	Database *database.HealthStatus    `json:"database,omitempty"`
	Pools    map[string]queuePoolStats `json:"pools,omitempty"`
}

type queuePoolStats struct {
	ActiveWorkers    int `json:"active_workers"`
	TotalWorkers     int `json:"total_workers"`
	OrphansRecovered int `json:"orphans_recovered"`
}

// LoginResponse is the POST /api/auth/login response body.
type LoginResponse struct {
	Token    string `json:"token"`
	Username string `json:"username"`
	Role     string `json:"role"`
}
