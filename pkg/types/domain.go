package types

// HealthReport is the local server process health sample.
type HealthReport struct {
	IsRunning     bool    `json:"is_running"`
	PID           int     `json:"pid,omitempty"`
	MemoryMB      float64 `json:"memory_mb,omitempty"`
	UptimeSeconds float64 `json:"uptime_seconds,omitempty"`
}

// LocalStatus summarizes the local backend for /status.
type LocalStatus struct {
	Enabled bool `json:"enabled"`
	// Readiness state: not_loaded, loading, ready or idle.
	// example: ready
	State  string `json:"state" example:"ready"`
	Binary string `json:"binary,omitempty"`
	Model  string `json:"model,omitempty"`
	// Size band of the model: small, medium, large or xlarge.
	// example: medium
	Band      string       `json:"band,omitempty" example:"medium"`
	GPULayers int          `json:"gpu_layers,omitempty"`
	URL       string       `json:"url,omitempty"`
	Health    HealthReport `json:"health"`
	// Last request against the local server (unix seconds, 0 if never).
	LastUsedUnix int64  `json:"last_used_unix"`
	InFlight     int    `json:"in_flight"`
	LastError    string `json:"last_error,omitempty"`
	Unavailable  string `json:"unavailable,omitempty"`
}

// Event is a recent supervisor lifecycle event.
type Event struct {
	// example: spawn_ready
	Name   string         `json:"name" example:"spawn_ready"`
	PID    int            `json:"pid,omitempty"`
	Model  string         `json:"model,omitempty"`
	Fields map[string]any `json:"fields,omitempty"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Configured provider: none, local or cloud.
	// example: local
	Provider string `json:"provider" example:"local"`
	// Backend tried first for requests.
	Preference string `json:"preference"`
	// Backend that served the most recent request.
	LastProvider   string      `json:"last_provider"`
	CloudAvailable bool        `json:"cloud_available"`
	Local          LocalStatus `json:"local"`
	Events         []Event     `json:"events"`
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
}
