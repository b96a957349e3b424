package supervisor

import "time"

// ReadinessState is the lifecycle state of the supervised server.
type ReadinessState string

const (
	StateNotLoaded ReadinessState = "not_loaded"
	StateLoading   ReadinessState = "loading"
	StateReady     ReadinessState = "ready"
	// StateIdle is NotLoaded after an idle unload; reported separately for
	// diagnostics only.
	StateIdle ReadinessState = "idle"
)

var allStates = []ReadinessState{StateNotLoaded, StateLoading, StateReady, StateIdle}

// ProcessInfo is a read-only snapshot of the live server process.
type ProcessInfo struct {
	PID        int
	StartedAt  time.Time
	ExitCode   *int
	BinaryPath string
	ModelPath  string
	Port       int
}
