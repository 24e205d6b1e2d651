package server

// RunState is the server's lifecycle phase. Transitions are strictly
// forward: Uninitialized → Initializing → Running → Stopping → Stopped,
// with Stopping reachable directly from Initializing on failure. Stopped
// is terminal.
type RunState int32

const (
	Uninitialized RunState = iota
	Initializing
	Running
	Stopping
	Stopped
)

func (s RunState) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initializing:
		return "initializing"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// HealthState classifies the server's terminal outcome. Once degraded to a
// failed value it is never reset to HealthOk for the lifetime of the
// server instance: a running server is always HealthOk, so the health only
// carries information after shutdown.
type HealthState int32

const (
	HealthOk HealthState = iota
	HealthFailedInit
	HealthFailedRun
)

func (h HealthState) String() string {
	switch h {
	case HealthOk:
		return "ok"
	case HealthFailedInit:
		return "failed during initialization"
	case HealthFailedRun:
		return "failed while running"
	default:
		return "unknown"
	}
}
