package plugin

// Status represents the lifecycle state of a registered task.
type Status int

const (
	StatusDiscovered   Status = iota // Constructed, not yet seen by a registry
	StatusValidating                 // Descriptor and config under validation
	StatusValidated                  // Validation passed
	StatusLoading                    // Dependency checks in progress
	StatusLoaded                     // Accepted by the registry
	StatusInitializing               // Initialize() running
	StatusReady                      // Idle, may be scheduled
	StatusRunning                    // Process() in flight
	StatusError                      // Last lifecycle step or invocation failed
	StatusUnloading                  // Cleanup() running
	StatusUnloaded                   // Removed from the registry
)

var statusNames = [...]string{
	"discovered", "validating", "validated", "loading", "loaded",
	"initializing", "ready", "running", "error", "unloading", "unloaded",
}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return "unknown"
	}
	return statusNames[s]
}

// ExecutionMode governs whether a task may be grouped for concurrent execution.
type ExecutionMode int

const (
	ModeSequential  ExecutionMode = iota // Runs alone on the driver
	ModeParallel                         // May join a parallel group when ParallelCompatible
	ModeConditional                      // Sequential, gated by Conditional.ShouldRun
)

func (m ExecutionMode) String() string {
	switch m {
	case ModeSequential:
		return "sequential"
	case ModeParallel:
		return "parallel"
	case ModeConditional:
		return "conditional"
	default:
		return "unknown"
	}
}
