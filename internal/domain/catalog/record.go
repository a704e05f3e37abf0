package catalog

// Activation selects the mechanism used to start an application. It is
// chosen once when the catalog is populated and never changes afterwards.
type Activation int

const (
	// ActivationProcess spawns the command line directly as a child process.
	ActivationProcess Activation = iota
	// ActivationBus requests the application through D-Bus name activation.
	ActivationBus
	// ActivationUnit starts a templated systemd unit wrapping the command.
	ActivationUnit
)

// String returns the backend label used in logs and metrics.
func (a Activation) String() string {
	switch a {
	case ActivationProcess:
		return "process"
	case ActivationBus:
		return "bus"
	case ActivationUnit:
		return "unit"
	default:
		return "unknown"
	}
}

// Status is the lifecycle state of an application.
type Status int

const (
	StatusInactive Status = iota
	StatusStarting
	StatusRunning
)

// String implements fmt.Stringer.
func (s Status) String() string {
	switch s {
	case StatusInactive:
		return "inactive"
	case StatusStarting:
		return "starting"
	case StatusRunning:
		return "running"
	default:
		return "unknown"
	}
}

// Runtime is the backend-specific state attached to a record while the
// application is starting or running: the process handle, the bus-name
// watch and activation proxy, or the unit subscription. Release tears the
// underlying watches down and must be called exactly once, when the record
// transitions back to StatusInactive.
type Runtime interface {
	Release()
}

// Record describes one launchable application together with its current
// runtime state. ID, Name, IconPath, Command, Activation and Graphical are
// immutable after catalog population; Status and Runtime are mutated only
// by the launcher while holding its lock.
type Record struct {
	ID       string
	Name     string
	IconPath string
	Command  string

	Activation Activation
	Graphical  bool

	Status  Status
	Runtime Runtime
}
