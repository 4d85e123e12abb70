package sysinfo

// Source reads the on-board system state sampled by the agent.
type Source interface {
	// Temperature returns the on-board CPU temperature in degrees Celsius.
	Temperature() (float32, error)

	// CPUUsage returns aggregate CPU utilisation since the previous call,
	// as a percentage of all CPUs.
	CPUUsage() (float32, error)

	// ProcessCPUUsage returns the CPU utilisation of pid since the previous
	// call for the same pid, as a percentage of one CPU.
	ProcessCPUUsage(pid int) (float32, error)

	// FreeMemory returns unused physical memory in bytes.
	FreeMemory() (uint64, error)
}

// Config selects the filesystems and sensor to read.
type Config struct {
	ProcRoot    string
	SysRoot     string
	ThermalZone string
}

const (
	DefaultProcRoot    = "/proc"
	DefaultSysRoot     = "/sys"
	DefaultThermalZone = "cpu-thermal"
)

// DefaultConfig returns the paths of a standard Linux system.
func DefaultConfig() Config {
	return Config{
		ProcRoot:    DefaultProcRoot,
		SysRoot:     DefaultSysRoot,
		ThermalZone: DefaultThermalZone,
	}
}
