// Package sysinfo reads temperature, CPU and memory state from procfs and
// sysfs.
package sysinfo

import (
	"strings"
	"sync"
	"time"

	"codeberg.org/odysseus/odytelem/internal/clock"
	"codeberg.org/odysseus/odytelem/internal/errors"
	"codeberg.org/odysseus/odytelem/internal/logger"
	"github.com/prometheus/procfs"
	"github.com/prometheus/procfs/sysfs"
)

const (
	milliDegreesPerDegree = 1000
	bytesPerKiB           = 1024
)

type cpuSample struct {
	busy  float64
	total float64
}

type procSample struct {
	pid     int
	cpuTime float64
	at      time.Time
}

// Reader implements Source on top of procfs.
type Reader struct {
	proc  procfs.FS
	sys   sysfs.FS
	zone  string
	clock clock.Clock
	log   logger.Logger

	mu       sync.Mutex
	lastCPU  *cpuSample
	lastProc *procSample
}

var _ Source = (*Reader)(nil)

// New opens the proc and sys filesystems named in cfg.
func New(cfg Config, clk clock.Clock) (*Reader, error) {
	errFactory := errors.New()

	if cfg.ProcRoot == "" {
		cfg.ProcRoot = DefaultProcRoot
	}
	if cfg.SysRoot == "" {
		cfg.SysRoot = DefaultSysRoot
	}
	if clk == nil {
		clk = clock.Real()
	}

	proc, err := procfs.NewFS(cfg.ProcRoot)
	if err != nil {
		return nil, errFactory.Wrap(ErrInitFailed, err)
	}

	sys, err := sysfs.NewFS(cfg.SysRoot)
	if err != nil {
		return nil, errFactory.Wrap(ErrInitFailed, err)
	}

	r := &Reader{
		proc:  proc,
		sys:   sys,
		zone:  cfg.ThermalZone,
		clock: clk,
		log:   logger.For("sysinfo"),
	}

	r.log.Debug().
		Str("proc_root", cfg.ProcRoot).
		Str("sys_root", cfg.SysRoot).
		Str("thermal_zone", cfg.ThermalZone).
		Msg("System reader initialized")

	return r, nil
}

// Temperature reads the configured thermal zone, matched by its type
// (e.g. "cpu-thermal") or its directory name (e.g. "thermal_zone0").
func (r *Reader) Temperature() (float32, error) {
	errFactory := errors.New()

	zones, err := r.sys.ClassThermalZoneStats()
	if err != nil {
		return 0, errFactory.Wrap(ErrSensorReadFailed, err)
	}

	for _, zone := range zones {
		if strings.EqualFold(zone.Type, r.zone) || "thermal_zone"+zone.Name == r.zone {
			return float32(zone.Temp) / milliDegreesPerDegree, nil
		}
	}

	return 0, errFactory.WithData(ErrSensorNotFound, r.zone)
}

// CPUUsage returns the busy share of CPU time since the previous call. The
// first call establishes the baseline and reports 0.
func (r *Reader) CPUUsage() (float32, error) {
	errFactory := errors.New()

	stat, err := r.proc.Stat()
	if err != nil {
		return 0, errFactory.Wrap(ErrCPUStatFailed, err)
	}

	c := stat.CPUTotal
	idle := c.Idle + c.Iowait
	total := c.User + c.Nice + c.System + idle + c.IRQ + c.SoftIRQ + c.Steal
	current := cpuSample{busy: total - idle, total: total}

	r.mu.Lock()
	defer r.mu.Unlock()

	previous := r.lastCPU
	r.lastCPU = &current
	if previous == nil {
		return 0, nil
	}

	deltaTotal := current.total - previous.total
	if deltaTotal <= 0 {
		return 0, nil
	}

	return float32((current.busy - previous.busy) / deltaTotal * 100), nil
}

// ProcessCPUUsage returns the CPU time pid consumed per wall-clock second
// since the previous call, as a percentage. Switching to a different pid
// resets the baseline and reports 0.
func (r *Reader) ProcessCPUUsage(pid int) (float32, error) {
	errFactory := errors.New()

	proc, err := r.proc.Proc(pid)
	if err != nil {
		return 0, errFactory.WithData(ErrProcessNotFound, pid)
	}

	stat, err := proc.Stat()
	if err != nil {
		return 0, errFactory.WithData(ErrProcessNotFound, pid)
	}

	current := procSample{pid: pid, cpuTime: stat.CPUTime(), at: r.clock.Now()}

	r.mu.Lock()
	defer r.mu.Unlock()

	previous := r.lastProc
	r.lastProc = &current
	if previous == nil || previous.pid != pid {
		r.log.Trace().Int("pid", pid).Msg("Process CPU baseline established")
		return 0, nil
	}

	elapsed := current.at.Sub(previous.at).Seconds()
	if elapsed <= 0 {
		return 0, nil
	}

	return float32((current.cpuTime - previous.cpuTime) / elapsed * 100), nil
}

// FreeMemory returns MemFree from /proc/meminfo in bytes.
func (r *Reader) FreeMemory() (uint64, error) {
	errFactory := errors.New()

	info, err := r.proc.Meminfo()
	if err != nil {
		return 0, errFactory.Wrap(ErrMemInfoFailed, err)
	}
	if info.MemFree == nil {
		return 0, errFactory.New(ErrMemInfoIncomplete)
	}

	return *info.MemFree * bytesPerKiB, nil
}
