package sysinfo_test

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"codeberg.org/odysseus/odytelem/internal/clock"
	"codeberg.org/odysseus/odytelem/internal/errors"
	"codeberg.org/odysseus/odytelem/internal/sysinfo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeSyntheticFile creates a file at the given path within root,
// creating parent directories as needed.
func writeSyntheticFile(t *testing.T, root, path, content string) {
	t.Helper()
	fullPath := filepath.Join(root, path)
	require.NoError(t, os.MkdirAll(filepath.Dir(fullPath), 0o755))
	require.NoError(t, os.WriteFile(fullPath, []byte(content), 0o644))
}

// cpuLine renders the aggregate line of /proc/stat in USER_HZ ticks.
func cpuLine(user, system, idle uint64) string {
	return fmt.Sprintf("cpu  %d 0 %d %d 0 0 0 0 0 0\n", user, system, idle)
}

// procStatLine renders /proc/<pid>/stat with the given utime and stime.
func procStatLine(pid int, utime, stime uint64) string {
	return fmt.Sprintf("%d (mosquitto) S 1 %d %d 0 -1 4194560 100 0 0 0 %d %d 0 0 20 0 1 0 100 10000000 500 "+
		"18446744073709551615 1 1 0 0 0 0 0 4096 0 0 0 0 17 0 0 0 0 0 0 0 0 0 0 0 0 0 0\n",
		pid, pid, pid, utime, stime)
}

type fixture struct {
	procRoot string
	sysRoot  string
	clock    *clock.FakeClock
	reader   *sysinfo.Reader
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	f := &fixture{
		procRoot: filepath.Join(root, "proc"),
		sysRoot:  filepath.Join(root, "sys"),
		clock:    clock.Fake(time.Unix(1_700_000_000, 0)),
	}

	writeSyntheticFile(t, f.procRoot, "stat", cpuLine(100, 100, 800))
	writeSyntheticFile(t, f.procRoot, "meminfo",
		"MemTotal:        1000000 kB\nMemFree:          512000 kB\nMemAvailable:     700000 kB\n")
	writeSyntheticFile(t, f.procRoot, "1/stat", procStatLine(1, 10, 10))
	writeSyntheticFile(t, f.sysRoot, "class/thermal/thermal_zone0/type", "cpu-thermal\n")
	writeSyntheticFile(t, f.sysRoot, "class/thermal/thermal_zone0/temp", "47250\n")
	writeSyntheticFile(t, f.sysRoot, "class/thermal/thermal_zone0/policy", "step_wise\n")

	reader, err := sysinfo.New(sysinfo.Config{
		ProcRoot:    f.procRoot,
		SysRoot:     f.sysRoot,
		ThermalZone: "cpu-thermal",
	}, f.clock)
	require.NoError(t, err)
	f.reader = reader

	return f
}

func TestTemperature(t *testing.T) {
	f := newFixture(t)

	temp, err := f.reader.Temperature()
	require.NoError(t, err)
	assert.InDelta(t, 47.25, temp, 0.001)
}

func TestTemperatureByZoneName(t *testing.T) {
	f := newFixture(t)

	reader, err := sysinfo.New(sysinfo.Config{
		ProcRoot:    f.procRoot,
		SysRoot:     f.sysRoot,
		ThermalZone: "thermal_zone0",
	}, f.clock)
	require.NoError(t, err)

	temp, err := reader.Temperature()
	require.NoError(t, err)
	assert.InDelta(t, 47.25, temp, 0.001)
}

func TestTemperatureSensorMissing(t *testing.T) {
	f := newFixture(t)

	reader, err := sysinfo.New(sysinfo.Config{
		ProcRoot:    f.procRoot,
		SysRoot:     f.sysRoot,
		ThermalZone: "coretemp Core 0",
	}, f.clock)
	require.NoError(t, err)

	_, err = reader.Temperature()
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, sysinfo.ErrSensorNotFound))
}

func TestCPUUsageUsesDeltaBetweenReads(t *testing.T) {
	f := newFixture(t)

	first, err := f.reader.CPUUsage()
	require.NoError(t, err)
	assert.Equal(t, float32(0), first)

	// 100 more busy ticks and 300 more idle ticks: 25% busy
	writeSyntheticFile(t, f.procRoot, "stat", cpuLine(150, 150, 1100))

	usage, err := f.reader.CPUUsage()
	require.NoError(t, err)
	assert.InDelta(t, 25.0, usage, 0.01)
}

func TestProcessCPUUsage(t *testing.T) {
	f := newFixture(t)
	writeSyntheticFile(t, f.procRoot, "321/stat", procStatLine(321, 100, 50))

	first, err := f.reader.ProcessCPUUsage(321)
	require.NoError(t, err)
	assert.Equal(t, float32(0), first)

	// 15 ticks (0.15s of CPU) over 300ms of wall time
	writeSyntheticFile(t, f.procRoot, "321/stat", procStatLine(321, 110, 55))
	f.clock.Advance(300 * time.Millisecond)

	usage, err := f.reader.ProcessCPUUsage(321)
	require.NoError(t, err)
	assert.InDelta(t, 50.0, usage, 0.01)

	// switching pid resets the baseline
	usage, err = f.reader.ProcessCPUUsage(1)
	require.NoError(t, err)
	assert.Equal(t, float32(0), usage)
}

func TestProcessCPUUsageMissingProcess(t *testing.T) {
	f := newFixture(t)

	_, err := f.reader.ProcessCPUUsage(99999)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, sysinfo.ErrProcessNotFound))
}

func TestFreeMemory(t *testing.T) {
	f := newFixture(t)

	free, err := f.reader.FreeMemory()
	require.NoError(t, err)
	assert.Equal(t, uint64(512000*1024), free)
}

func TestNewRejectsMissingRoot(t *testing.T) {
	_, err := sysinfo.New(sysinfo.Config{ProcRoot: filepath.Join(t.TempDir(), "absent")}, nil)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, sysinfo.ErrInitFailed))
}
