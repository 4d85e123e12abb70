package sysinfo

import "codeberg.org/odysseus/odytelem/internal/errors"

const (
	// Initialization Errors
	ErrInitFailed = errors.ErrorCode("sysinfo_init_failed")

	// Sensor Errors
	ErrSensorNotFound    = errors.ErrorCode("sysinfo_sensor_not_found")
	ErrSensorReadFailed  = errors.ErrorCode("sysinfo_sensor_read_failed")
	ErrProcessNotFound   = errors.ErrorCode("sysinfo_process_not_found")
	ErrCPUStatFailed     = errors.ErrorCode("sysinfo_cpu_stat_failed")
	ErrMemInfoFailed     = errors.ErrorCode("sysinfo_meminfo_failed")
	ErrMemInfoIncomplete = errors.ErrorCode("sysinfo_meminfo_incomplete")
)
