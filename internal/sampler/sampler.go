// Package sampler produces on-board measurements at fixed, independent
// cadences and hands them to the publishing queue.
package sampler

import (
	"context"
	"time"

	"codeberg.org/odysseus/odytelem/internal/clock"
	"codeberg.org/odysseus/odytelem/internal/errors"
	"codeberg.org/odysseus/odytelem/internal/logger"
	"codeberg.org/odysseus/odytelem/internal/pid"
	"codeberg.org/odysseus/odytelem/internal/stats"
	"codeberg.org/odysseus/odytelem/internal/sysinfo"
	"codeberg.org/odysseus/odytelem/internal/telemetry"
)

// Cadences are fixed for this release.
const (
	TemperatureInterval = 2 * time.Second
	CPUInterval         = 300 * time.Millisecond
	MemoryInterval      = time.Second
)

const (
	// FallbackPID is tracked when the broker PID cannot be determined.
	FallbackPID = 1

	bytesPerMegabyte = 1e6
)

// Sampler multiplexes its tickers onto one goroutine. Each tick is handled
// to completion before the next event is taken, so a slow read only skews
// the other cadences briefly.
type Sampler struct {
	src   sysinfo.Source
	out   chan<- telemetry.Measurement
	clock clock.Clock
	pid   int
	log   logger.Logger
}

// Option configures a Sampler.
type Option func(*Sampler)

// WithClock replaces the real clock, typically with a fake one in tests.
func WithClock(c clock.Clock) Option {
	return func(s *Sampler) {
		s.clock = c
	}
}

// New returns a Sampler reading src, tracking the CPU usage of trackedPID
// and emitting into out.
func New(src sysinfo.Source, out chan<- telemetry.Measurement, trackedPID int, opts ...Option) *Sampler {
	s := &Sampler{
		src:   src,
		out:   out,
		clock: clock.Real(),
		pid:   trackedPID,
		log:   logger.For("sampler"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.pid <= 0 {
		s.pid = FallbackPID
	}

	return s
}

// ResolvePID reads the tracked process ID from the PID file at path. Any
// failure falls back to FallbackPID; the second return value reports
// whether the fallback was taken.
func ResolvePID(path string) (int, bool) {
	log := logger.For("sampler")

	p, err := pid.Read(path)
	if err != nil {
		log.Warn().
			Err(err).
			Str("pid_file", path).
			Int("fallback_pid", FallbackPID).
			Msg("Could not read tracked PID, using fallback")
		return FallbackPID, true
	}

	log.Debug().Int("pid", p).Str("pid_file", path).Msg("Tracking process")
	return p, false
}

// Run samples until ctx is cancelled.
func (s *Sampler) Run(ctx context.Context) {
	temperature := s.clock.NewTicker(TemperatureInterval)
	defer temperature.Stop()
	cpu := s.clock.NewTicker(CPUInterval)
	defer cpu.Stop()
	memory := s.clock.NewTicker(MemoryInterval)
	defer memory.Stop()

	s.log.Info().Int("tracked_pid", s.pid).Msg("Sampler started")

	for {
		var batch []telemetry.Measurement

		select {
		case <-ctx.Done():
			s.log.Debug().Msg("Shutting down sampler")
			return
		case <-temperature.Chan():
			batch = s.sampleTemperature()
		case <-cpu.Chan():
			batch = s.sampleCPU()
		case <-memory.Chan():
			batch = s.sampleMemory()
		}

		for _, m := range batch {
			if !s.emit(ctx, m) {
				s.log.Debug().Msg("Shutting down sampler")
				return
			}
		}
	}
}

// emit blocks while the queue is full. It returns false if ctx is
// cancelled first.
func (s *Sampler) emit(ctx context.Context, m telemetry.Measurement) bool {
	select {
	case s.out <- m:
		stats.MeasurementsEnqueued.WithLabelValues(m.Topic().String()).Inc()
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *Sampler) sampleTemperature() []telemetry.Measurement {
	value, err := s.src.Temperature()
	if err != nil {
		stats.SensorReadFailures.WithLabelValues("temperature").Inc()
		if errors.HasCode(err, sysinfo.ErrSensorNotFound) {
			s.log.Warn().Err(err).Msg("Could not find thermal sensor")
		} else {
			s.log.Warn().Err(err).Msg("Could not read thermal sensor")
		}
		return nil
	}

	return []telemetry.Measurement{telemetry.Must(telemetry.TopicCPUTemp, value)}
}

func (s *Sampler) sampleCPU() []telemetry.Measurement {
	var batch []telemetry.Measurement

	usage, err := s.src.CPUUsage()
	if err != nil {
		stats.SensorReadFailures.WithLabelValues("cpu").Inc()
		s.log.Warn().Err(err).Msg("Could not read CPU usage")
	} else {
		batch = append(batch, telemetry.Must(telemetry.TopicCPUUsage, usage))
	}

	brokerUsage, err := s.src.ProcessCPUUsage(s.pid)
	if err != nil && s.pid != FallbackPID {
		s.log.Warn().
			Err(err).
			Int("pid", s.pid).
			Int("fallback_pid", FallbackPID).
			Msg("Could not find tracked process, using fallback")
		s.pid = FallbackPID
		brokerUsage, err = s.src.ProcessCPUUsage(s.pid)
	}
	if err != nil {
		stats.SensorReadFailures.WithLabelValues("process_cpu").Inc()
		s.log.Warn().Err(err).Int("pid", s.pid).Msg("Unable to find tracked process")
		return batch
	}

	s.log.Trace().Int("pid", s.pid).Float32("usage", brokerUsage).Msg("Sampled tracked process")
	return append(batch, telemetry.Must(telemetry.TopicBrokerCPUUsage, brokerUsage))
}

func (s *Sampler) sampleMemory() []telemetry.Measurement {
	free, err := s.src.FreeMemory()
	if err != nil {
		stats.SensorReadFailures.WithLabelValues("memory").Inc()
		s.log.Warn().Err(err).Msg("Could not read free memory")
		return nil
	}

	return []telemetry.Measurement{
		telemetry.Must(telemetry.TopicMemAvailable, float32(float64(free)/bytesPerMegabyte)),
	}
}
